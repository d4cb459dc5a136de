package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"launch-alerts/internal/logging"
)

// Service names used by the alert cycles.
const (
	ServiceMarketData = "market_data"
	ServiceDexData    = "dex_data"
	ServiceTelegram   = "telegram"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig                `mapstructure:"app"`
	Logging   logging.Config           `mapstructure:"logging"`
	Database  DatabaseConfig           `mapstructure:"database"`
	Telegram  TelegramConfig           `mapstructure:"telegram"`
	Providers ProvidersConfig          `mapstructure:"providers"`
	Services  map[string]ServiceConfig `mapstructure:"services"`
	Cycles    CyclesConfig             `mapstructure:"cycles"`
	Events    EventsConfig             `mapstructure:"events"`
	Monitor   MonitorConfig            `mapstructure:"monitor"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name           string        `mapstructure:"name"`
	Environment    string        `mapstructure:"environment"`
	AlertRetention time.Duration `mapstructure:"alert_retention"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN              string        `mapstructure:"dsn"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
	AdvisoryLockBase int64         `mapstructure:"advisory_lock_base"`
}

// TelegramConfig 描述 Telegram 发送参数。
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ProviderConfig describes one market-data HTTP API.
type ProviderConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// ProvidersConfig groups the data providers.
type ProvidersConfig struct {
	Market ProviderConfig `mapstructure:"market"`
	Dex    ProviderConfig `mapstructure:"dex"`
}

// ServiceConfig is the resilience profile of one external dependency.
type ServiceConfig struct {
	RatePerMinute    int           `mapstructure:"rate_per_minute"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	CallTimeout      time.Duration `mapstructure:"call_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	Exponential      bool          `mapstructure:"exponential"`
	CountErrors      []string      `mapstructure:"count_errors"`
	RetryErrors      []string      `mapstructure:"retry_errors"`
}

// CycleConfig is shared by every alert cycle.
type CycleConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	Align        bool          `mapstructure:"align"`
}

// MarketAlertConfig tunes the high-score alert cycle.
type MarketAlertConfig struct {
	CycleConfig    `mapstructure:",squash"`
	ScoreThreshold float64       `mapstructure:"score_threshold"`
	TickerDelay    time.Duration `mapstructure:"ticker_delay"`
	UserDelay      time.Duration `mapstructure:"user_delay"`
}

// LaunchEventConfig tunes the launch event cycle.
type LaunchEventConfig struct {
	CycleConfig `mapstructure:",squash"`
	DaysBefore  int           `mapstructure:"days_before"`
	UserDelay   time.Duration `mapstructure:"user_delay"`
}

// WeeklyReportConfig tunes the weekly report cycle.
type WeeklyReportConfig struct {
	CycleConfig `mapstructure:",squash"`
	Day         string        `mapstructure:"day"`
	Hour        int           `mapstructure:"hour"`
	UserDelay   time.Duration `mapstructure:"user_delay"`
}

// PriceDropConfig tunes the price drop cycle.
type PriceDropConfig struct {
	CycleConfig  `mapstructure:",squash"`
	ThresholdPct float64       `mapstructure:"threshold_pct"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	UserDelay    time.Duration `mapstructure:"user_delay"`
}

// CyclesConfig groups the four cycles.
type CyclesConfig struct {
	MarketAlert  MarketAlertConfig  `mapstructure:"market_alert"`
	LaunchEvent  LaunchEventConfig  `mapstructure:"launch_event"`
	WeeklyReport WeeklyReportConfig `mapstructure:"weekly_report"`
	PriceDrop    PriceDropConfig    `mapstructure:"price_drop"`
}

// CalendarEntry is one statically configured upcoming event.
type CalendarEntry struct {
	Asset       string `mapstructure:"asset"`
	Type        string `mapstructure:"type"`
	Date        string `mapstructure:"date"`
	Description string `mapstructure:"description"`
}

// EventsConfig lists known upcoming events.
type EventsConfig struct {
	Calendar []CalendarEntry `mapstructure:"calendar"`
}

// MonitorConfig exposes /health and /metrics.
type MonitorConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LAUNCHALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "launchalerts")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.alert_retention", "720h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.advisory_lock_base", int64(0x6c61756e))

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", "10s")

	v.SetDefault("providers.market.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("providers.market.timeout", "10s")
	v.SetDefault("providers.market.user_agent", "launchalerts/1.0")
	v.SetDefault("providers.dex.base_url", "https://api.dexscreener.com")
	v.SetDefault("providers.dex.timeout", "10s")
	v.SetDefault("providers.dex.user_agent", "launchalerts/1.0")

	setServiceDefaults(v, ServiceMarketData, 50, 5, "60s")
	setServiceDefaults(v, ServiceDexData, 100, 10, "30s")
	setServiceDefaults(v, ServiceTelegram, 60, 5, "60s")

	v.SetDefault("cycles.market_alert.enabled", true)
	v.SetDefault("cycles.market_alert.interval", "2h")
	v.SetDefault("cycles.market_alert.error_backoff", "5m")
	v.SetDefault("cycles.market_alert.startup_delay", "0s")
	v.SetDefault("cycles.market_alert.align", false)
	v.SetDefault("cycles.market_alert.score_threshold", 70.0)
	v.SetDefault("cycles.market_alert.ticker_delay", "1s")
	v.SetDefault("cycles.market_alert.user_delay", "2s")

	v.SetDefault("cycles.launch_event.enabled", true)
	v.SetDefault("cycles.launch_event.interval", "12h")
	v.SetDefault("cycles.launch_event.error_backoff", "10m")
	v.SetDefault("cycles.launch_event.startup_delay", "0s")
	v.SetDefault("cycles.launch_event.align", false)
	v.SetDefault("cycles.launch_event.days_before", 3)
	v.SetDefault("cycles.launch_event.user_delay", "500ms")

	v.SetDefault("cycles.weekly_report.enabled", true)
	v.SetDefault("cycles.weekly_report.interval", "1h")
	v.SetDefault("cycles.weekly_report.error_backoff", "5m")
	v.SetDefault("cycles.weekly_report.startup_delay", "0s")
	v.SetDefault("cycles.weekly_report.align", true)
	v.SetDefault("cycles.weekly_report.day", "monday")
	v.SetDefault("cycles.weekly_report.hour", 9)
	v.SetDefault("cycles.weekly_report.user_delay", "1s")

	v.SetDefault("cycles.price_drop.enabled", true)
	v.SetDefault("cycles.price_drop.interval", "30m")
	v.SetDefault("cycles.price_drop.error_backoff", "5m")
	v.SetDefault("cycles.price_drop.startup_delay", "0s")
	v.SetDefault("cycles.price_drop.align", false)
	v.SetDefault("cycles.price_drop.threshold_pct", -10.0)
	v.SetDefault("cycles.price_drop.cooldown", "24h")
	v.SetDefault("cycles.price_drop.user_delay", "1s")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.addr", ":9102")
	v.SetDefault("monitor.namespace", "launchalerts")
}

func setServiceDefaults(v *viper.Viper, name string, perMinute, threshold int, recovery string) {
	prefix := "services." + name + "."
	v.SetDefault(prefix+"rate_per_minute", perMinute)
	v.SetDefault(prefix+"failure_threshold", threshold)
	v.SetDefault(prefix+"recovery_timeout", recovery)
	v.SetDefault(prefix+"call_timeout", "10s")
	v.SetDefault(prefix+"max_retries", 3)
	v.SetDefault(prefix+"base_delay", "1s")
	v.SetDefault(prefix+"max_delay", "60s")
	v.SetDefault(prefix+"exponential", true)
	v.SetDefault(prefix+"count_errors", []string{"transient", "timeout"})
	v.SetDefault(prefix+"retry_errors", []string{"transient", "timeout"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	for _, name := range c.ServiceNames() {
		svc := c.Services[name]
		if svc.RatePerMinute <= 0 {
			return fmt.Errorf("services.%s.rate_per_minute must be greater than zero", name)
		}
		if svc.FailureThreshold <= 0 {
			return fmt.Errorf("services.%s.failure_threshold must be greater than zero", name)
		}
		if svc.MaxRetries < 0 {
			return fmt.Errorf("services.%s.max_retries cannot be negative", name)
		}
	}

	cycles := map[string]CycleConfig{
		"market_alert":  c.Cycles.MarketAlert.CycleConfig,
		"launch_event":  c.Cycles.LaunchEvent.CycleConfig,
		"weekly_report": c.Cycles.WeeklyReport.CycleConfig,
		"price_drop":    c.Cycles.PriceDrop.CycleConfig,
	}
	for name, cycle := range cycles {
		if cycle.Enabled && cycle.Interval <= 0 {
			return fmt.Errorf("cycles.%s.interval must be greater than zero", name)
		}
	}

	if c.Cycles.LaunchEvent.DaysBefore < 0 {
		return fmt.Errorf("cycles.launch_event.days_before cannot be negative")
	}
	if _, err := c.Cycles.WeeklyReport.Weekday(); err != nil {
		return err
	}
	if h := c.Cycles.WeeklyReport.Hour; h < 0 || h > 23 {
		return fmt.Errorf("cycles.weekly_report.hour must be within 0-23")
	}
	if c.Cycles.PriceDrop.ThresholdPct >= 0 {
		return fmt.Errorf("cycles.price_drop.threshold_pct must be negative")
	}

	for i, entry := range c.Events.Calendar {
		if strings.TrimSpace(entry.Asset) == "" {
			return fmt.Errorf("events.calendar[%d].asset 必须配置", i)
		}
		if _, err := ParseEventDate(entry.Date); err != nil {
			return fmt.Errorf("events.calendar[%d].date: %w", i, err)
		}
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token 必须配置")
	}
	if c.Monitor.Enabled && c.Monitor.Addr == "" {
		return fmt.Errorf("monitor.addr must be set when monitor is enabled")
	}
	return nil
}

// ServiceNames lists configured services in sorted order.
func (c *Config) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Weekday parses the configured report day.
func (w WeeklyReportConfig) Weekday() (time.Weekday, error) {
	day := strings.ToLower(strings.TrimSpace(w.Day))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == day {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("cycles.weekly_report.day %q is not a weekday name", w.Day)
}

// ParseEventDate accepts RFC3339 timestamps or YYYY-MM-DD dates (UTC).
func ParseEventDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
	}
	return t.UTC(), nil
}
