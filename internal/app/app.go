package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"launch-alerts/internal/alerting"
	"launch-alerts/internal/config"
	"launch-alerts/internal/fetcher"
	"launch-alerts/internal/monitor"
	"launch-alerts/internal/resilience"
	"launch-alerts/internal/service"
	"launch-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	log zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger, log: logger.With().Str("component", "app").Logger()}
}

// repository is a store that can also take advisory locks.
type repository interface {
	storage.Repository
	storage.AdvisoryLocker
}

// openStore connects to PostgreSQL, or falls back to the in-memory store
// when no DSN is configured.
func (a *App) openStore(ctx context.Context) (repository, func(), error) {
	if a.Config.Database.DSN == "" {
		a.log.Warn().Msg("database.dsn not configured; using in-memory store")
		return storage.NewMemoryStore(), func() {}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	return store, store.Close, nil
}

func (a *App) newExecutor() (*resilience.Executor, error) {
	profiles := make([]resilience.ServiceProfile, 0, len(a.Config.Services))
	for _, name := range a.Config.ServiceNames() {
		svc := a.Config.Services[name]
		profiles = append(profiles, resilience.ServiceProfile{
			Name:             name,
			RatePerMinute:    svc.RatePerMinute,
			FailureThreshold: svc.FailureThreshold,
			RecoveryTimeout:  svc.RecoveryTimeout,
			CallTimeout:      svc.CallTimeout,
			MaxRetries:       svc.MaxRetries,
			BaseDelay:        svc.BaseDelay,
			MaxDelay:         svc.MaxDelay,
			Exponential:      svc.Exponential,
			CountErrors:      svc.CountErrors,
			RetryErrors:      svc.RetryErrors,
		})
	}
	registry, err := resilience.NewRegistry(profiles, a.Logger)
	if err != nil {
		return nil, err
	}
	return resilience.NewExecutor(registry, resilience.NewHealthRegistry(), a.Logger), nil
}

func (a *App) newFetchers() (*fetcher.Market, *fetcher.Dex) {
	market := fetcher.NewMarket(fetcher.MarketOptions{
		BaseURL:   a.Config.Providers.Market.BaseURL,
		APIKey:    a.Config.Providers.Market.APIKey,
		Timeout:   a.Config.Providers.Market.Timeout,
		UserAgent: a.Config.Providers.Market.UserAgent,
		Service:   config.ServiceMarketData,
	}, a.Logger)

	dex := fetcher.NewDex(fetcher.DexOptions{
		BaseURL:   a.Config.Providers.Dex.BaseURL,
		Timeout:   a.Config.Providers.Dex.Timeout,
		UserAgent: a.Config.Providers.Dex.UserAgent,
		Service:   config.ServiceDexData,
	}, a.Logger)

	return market, dex
}

func (a *App) newCalendar() (*fetcher.Calendar, error) {
	events := make([]fetcher.Event, 0, len(a.Config.Events.Calendar))
	for i, entry := range a.Config.Events.Calendar {
		date, err := config.ParseEventDate(entry.Date)
		if err != nil {
			return nil, fmt.Errorf("events.calendar[%d]: %w", i, err)
		}
		events = append(events, fetcher.Event{
			Asset:       entry.Asset,
			Type:        entry.Type,
			Date:        date,
			Description: entry.Description,
		})
	}
	return fetcher.NewCalendar(events), nil
}

func (a *App) newMessenger() alerting.Messenger {
	cfg := a.Config.Telegram
	if cfg.Enabled {
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.APIBase, cfg.RequestTimeout, a.Logger)
	}
	a.log.Warn().Msg("telegram disabled; messages will only be logged")
	return alerting.NewLogMessenger(a.Logger)
}

// runtime holds everything a cycle needs.
type runtime struct {
	svc     *service.Service
	exec    *resilience.Executor
	metrics *prometheus.Registry
	close   func()
}

func (a *App) build(ctx context.Context) (*runtime, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	exec, err := a.newExecutor()
	if err != nil {
		closeStore()
		return nil, err
	}
	calendar, err := a.newCalendar()
	if err != nil {
		closeStore()
		return nil, err
	}
	market, dex := a.newFetchers()

	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(a.Config.Monitor.Namespace)
	if err := metrics.Register(reg); err != nil {
		closeStore()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	reg.MustRegister(
		resilience.NewCollector(a.Config.Monitor.Namespace, exec),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := service.New(a.Config, service.Deps{
		Store:     store,
		Exec:      exec,
		Market:    market,
		Dex:       dex,
		Events:    calendar,
		Messenger: a.newMessenger(),
		Locker:    store,
		Metrics:   metrics,
	}, a.Logger)
	if err != nil {
		closeStore()
		return nil, err
	}

	return &runtime{svc: svc, exec: exec, metrics: reg, close: closeStore}, nil
}

// Run executes the long-running alert service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	g, gctx := errgroup.WithContext(ctx)
	if a.Config.Monitor.Enabled {
		srv := monitor.NewServer(a.Config.Monitor.Addr, monitor.Sources{
			Health: rt.exec.Snapshot,
			Cycles: rt.svc.States,
		}, rt.metrics, a.Logger)
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error { return rt.svc.Run(gctx) })

	a.log.Info().Strs("cycles", rt.svc.Cycles()).Msg("starting alert service")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.log.Info().Msg("alert service stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Events bool
	Days   int
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	ChatID int64
	Ticker string
	IsMeme bool
}
