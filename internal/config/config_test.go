package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	if got := cfg.Cycles.MarketAlert.Interval; got != 2*time.Hour {
		t.Fatalf("market alert interval = %s", got)
	}
	if got := cfg.Cycles.MarketAlert.ScoreThreshold; got != 70 {
		t.Fatalf("score threshold = %v", got)
	}
	if got := cfg.Cycles.LaunchEvent.ErrorBackoff; got != 10*time.Minute {
		t.Fatalf("launch backoff = %s", got)
	}
	if got := cfg.Cycles.PriceDrop.ThresholdPct; got != -10 {
		t.Fatalf("price drop threshold = %v", got)
	}
	day, err := cfg.Cycles.WeeklyReport.Weekday()
	if err != nil || day != time.Monday {
		t.Fatalf("weekday = %v, %v", day, err)
	}

	svc, ok := cfg.Services[ServiceMarketData]
	if !ok {
		t.Fatalf("market_data profile missing")
	}
	if svc.RatePerMinute != 50 || svc.FailureThreshold != 5 || svc.RecoveryTimeout != time.Minute {
		t.Fatalf("unexpected market_data profile: %+v", svc)
	}
	if len(svc.CountErrors) != 2 {
		t.Fatalf("count_errors = %v", svc.CountErrors)
	}
	if names := cfg.ServiceNames(); len(names) != 3 || names[0] != ServiceDexData {
		t.Fatalf("service names = %v", names)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
services:
  dex_data:
    rate_per_minute: 30
    count_errors: [any]
cycles:
  weekly_report:
    day: friday
    hour: 18
events:
  calendar:
    - asset: ARB
      type: token_unlock
      date: "2026-03-16"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LAUNCHALERTS_CYCLES_PRICE_DROP_INTERVAL", "15m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	dex := cfg.Services[ServiceDexData]
	if dex.RatePerMinute != 30 {
		t.Fatalf("dex rate = %d", dex.RatePerMinute)
	}
	if dex.FailureThreshold != 10 {
		t.Fatalf("dex threshold default lost: %d", dex.FailureThreshold)
	}
	if len(dex.CountErrors) != 1 || dex.CountErrors[0] != "any" {
		t.Fatalf("dex count_errors = %v", dex.CountErrors)
	}
	if cfg.Cycles.PriceDrop.Interval != 15*time.Minute {
		t.Fatalf("env override ignored: %s", cfg.Cycles.PriceDrop.Interval)
	}
	if day, _ := cfg.Cycles.WeeklyReport.Weekday(); day != time.Friday {
		t.Fatalf("weekday = %v", day)
	}
	if len(cfg.Events.Calendar) != 1 || cfg.Events.Calendar[0].Asset != "ARB" {
		t.Fatalf("calendar = %+v", cfg.Events.Calendar)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	bad := *cfg
	bad.Cycles.PriceDrop.ThresholdPct = 5
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected positive drop threshold to fail")
	}

	bad = *cfg
	bad.Cycles.WeeklyReport.Day = "someday"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected bad weekday to fail")
	}

	bad = *cfg
	bad.Telegram.Enabled = true
	bad.Telegram.BotToken = ""
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected missing bot token to fail")
	}

	bad = *cfg
	bad.Events.Calendar = []CalendarEntry{{Asset: "OP", Date: "next week"}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected bad calendar date to fail")
	}
}

func TestParseEventDate(t *testing.T) {
	got, err := ParseEventDate("2026-03-16T12:00:00+02:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Hour() != 10 || got.Location() != time.UTC {
		t.Fatalf("expected UTC conversion, got %s", got)
	}
}
