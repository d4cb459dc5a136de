package app

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"launch-alerts/internal/config"
)

func testApp(t *testing.T) *App {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Database.DSN = ""
	cfg.Telegram.Enabled = false
	return NewApp(cfg, zerolog.Nop())
}

func TestShowWithoutDatabase(t *testing.T) {
	a := testApp(t)

	var out bytes.Buffer
	if err := a.Show(context.Background(), ShowOptions{Limit: 5}, &out); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out.String(), "no alerts found") {
		t.Fatalf("unexpected output: %q", out.String())
	}

	out.Reset()
	if err := a.Show(context.Background(), ShowOptions{Events: true, Days: 7}, &out); err != nil {
		t.Fatalf("show events: %v", err)
	}
	if !strings.Contains(out.String(), "no upcoming events") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestRunOncePrintsCounts(t *testing.T) {
	a := testApp(t)

	var out bytes.Buffer
	if err := a.RunOnce(context.Background(), "market_alert", &out); err != nil {
		t.Fatalf("run once: %v", err)
	}
	want := "market_alert: candidates=0 sent=0 skipped=0 failed=0"
	if !strings.Contains(out.String(), want) {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
}

func TestRunOnceUnknownCycle(t *testing.T) {
	a := testApp(t)
	if err := a.RunOnce(context.Background(), "hourly_digest", &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown cycle")
	}
}

func TestNewExecutorRegistersConfiguredServices(t *testing.T) {
	a := testApp(t)
	exec, err := a.newExecutor()
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	registered := strings.Join(exec.Registry().Services(), ",")
	for _, name := range []string{config.ServiceMarketData, config.ServiceDexData, config.ServiceTelegram} {
		if !strings.Contains(registered, name) {
			t.Fatalf("service %s not registered in %s", name, registered)
		}
	}
}

func TestNewCalendarRejectsBadDate(t *testing.T) {
	a := testApp(t)
	a.Config.Events.Calendar = []config.CalendarEntry{{Asset: "ARB", Type: "unlock", Date: "next week"}}
	if _, err := a.newCalendar(); err == nil {
		t.Fatal("expected date parse error")
	}
}

func TestSimulateAlertValidatesInput(t *testing.T) {
	a := testApp(t)
	err := a.SimulateAlert(context.Background(), SimulateOptions{Ticker: "BTC"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for missing chat id")
	}
}
