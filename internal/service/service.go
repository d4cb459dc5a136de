// Package service wires the four alert cycles onto the scheduler.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"launch-alerts/internal/alerting"
	"launch-alerts/internal/config"
	"launch-alerts/internal/fetcher"
	"launch-alerts/internal/report"
	"launch-alerts/internal/resilience"
	"launch-alerts/internal/scheduler"
	"launch-alerts/internal/scoring"
	"launch-alerts/internal/storage"
)

// Cycle names.
const (
	CycleMarketAlert  = "market_alert"
	CycleLaunchEvent  = "launch_event"
	CycleWeeklyReport = "weekly_report"
	CyclePriceDrop    = "price_drop"
)

// Deps are the collaborators shared by every cycle. Dex, Events, Scorer,
// Analyzer, Locker and Metrics are optional.
type Deps struct {
	Store     storage.Repository
	Exec      *resilience.Executor
	Market    fetcher.MarketDataFetcher
	Dex       fetcher.DexDataFetcher
	Events    fetcher.EventSource
	Messenger alerting.Messenger
	Scorer    scoring.Scorer
	Analyzer  scoring.LaunchAnalyzer
	Locker    scheduler.Locker
	Metrics   *Metrics
}

// Service orchestrates the alert cycles.
type Service struct {
	cfg       config.CyclesConfig
	retention time.Duration
	deps      Deps
	reports   *report.Generator
	reportDay time.Weekday
	logger    zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	runners []*scheduler.Runner
	enabled map[string]bool
}

// New constructs the alert service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("service: store is required")
	case deps.Exec == nil:
		return nil, errors.New("service: executor is required")
	case deps.Market == nil:
		return nil, errors.New("service: market fetcher is required")
	case deps.Messenger == nil:
		return nil, errors.New("service: messenger is required")
	}
	if deps.Scorer == nil {
		deps.Scorer = scoring.Heuristic{}
	}
	if deps.Analyzer == nil {
		deps.Analyzer = scoring.LaunchHeuristic{}
	}

	day, err := cfg.Cycles.WeeklyReport.Weekday()
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg.Cycles,
		retention: cfg.App.AlertRetention,
		deps:      deps,
		reports:   report.NewGenerator(deps.Store, day, cfg.Cycles.WeeklyReport.Hour),
		reportDay: day,
		logger:    logger.With().Str("component", "service").Logger(),
		now:       time.Now,
		sleep:     scheduler.Sleep,
		enabled:   make(map[string]bool),
	}

	base := cfg.Database.AdvisoryLockBase
	cycles := []struct {
		name string
		cc   config.CycleConfig
		pass scheduler.PassFunc
	}{
		{CycleMarketAlert, cfg.Cycles.MarketAlert.CycleConfig, s.marketPass},
		{CycleLaunchEvent, cfg.Cycles.LaunchEvent.CycleConfig, s.launchPass},
		{CycleWeeklyReport, cfg.Cycles.WeeklyReport.CycleConfig, s.weeklyPass},
		{CyclePriceDrop, cfg.Cycles.PriceDrop.CycleConfig, s.priceDropPass},
	}
	for i, c := range cycles {
		opts := scheduler.Options{
			Name:         c.name,
			Interval:     c.cc.Interval,
			ErrorBackoff: c.cc.ErrorBackoff,
			AlignToStart: c.cc.Align,
			StartupDelay: c.cc.StartupDelay,
		}
		if base != 0 {
			opts.LockKey = base + int64(i+1)
		}
		r := scheduler.New(opts, c.pass, logger)
		if deps.Locker != nil {
			r.WithLocker(deps.Locker)
		}
		if deps.Metrics != nil {
			r.OnPass(deps.Metrics.Observe)
		}
		s.runners = append(s.runners, r)
		s.enabled[c.name] = c.cc.Enabled
	}
	return s, nil
}

// WithClock replaces the clock used by every cycle.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.reports.WithClock(now)
	for _, r := range s.runners {
		r.WithClock(now)
	}
	return s
}

// WithSleep replaces the interruptible sleep used for cycle waits and
// courtesy delays.
func (s *Service) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Service {
	s.sleep = sleep
	for _, r := range s.runners {
		r.WithSleep(sleep)
	}
	return s
}

// Cycles returns every cycle name in start order.
func (s *Service) Cycles() []string {
	names := make([]string, 0, len(s.runners))
	for _, r := range s.runners {
		names = append(names, r.Name())
	}
	return names
}

// States reports the state of each cycle.
func (s *Service) States() map[string]scheduler.CycleState {
	out := make(map[string]scheduler.CycleState, len(s.runners))
	for _, r := range s.runners {
		out[r.Name()] = r.State()
	}
	return out
}

// Run starts every enabled cycle and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	started := 0
	for _, r := range s.runners {
		if !s.enabled[r.Name()] {
			s.logger.Info().Str("cycle", r.Name()).Msg("cycle disabled")
			continue
		}
		g.Go(func() error { return r.Run(gctx) })
		started++
	}
	if started == 0 {
		return errors.New("no cycles enabled")
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// RunOnce executes a single pass of the named cycle, enabled or not.
func (s *Service) RunOnce(ctx context.Context, cycle string) (scheduler.Stats, error) {
	for _, r := range s.runners {
		if r.Name() == cycle {
			return r.RunOnce(ctx)
		}
	}
	return scheduler.Stats{}, fmt.Errorf("unknown cycle %q", cycle)
}

// send delivers text to a user through the messaging gateway's guard.
func (s *Service) send(ctx context.Context, userID int64, text string) error {
	return s.deps.Exec.Execute(ctx, config.ServiceTelegram, func(ctx context.Context) error {
		return s.deps.Messenger.SendMessage(ctx, userID, text)
	})
}

// record writes the alert log entry for a delivered message.
func (s *Service) record(ctx context.Context, userID int64, ticker, kind, text string) error {
	_, err := s.deps.Store.InsertAlert(ctx, storage.AlertRecord{
		UserID:    userID,
		Ticker:    ticker,
		AlertType: kind,
		Message:   text,
		CreatedAt: s.now().UTC(),
	})
	return err
}

// marketCache memoises provider lookups for the duration of one pass so a
// ticker watched by many users is fetched once.
type marketCache struct {
	market map[string]*fetcher.MarketData
	dex    map[string]*fetcher.DexData
}

func newMarketCache() *marketCache {
	return &marketCache{
		market: make(map[string]*fetcher.MarketData),
		dex:    make(map[string]*fetcher.DexData),
	}
}

func (s *Service) fetchMarket(ctx context.Context, cache *marketCache, ticker string) (*fetcher.MarketData, error) {
	if md, ok := cache.market[ticker]; ok {
		return md, nil
	}
	md, err := resilience.Call(ctx, s.deps.Exec, config.ServiceMarketData, func(ctx context.Context) (*fetcher.MarketData, error) {
		return s.deps.Market.FetchMarketData(ctx, ticker)
	})
	if err != nil {
		return nil, err
	}
	cache.market[ticker] = md
	return md, nil
}

func (s *Service) fetchDex(ctx context.Context, cache *marketCache, ticker string) (*fetcher.DexData, error) {
	if s.deps.Dex == nil {
		return nil, nil
	}
	if dd, ok := cache.dex[ticker]; ok {
		return dd, nil
	}
	dd, err := resilience.Call(ctx, s.deps.Exec, config.ServiceDexData, func(ctx context.Context) (*fetcher.DexData, error) {
		return s.deps.Dex.FetchDexData(ctx, ticker)
	})
	if err != nil {
		return nil, err
	}
	cache.dex[ticker] = dd
	return dd, nil
}

func (s *Service) activeUsers(ctx context.Context) ([]int64, error) {
	return s.deps.Store.ListActiveUsers(ctx)
}

func userKey(id int64) string { return fmt.Sprintf("user:%d", id) }
