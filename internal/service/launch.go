package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"launch-alerts/internal/alerting"
	"launch-alerts/internal/scheduler"
	"launch-alerts/internal/scoring"
	"launch-alerts/internal/storage"
)

// launchPass syncs upcoming events for all watched tickers, then announces
// the events that fall due today to every user watching the asset.
func (s *Service) launchPass(ctx context.Context) (scheduler.Stats, error) {
	if err := s.syncEvents(ctx); err != nil {
		return scheduler.Stats{}, fmt.Errorf("sync events: %w", err)
	}

	cache := newMarketCache()
	return scheduler.Batch[storage.LaunchEvent]{
		Candidates: func(ctx context.Context) ([]storage.LaunchEvent, error) {
			return s.deps.Store.GetDueEvents(ctx, s.cfg.LaunchEvent.DaysBefore)
		},
		Handle: func(ctx context.Context, ev storage.LaunchEvent) (scheduler.Stats, error) {
			return s.announceEvent(ctx, cache, ev)
		},
		Key:   eventKey,
		Abort: storage.IsError,
		Sleep: s.sleep,
	}.Pass(ctx)
}

// syncEvents stores future events for the union of all watchlists. A failing
// source only skips its ticker; storage failures abort.
func (s *Service) syncEvents(ctx context.Context) error {
	if s.deps.Events == nil {
		return nil
	}
	log := zerolog.Ctx(ctx)

	tickers, err := s.watchedTickers(ctx)
	if err != nil {
		return err
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	inserted := 0
	for _, ticker := range tickers {
		events, err := s.deps.Events.UpcomingEvents(ctx, ticker)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Str("ticker", ticker).Msg("event source failed; skipping ticker")
			continue
		}
		for _, ev := range events {
			if ev.Date.Before(today) {
				continue
			}
			ok, err := s.deps.Store.SaveEvent(ctx, storage.LaunchEvent{
				Asset:       strings.ToUpper(ev.Asset),
				EventType:   ev.Type,
				EventDate:   ev.Date.UTC(),
				Description: ev.Description,
				Source:      ev.Source,
			})
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
	}
	log.Debug().Int("tickers", len(tickers)).Int("inserted", inserted).Msg("events synced")
	return nil
}

// watchedTickers returns the deduplicated tickers of every active user in
// first-seen order.
func (s *Service) watchedTickers(ctx context.Context) ([]string, error) {
	users, err := s.activeUsers(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var tickers []string
	for _, id := range users {
		items, err := s.deps.Store.GetWatchlist(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if !seen[item.Ticker] {
				seen[item.Ticker] = true
				tickers = append(tickers, item.Ticker)
			}
		}
	}
	return tickers, nil
}

// announceEvent analyses one due event, sends it to every watcher and then
// marks it notified. The flag is checked first and set only after all sends
// so a re-entered pass cannot deliver it twice. An alert log failure is
// returned only after the flag is set.
func (s *Service) announceEvent(ctx context.Context, cache *marketCache, ev storage.LaunchEvent) (scheduler.Stats, error) {
	log := zerolog.Ctx(ctx).With().Int64("event_id", ev.ID).Str("asset", ev.Asset).Logger()

	notified, err := s.deps.Store.IsEventNotified(ctx, ev.ID)
	if err != nil {
		return scheduler.Stats{}, err
	}
	if notified {
		return scheduler.Stats{Skipped: 1}, nil
	}

	watchers, meme, err := s.watchers(ctx, ev.Asset)
	if err != nil {
		return scheduler.Stats{}, err
	}

	in := scoring.Input{Ticker: ev.Asset, IsMeme: meme}
	if in.Market, err = s.fetchMarket(ctx, cache, ev.Asset); err != nil {
		log.Warn().Err(err).Msg("market data unavailable; analysing without it")
	}
	if meme {
		if in.Dex, err = s.fetchDex(ctx, cache, ev.Asset); err != nil {
			log.Warn().Err(err).Msg("dex data unavailable; analysing without it")
		}
	}

	analysis, err := s.deps.Analyzer.Analyze(ev, in)
	if err != nil {
		return scheduler.Stats{}, err
	}
	if err := s.deps.Store.UpdateEventAnalysis(ctx, ev.ID, analysis.Record()); err != nil {
		return scheduler.Stats{}, err
	}

	// Once sending starts the event runs to completion, including the
	// notified flag, even if shutdown begins.
	ctx = context.WithoutCancel(ctx)
	text := alerting.RenderLaunchEvent(ev, analysis)
	var (
		stats     scheduler.Stats
		recordErr error
	)
	for i, userID := range watchers {
		if i > 0 && s.cfg.LaunchEvent.UserDelay > 0 {
			if err := s.sleep(ctx, s.cfg.LaunchEvent.UserDelay); err != nil {
				return stats, err
			}
		}
		if err := s.send(ctx, userID, text); err != nil {
			stats.Failed++
			scheduler.LogCandidateError(&log, err, userKey(userID))
			continue
		}
		stats.Sent++
		// A failed alert log write must not keep the event from being marked.
		if err := s.record(ctx, userID, ev.Asset, storage.AlertLaunchEvent, text); err != nil && recordErr == nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("failed to record launch alert")
			recordErr = err
		}
	}
	if len(watchers) == 0 {
		stats.Skipped++
	}

	if err := s.deps.Store.MarkEventNotified(ctx, ev.ID); err != nil {
		if errors.Is(err, storage.ErrAlreadyNotified) {
			log.Warn().Msg("event already marked notified by another pass")
			return stats, recordErr
		}
		return stats, err
	}
	log.Info().Int("sent", stats.Sent).Int("failed", stats.Failed).Msg("launch event announced")
	return stats, recordErr
}

// watchers re-reads every active user's watchlist and returns those watching
// asset, plus whether any of them flagged it as a meme coin.
func (s *Service) watchers(ctx context.Context, asset string) ([]int64, bool, error) {
	users, err := s.activeUsers(ctx)
	if err != nil {
		return nil, false, err
	}
	var (
		out  []int64
		meme bool
	)
	for _, id := range users {
		items, err := s.deps.Store.GetWatchlist(ctx, id)
		if err != nil {
			return nil, false, err
		}
		for _, item := range items {
			if strings.EqualFold(item.Ticker, asset) {
				out = append(out, id)
				meme = meme || item.IsMeme
				break
			}
		}
	}
	return out, meme, nil
}

func eventKey(ev storage.LaunchEvent) string {
	return fmt.Sprintf("%s/%s#%d", ev.Asset, ev.EventType, ev.ID)
}
