package service

import (
	"context"

	"github.com/rs/zerolog"

	"launch-alerts/internal/alerting"
	"launch-alerts/internal/scheduler"
	"launch-alerts/internal/scoring"
	"launch-alerts/internal/storage"
)

// marketPass scores every watchlist entry of every active user and alerts
// on strong signals.
func (s *Service) marketPass(ctx context.Context) (scheduler.Stats, error) {
	cache := newMarketCache()
	return scheduler.Batch[int64]{
		Candidates: s.activeUsers,
		Handle: func(ctx context.Context, userID int64) (scheduler.Stats, error) {
			return s.marketUser(ctx, cache, userID)
		},
		Key:   userKey,
		Abort: storage.IsError,
		Delay: s.cfg.MarketAlert.UserDelay,
		Sleep: s.sleep,
	}.Pass(ctx)
}

func (s *Service) marketUser(ctx context.Context, cache *marketCache, userID int64) (scheduler.Stats, error) {
	items, err := s.deps.Store.GetWatchlist(ctx, userID)
	if err != nil {
		return scheduler.Stats{}, err
	}

	log := zerolog.Ctx(ctx).With().Int64("user_id", userID).Logger()
	stats, err := scheduler.Batch[storage.WatchItem]{
		Candidates: func(context.Context) ([]storage.WatchItem, error) { return items, nil },
		Handle: func(ctx context.Context, item storage.WatchItem) (scheduler.Stats, error) {
			return s.marketTicker(ctx, cache, userID, item)
		},
		Key:   func(item storage.WatchItem) string { return item.Ticker },
		Abort: storage.IsError,
		Delay: s.cfg.MarketAlert.TickerDelay,
		Sleep: s.sleep,
	}.Pass(log.WithContext(ctx))
	if stats.Sent > 0 {
		log.Info().Int("sent", stats.Sent).Msg("market alerts sent")
	}
	return stats, err
}

func (s *Service) marketTicker(ctx context.Context, cache *marketCache, userID int64, item storage.WatchItem) (scheduler.Stats, error) {
	log := zerolog.Ctx(ctx)

	market, marketErr := s.fetchMarket(ctx, cache, item.Ticker)
	if marketErr != nil && !item.IsMeme {
		return scheduler.Stats{}, marketErr
	}

	in := scoring.Input{Ticker: item.Ticker, IsMeme: item.IsMeme, Market: market}
	if item.IsMeme {
		dex, err := s.fetchDex(ctx, cache, item.Ticker)
		switch {
		case err != nil && market == nil:
			if marketErr != nil {
				return scheduler.Stats{}, marketErr
			}
			return scheduler.Stats{}, err
		case err != nil:
			log.Warn().Err(err).Str("ticker", item.Ticker).Msg("dex data unavailable; scoring from market data")
		default:
			in.Dex = dex
		}
	}
	if marketErr != nil {
		if in.Dex == nil {
			return scheduler.Stats{}, marketErr
		}
		log.Warn().Err(marketErr).Str("ticker", item.Ticker).Msg("market data unavailable; scoring from dex data")
	}
	if in.Market == nil && in.Dex == nil {
		log.Debug().Str("ticker", item.Ticker).Msg("no market data; skipping")
		return scheduler.Stats{Skipped: 1}, nil
	}

	res, err := s.deps.Scorer.Score(in)
	if err != nil {
		return scheduler.Stats{}, err
	}
	if float64(res.Score) < s.cfg.MarketAlert.ScoreThreshold {
		return scheduler.Stats{Skipped: 1}, nil
	}

	text := alerting.RenderHighScore(alerting.HighScore{
		Ticker: item.Ticker,
		IsMeme: item.IsMeme,
		Market: in.Market,
		Dex:    in.Dex,
		Result: res,
	})
	if err := s.send(ctx, userID, text); err != nil {
		return scheduler.Stats{}, err
	}
	if err := s.record(ctx, userID, item.Ticker, storage.AlertHighScore, text); err != nil {
		return scheduler.Stats{Sent: 1}, err
	}

	log.Info().Str("ticker", item.Ticker).Int("score", res.Score).Msg("high score alert sent")
	return scheduler.Stats{Sent: 1}, nil
}
