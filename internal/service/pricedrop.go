package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"launch-alerts/internal/alerting"
	"launch-alerts/internal/scheduler"
	"launch-alerts/internal/storage"
)

// priceDropPass refreshes every position's price and alerts on drops past
// the configured threshold, at most once per cooldown per asset.
func (s *Service) priceDropPass(ctx context.Context) (scheduler.Stats, error) {
	cache := newMarketCache()
	threshold := decimal.NewFromFloat(s.cfg.PriceDrop.ThresholdPct)
	return scheduler.Batch[int64]{
		Candidates: s.activeUsers,
		Handle: func(ctx context.Context, userID int64) (scheduler.Stats, error) {
			return s.priceDropUser(ctx, cache, threshold, userID)
		},
		Key:   userKey,
		Abort: storage.IsError,
		Delay: s.cfg.PriceDrop.UserDelay,
		Sleep: s.sleep,
	}.Pass(ctx)
}

func (s *Service) priceDropUser(ctx context.Context, cache *marketCache, threshold decimal.Decimal, userID int64) (scheduler.Stats, error) {
	positions, err := s.deps.Store.GetPositions(ctx, userID)
	if err != nil {
		return scheduler.Stats{}, err
	}
	log := zerolog.Ctx(ctx).With().Int64("user_id", userID).Logger()
	return scheduler.Batch[storage.Position]{
		Candidates: func(context.Context) ([]storage.Position, error) { return positions, nil },
		Handle: func(ctx context.Context, pos storage.Position) (scheduler.Stats, error) {
			return s.checkPosition(ctx, cache, threshold, pos)
		},
		Key:   func(pos storage.Position) string { return pos.Asset },
		Abort: storage.IsError,
		Sleep: s.sleep,
	}.Pass(log.WithContext(ctx))
}

func (s *Service) checkPosition(ctx context.Context, cache *marketCache, threshold decimal.Decimal, pos storage.Position) (scheduler.Stats, error) {
	log := zerolog.Ctx(ctx)

	md, err := s.fetchMarket(ctx, cache, pos.Asset)
	if err != nil {
		return scheduler.Stats{}, err
	}
	if md == nil || !md.Price.IsPositive() {
		log.Debug().Str("asset", pos.Asset).Msg("no price; skipping")
		return scheduler.Stats{Skipped: 1}, nil
	}

	updated, err := s.deps.Store.UpdatePositionPrice(ctx, pos.UserID, pos.Asset, md.Price)
	if err != nil {
		return scheduler.Stats{}, err
	}
	if updated.ProfitLossPct.GreaterThan(threshold) {
		return scheduler.Stats{Skipped: 1}, nil
	}

	last, found, err := s.deps.Store.LastAlert(ctx, pos.UserID, pos.Asset, storage.AlertPriceDrop)
	if err != nil {
		return scheduler.Stats{}, err
	}
	if found && s.now().Sub(last) < s.cfg.PriceDrop.Cooldown {
		log.Debug().Str("asset", pos.Asset).Time("last_alert", last).Msg("price drop alert cooling down")
		return scheduler.Stats{Skipped: 1}, nil
	}

	text := alerting.RenderPriceDrop(updated)
	if err := s.send(ctx, pos.UserID, text); err != nil {
		return scheduler.Stats{}, err
	}
	if err := s.record(ctx, pos.UserID, pos.Asset, storage.AlertPriceDrop, text); err != nil {
		return scheduler.Stats{Sent: 1}, err
	}

	log.Info().Str("asset", pos.Asset).Str("change_pct", updated.ProfitLossPct.StringFixed(2)).Msg("price drop alert sent")
	return scheduler.Stats{Sent: 1}, nil
}
