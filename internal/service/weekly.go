package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"launch-alerts/internal/alerting"
	"launch-alerts/internal/scheduler"
	"launch-alerts/internal/storage"
)

// weeklyPass is a no-op outside the configured day and hour. Inside it,
// every active user gets at most one report per day.
func (s *Service) weeklyPass(ctx context.Context) (scheduler.Stats, error) {
	now := s.now().UTC()
	if now.Weekday() != s.reportDay || now.Hour() != s.cfg.WeeklyReport.Hour {
		zerolog.Ctx(ctx).Debug().Str("weekday", now.Weekday().String()).Int("hour", now.Hour()).Msg("not report time")
		return scheduler.Stats{}, nil
	}

	if s.retention > 0 {
		if err := s.deps.Store.DeleteAlertsBefore(ctx, now.Add(-s.retention)); err != nil {
			return scheduler.Stats{}, fmt.Errorf("prune alert log: %w", err)
		}
	}

	return scheduler.Batch[int64]{
		Candidates: s.activeUsers,
		Handle:     s.weeklyUser,
		Key:        userKey,
		Abort:      storage.IsError,
		Delay:      s.cfg.WeeklyReport.UserDelay,
		Sleep:      s.sleep,
	}.Pass(ctx)
}

func (s *Service) weeklyUser(ctx context.Context, userID int64) (scheduler.Stats, error) {
	now := s.now().UTC()
	last, err := s.deps.Store.GetLastReportDate(ctx, userID)
	if err != nil {
		return scheduler.Stats{}, err
	}
	if last != nil && sameDay(*last, now) {
		return scheduler.Stats{Skipped: 1}, nil
	}

	rep, err := s.reports.Generate(ctx, userID)
	if err != nil {
		return scheduler.Stats{}, err
	}
	if !rep.HasPortfolio {
		return scheduler.Stats{Skipped: 1}, nil
	}

	text := alerting.RenderWeeklyReport(rep)
	if err := s.send(ctx, userID, text); err != nil {
		return scheduler.Stats{}, err
	}
	if err := s.deps.Store.MarkReportSent(ctx, userID); err != nil {
		return scheduler.Stats{Sent: 1}, err
	}
	if err := s.record(ctx, userID, "", storage.AlertWeekly, text); err != nil {
		return scheduler.Stats{Sent: 1}, err
	}

	zerolog.Ctx(ctx).Info().Int64("user_id", userID).Int("positions", rep.Positions).Msg("weekly report sent")
	return scheduler.Stats{Sent: 1}, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
