package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"launch-alerts/internal/resilience"
)

// Stats counts candidate outcomes for one pass.
type Stats struct {
	Candidates int
	Sent       int
	Skipped    int
	Failed     int
}

// Add accumulates o into s. Candidates is left alone.
func (s *Stats) Add(o Stats) {
	s.Sent += o.Sent
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// Batch processes a candidate list with per-candidate failure isolation.
type Batch[T any] struct {
	// Candidates lists the work for this pass; an error aborts the pass.
	Candidates func(ctx context.Context) ([]T, error)
	// Handle processes one candidate and reports what it did. A returned
	// error marks the candidate failed unless Abort claims it.
	Handle func(ctx context.Context, item T) (Stats, error)
	// Key names a candidate in log lines.
	Key func(item T) string
	// Abort selects errors that end the whole pass, e.g. storage failures.
	Abort func(err error) bool
	// Delay is a courtesy pause between candidates.
	Delay time.Duration
	Sleep func(ctx context.Context, d time.Duration) error
}

// Pass runs the batch. Candidates are handled in the order returned.
func (b Batch[T]) Pass(ctx context.Context) (Stats, error) {
	var stats Stats
	log := zerolog.Ctx(ctx)

	items, err := b.Candidates(ctx)
	if err != nil {
		return stats, err
	}
	stats.Candidates = len(items)

	sleep := b.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for i, item := range items {
		if i > 0 && b.Delay > 0 {
			if err := sleep(ctx, b.Delay); err != nil {
				return stats, err
			}
		}

		delta, err := b.Handle(ctx, item)
		stats.Add(delta)
		if err == nil {
			continue
		}
		if b.Abort != nil && b.Abort(err) {
			return stats, err
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return stats, err
		}

		stats.Failed++
		LogCandidateError(log, err, b.key(item))
	}
	return stats, nil
}

func (b Batch[T]) key(item T) string {
	if b.Key == nil {
		return ""
	}
	return b.Key(item)
}

// LogCandidateError logs a swallowed per-candidate error. Bad data and open
// breakers are expected and log at warn.
func LogCandidateError(log *zerolog.Logger, err error, key string) {
	ev := log.Error()
	if resilience.IsValidation(err) || resilience.IsUnavailable(err) {
		ev = log.Warn()
	}
	ev.Err(err).Str("candidate", key).Msg("candidate failed; skipping")
}
