package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launch-alerts/internal/resilience"
)

type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
	stopAt int
	cancel context.CancelFunc
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	n := len(s.delays)
	s.mu.Unlock()
	if n >= s.stopAt {
		s.cancel()
	}
	return ctx.Err()
}

func TestRunnerUsesErrorBackoffAfterFailedPass(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recordingSleep{stopAt: 3, cancel: cancel}

	calls := 0
	pass := func(context.Context) (Stats, error) {
		calls++
		if calls == 2 {
			return Stats{}, errors.New("storage down")
		}
		return Stats{Candidates: 1, Sent: 1}, nil
	}

	r := New(Options{Name: "market_alert", Interval: 2 * time.Hour, ErrorBackoff: 5 * time.Minute}, pass, zerolog.Nop()).WithSleep(rec.sleep)
	err := r.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Hour, 5 * time.Minute, 2 * time.Hour}, rec.delays)
}

func TestRunnerRecoversPanics(t *testing.T) {
	var observed error
	r := New(Options{Name: "price_drop", Interval: time.Minute}, func(context.Context) (Stats, error) {
		panic("nil map")
	}, zerolog.Nop()).OnPass(func(_ string, _ Stats, err error, _ time.Duration) { observed = err })

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, err, observed)
	assert.False(t, r.State().Running)
}

func TestRunnerRejectsReentrantPass(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	r := New(Options{Name: "launch_event", Interval: time.Hour}, func(context.Context) (Stats, error) {
		close(entered)
		<-release
		return Stats{}, nil
	}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := r.RunOnce(context.Background())
		done <- err
	}()
	<-entered

	assert.True(t, r.State().Running)
	_, err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
	state := r.State()
	assert.False(t, state.Running)
	assert.False(t, state.LastRun.IsZero())
}

type fakeLocker struct {
	acquired bool
	unlocked int
}

func (f *fakeLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if !f.acquired {
		return nil, false, nil
	}
	return func() { f.unlocked++ }, true, nil
}

func TestRunnerSkipsWhenLockHeld(t *testing.T) {
	calls := 0
	pass := func(context.Context) (Stats, error) {
		calls++
		return Stats{}, nil
	}
	locker := &fakeLocker{}
	r := New(Options{Name: "weekly_report", Interval: time.Hour, LockKey: 42}, pass, zerolog.Nop()).WithLocker(locker)

	_, err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.Equal(t, 0, calls)

	locker.acquired = true
	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, locker.unlocked)
}

func TestRunnerAlignsToInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recordingSleep{stopAt: 1, cancel: cancel}
	now := time.Date(2026, 3, 2, 8, 45, 0, 0, time.UTC)

	r := New(Options{Name: "weekly_report", Interval: time.Hour, AlignToStart: true}, func(context.Context) (Stats, error) {
		return Stats{}, nil
	}, zerolog.Nop()).WithSleep(rec.sleep).WithClock(func() time.Time { return now })

	require.ErrorIs(t, r.Run(ctx), context.Canceled)
	assert.Equal(t, []time.Duration{15 * time.Minute}, rec.delays)
}

func TestSleepIsInterruptible(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBatchIsolatesCandidateFailures(t *testing.T) {
	var delays []time.Duration
	var handled []string
	b := Batch[string]{
		Candidates: func(context.Context) ([]string, error) {
			return []string{"BTC", "BAD", "DOWN", "ETH"}, nil
		},
		Handle: func(_ context.Context, ticker string) (Stats, error) {
			handled = append(handled, ticker)
			switch ticker {
			case "BAD":
				return Stats{}, resilience.Invalid("ticker", "unknown %s", ticker)
			case "DOWN":
				return Stats{}, resilience.ErrServiceUnavailable
			case "ETH":
				return Stats{Skipped: 1}, nil
			}
			return Stats{Sent: 1}, nil
		},
		Key:   func(s string) string { return s },
		Delay: time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}

	stats, err := b.Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "BAD", "DOWN", "ETH"}, handled)
	assert.Equal(t, Stats{Candidates: 4, Sent: 1, Skipped: 1, Failed: 2}, stats)
	assert.Len(t, delays, 3)
}

func TestBatchAbortsOnSelectedErrors(t *testing.T) {
	errStorage := errors.New("storage: connection refused")
	calls := 0
	b := Batch[int]{
		Candidates: func(context.Context) ([]int, error) { return []int{1, 2, 3}, nil },
		Handle: func(_ context.Context, i int) (Stats, error) {
			calls++
			if i == 2 {
				return Stats{}, errStorage
			}
			return Stats{Sent: 1}, nil
		},
		Abort: func(err error) bool { return errors.Is(err, errStorage) },
	}

	stats, err := b.Pass(context.Background())
	require.ErrorIs(t, err, errStorage)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, stats.Sent)
}

func TestBatchCandidateErrorAbortsPass(t *testing.T) {
	b := Batch[int]{
		Candidates: func(context.Context) ([]int, error) { return nil, errors.New("list users") },
		Handle:     func(context.Context, int) (Stats, error) { t.Fatal("unexpected"); return Stats{}, nil },
	}
	_, err := b.Pass(context.Background())
	assert.Error(t, err)
}
