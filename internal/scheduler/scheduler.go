package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrAlreadyRunning is returned by RunOnce while a pass of the same cycle is in flight.
	ErrAlreadyRunning = errors.New("cycle already running")
	// ErrLockHeld is returned when another replica holds the cycle's advisory lock.
	ErrLockHeld = errors.New("cycle lock held elsewhere")
)

// PassFunc executes one pass of a cycle.
type PassFunc func(ctx context.Context) (Stats, error)

// Locker guards a pass across processes.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Options tune cycle behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	ErrorBackoff time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	LockKey      int64
}

// CycleState is the observable state of one cycle.
type CycleState struct {
	Interval time.Duration
	LastRun  time.Time
	LastErr  error
	Running  bool
}

// Runner drives one cycle: Idle -> Running -> Sleeping -> Idle, until ctx is cancelled.
type Runner struct {
	opts   Options
	pass   PassFunc
	logger zerolog.Logger

	locker Locker
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	onPass func(name string, stats Stats, err error, took time.Duration)

	mu    sync.Mutex
	state CycleState
}

// New constructs a Runner instance.
func New(opts Options, pass PassFunc, logger zerolog.Logger) *Runner {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = opts.Interval
	}
	return &Runner{
		opts:   opts,
		pass:   pass,
		logger: logger.With().Str("component", "scheduler").Str("cycle", opts.Name).Logger(),
		sleep:  Sleep,
		now:    time.Now,
		state:  CycleState{Interval: opts.Interval},
	}
}

// WithLocker makes every pass take the advisory lock at opts.LockKey first.
func (r *Runner) WithLocker(l Locker) *Runner {
	r.locker = l
	return r
}

// WithSleep replaces the interruptible sleep.
func (r *Runner) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Runner {
	r.sleep = sleep
	return r
}

// WithClock replaces the wall clock used for alignment.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// OnPass registers an observer invoked after every completed pass.
func (r *Runner) OnPass(fn func(name string, stats Stats, err error, took time.Duration)) *Runner {
	r.onPass = fn
	return r
}

// Name returns the cycle name.
func (r *Runner) Name() string { return r.opts.Name }

// State returns a copy of the cycle state.
func (r *Runner) State() CycleState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run blocks, executing passes until ctx is cancelled. A failed pass is
// followed by ErrorBackoff instead of Interval.
func (r *Runner) Run(ctx context.Context) error {
	if r.opts.StartupDelay > 0 {
		if err := r.sleep(ctx, r.opts.StartupDelay); err != nil {
			return err
		}
	}
	if r.opts.AlignToStart {
		if err := r.sleep(ctx, r.untilNextTick()); err != nil {
			return err
		}
	}

	r.logger.Info().Dur("interval", r.opts.Interval).Dur("error_backoff", r.opts.ErrorBackoff).Msg("cycle started")
	for {
		_, err := r.RunOnce(ctx)
		if ctx.Err() != nil {
			r.logger.Info().Msg("cycle stopped")
			return ctx.Err()
		}

		wait := r.opts.Interval
		switch {
		case err == nil, errors.Is(err, ErrAlreadyRunning), errors.Is(err, ErrLockHeld):
			if r.opts.AlignToStart {
				wait = r.untilNextTick()
			}
		default:
			wait = r.opts.ErrorBackoff
			r.logger.Warn().Dur("backoff", wait).Msg("pass failed, backing off")
		}

		r.logger.Debug().Dur("sleep", wait).Msg("waiting for next pass")
		if err := r.sleep(ctx, wait); err != nil {
			r.logger.Info().Msg("cycle stopped")
			return err
		}
	}
}

// RunOnce executes a single pass. Panics are recovered and returned as errors.
func (r *Runner) RunOnce(ctx context.Context) (stats Stats, err error) {
	if !r.tryStart() {
		r.logger.Warn().Msg("previous pass still running; skipping")
		return Stats{}, ErrAlreadyRunning
	}

	passID := uuid.NewString()
	log := r.logger.With().Str("pass_id", passID).Logger()
	ctx = log.WithContext(ctx)
	started := r.now()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s pass panicked: %v", r.opts.Name, rec)
		}
		took := r.now().Sub(started)
		r.finish(started, err)

		switch {
		case errors.Is(err, ErrLockHeld):
			log.Debug().Msg("skip pass because advisory lock held elsewhere")
		case err != nil:
			log.Error().Err(err).Int("candidates", stats.Candidates).Int("sent", stats.Sent).
				Int("skipped", stats.Skipped).Int("failed", stats.Failed).Dur("duration", took).Msg("pass aborted")
		default:
			log.Info().Int("candidates", stats.Candidates).Int("sent", stats.Sent).
				Int("skipped", stats.Skipped).Int("failed", stats.Failed).Dur("duration", took).Msg("pass completed")
		}
		if r.onPass != nil && !errors.Is(err, ErrLockHeld) {
			r.onPass(r.opts.Name, stats, err, took)
		}
	}()

	unlock, err := r.acquireLock(ctx)
	if err != nil {
		return Stats{}, err
	}
	if unlock != nil {
		defer unlock()
	}

	return r.pass(ctx)
}

func (r *Runner) tryStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Running {
		return false
	}
	r.state.Running = true
	return true
}

func (r *Runner) finish(started time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Running = false
	r.state.LastRun = started
	r.state.LastErr = err
}

func (r *Runner) acquireLock(ctx context.Context) (func(), error) {
	if r.locker == nil || r.opts.LockKey == 0 {
		return nil, nil
	}
	unlock, acquired, err := r.locker.TryAdvisoryLock(ctx, r.opts.LockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}
	return unlock, nil
}

func (r *Runner) untilNextTick() time.Duration {
	now := r.now().UTC()
	next := now.Truncate(r.opts.Interval)
	if !next.After(now) {
		next = next.Add(r.opts.Interval)
	}
	return next.Sub(now)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
