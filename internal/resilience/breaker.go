package resilience

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerSettings configure one service's breaker.
type BreakerSettings struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	// Counted selects the errors that count as failures. nil counts every error.
	Counted ErrorMatcher
}

// CircuitBreaker fails fast once a service has produced FailureThreshold
// consecutive counted failures. After RecoveryTimeout it lets a single probe
// through: success closes it, a counted failure reopens it. Errors that are
// not counted leave both the failure run and the state untouched.
type CircuitBreaker struct {
	service string
	cb      *gobreaker.TwoStepCircuitBreaker
	counts  ErrorMatcher

	// probing is held by the single half-open trial call.
	probing atomic.Bool
}

// NewCircuitBreaker builds a closed breaker.
func NewCircuitBreaker(service string, s BreakerSettings, logger zerolog.Logger) *CircuitBreaker {
	threshold := s.FailureThreshold
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	timeout := s.RecoveryTimeout
	if timeout <= 0 {
		timeout = defaultRecoveryTimeout
	}
	counted := s.Counted
	if counted == nil {
		counted = func(err error) bool { return err != nil }
	}

	log := logger.With().Str("component", "circuit_breaker").Str("service", service).Logger()
	settings := gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &CircuitBreaker{service: service, cb: gobreaker.NewTwoStepCircuitBreaker(settings), counts: counted}
}

// Call runs op unless the breaker is open or a half-open probe is already in
// flight. Errors from op are returned unchanged.
func (b *CircuitBreaker) Call(op func() error) error {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return b.unavailable()
	case gobreaker.StateHalfOpen:
		return b.probe(op)
	}

	done, err := b.cb.Allow()
	if err != nil {
		return b.unavailable()
	}
	opErr := op()
	switch {
	case opErr == nil:
		done(true)
	case b.counts(opErr):
		done(false)
	}
	return opErr
}

// probe runs the half-open trial call. The outcome is reported to gobreaker
// only once it is known to be a success or a counted failure, so an
// uncounted error keeps the breaker half-open for the next caller.
func (b *CircuitBreaker) probe(op func() error) error {
	if !b.probing.CompareAndSwap(false, true) {
		return b.unavailable()
	}
	defer b.probing.Store(false)

	opErr := op()
	if opErr != nil && !b.counts(opErr) {
		return opErr
	}
	if done, err := b.cb.Allow(); err == nil {
		done(opErr == nil)
	}
	return opErr
}

func (b *CircuitBreaker) unavailable() error {
	return fmt.Errorf("%w: %s circuit %s", ErrServiceUnavailable, b.service, b.cb.State())
}

// State evaluates the recovery timeout lazily, so an expired open breaker
// reports half-open.
func (b *CircuitBreaker) State() gobreaker.State { return b.cb.State() }

// Allowing reports whether a call would currently be let through: the breaker
// is closed, or half-open with no probe in flight.
func (b *CircuitBreaker) Allowing() bool {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return false
	case gobreaker.StateHalfOpen:
		return !b.probing.Load()
	}
	return true
}

// FailureCount is the current run of consecutive counted failures.
func (b *CircuitBreaker) FailureCount() int { return int(b.cb.Counts().ConsecutiveFailures) }

// Service returns the guarded service name.
func (b *CircuitBreaker) Service() string { return b.service }
