package resilience

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Executor is the single call contract for outbound operations.
type Executor struct {
	registry *Registry
	health   *HealthRegistry
	logger   zerolog.Logger
}

// NewExecutor registers every configured service with the health registry.
func NewExecutor(registry *Registry, health *HealthRegistry, logger zerolog.Logger) *Executor {
	if health == nil {
		health = NewHealthRegistry()
	}
	for _, name := range registry.Services() {
		health.Register(name)
	}
	return &Executor{
		registry: registry,
		health:   health,
		logger:   logger.With().Str("component", "executor").Logger(),
	}
}

// Execute runs op against service. An open breaker, or a half-open one whose
// probe is in flight, fails fast without consuming a token; otherwise the caller waits for a token, then the breaker
// wraps the retried operation. Each attempt gets the profile's call timeout.
func (e *Executor) Execute(ctx context.Context, service string, op func(ctx context.Context) error) error {
	guard := e.registry.Guard(service)
	e.health.Register(service)

	if !guard.Breaker.Allowing() {
		e.health.MarkFailure(service)
		return fmt.Errorf("%w: %s circuit %s", ErrServiceUnavailable, service, guard.Breaker.State())
	}

	if err := guard.Limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", service, err)
	}

	err := guard.Breaker.Call(func() error {
		return guard.Retry.Do(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, guard.Profile.CallTimeout)
			defer cancel()
			return op(callCtx)
		})
	})

	e.record(guard, err)
	return err
}

// Call is Execute for operations returning a value.
func Call[T any](ctx context.Context, e *Executor, service string, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, service, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (e *Executor) record(guard *Guard, err error) {
	service := guard.Profile.Name
	switch {
	case err == nil:
		e.health.MarkSuccess(service)
	case IsUnavailable(err):
		e.health.MarkFailure(service)
	case ctxDone(err):
		// caller shutdown says nothing about the service
	case guard.Breaker.counts(err):
		e.health.MarkFailure(service)
		e.logger.Debug().Err(err).Str("service", service).Msg("call failed")
	default:
		// the service answered; the request itself was bad
		e.health.MarkSuccess(service)
	}
}

// Registry exposes the guards for inspection.
func (e *Executor) Registry() *Registry { return e.registry }

// Health exposes the health registry.
func (e *Executor) Health() *HealthRegistry { return e.health }

// Snapshot returns the health snapshot enriched with breaker state and
// available tokens.
func (e *Executor) Snapshot() HealthSnapshot {
	snap := e.health.Snapshot()
	for i := range snap.Services {
		guard := e.registry.Guard(snap.Services[i].Service)
		snap.Services[i].BreakerState = guard.Breaker.State().String()
		tokens := guard.Limiter.Tokens()
		snap.Services[i].Tokens = &tokens
	}
	return snap
}
