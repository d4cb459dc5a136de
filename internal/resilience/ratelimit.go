package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-service token bucket holding up to perMinute tokens
// and refilling at perMinute/60 tokens per second. Refill is computed from the
// monotonic clock reading carried by time.Now.
type RateLimiter struct {
	service   string
	perMinute int
	limiter   *rate.Limiter
}

// NewRateLimiter builds a full bucket for the service.
func NewRateLimiter(service string, perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = defaultRatePerMinute
	}
	return &RateLimiter{
		service:   service,
		perMinute: perMinute,
		limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
	}
}

// Acquire suspends until a token is available and consumes it. Concurrent
// callers are queued and each charged one token. The only error is ctx
// cancellation.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the tokens currently available, within [0, Capacity].
// Reservations held by queued waiters are not reported.
func (r *RateLimiter) Tokens() float64 {
	tokens := r.limiter.Tokens()
	if tokens < 0 {
		return 0
	}
	if max := float64(r.perMinute); tokens > max {
		return max
	}
	return tokens
}

// Capacity is the bucket size.
func (r *RateLimiter) Capacity() int { return r.perMinute }

// Service returns the guarded service name.
func (r *RateLimiter) Service() string { return r.service }
