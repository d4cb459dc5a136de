package resilience

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultRatePerMinute    = 60
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 60 * time.Second
	defaultCallTimeout      = 10 * time.Second
	defaultMaxRetries       = 3
	defaultBaseDelay        = time.Second
	defaultMaxDelay         = 60 * time.Second
)

// ServiceProfile is the static configuration of one external dependency.
type ServiceProfile struct {
	Name             string
	RatePerMinute    int
	FailureThreshold int
	RecoveryTimeout  time.Duration
	CallTimeout      time.Duration
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	Exponential      bool
	CountErrors      []string
	RetryErrors      []string
}

// DefaultProfile is used for services that were not configured.
func DefaultProfile(name string) ServiceProfile {
	return ServiceProfile{
		Name:             name,
		RatePerMinute:    defaultRatePerMinute,
		FailureThreshold: defaultFailureThreshold,
		RecoveryTimeout:  defaultRecoveryTimeout,
		CallTimeout:      defaultCallTimeout,
		MaxRetries:       defaultMaxRetries,
		BaseDelay:        defaultBaseDelay,
		MaxDelay:         defaultMaxDelay,
		Exponential:      true,
	}
}

// Guard bundles the per-service limiter, breaker and retry policy.
type Guard struct {
	Profile ServiceProfile
	Limiter *RateLimiter
	Breaker *CircuitBreaker
	Retry   RetryPolicy
}

// Registry owns one Guard per service. State is shared by every caller of the
// same service name.
type Registry struct {
	mu       sync.Mutex
	profiles map[string]ServiceProfile
	guards   map[string]*Guard
	base     zerolog.Logger
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRegistry validates the profiles and builds their guards.
func NewRegistry(profiles []ServiceProfile, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		profiles: make(map[string]ServiceProfile, len(profiles)),
		guards:   make(map[string]*Guard, len(profiles)),
		base:     logger,
		logger:   logger.With().Str("component", "resilience").Logger(),
	}
	for _, p := range profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("service profile without name")
		}
		guard, err := r.build(p)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", p.Name, err)
		}
		r.profiles[p.Name] = p
		r.guards[p.Name] = guard
	}
	return r, nil
}

// WithSleep replaces the retry wait, letting tests observe backoff delays.
func (r *Registry) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Registry {
	r.mu.Lock()
	r.sleep = sleep
	r.mu.Unlock()
	r.Reset()
	return r
}

// Guard returns the service's guard, creating a cached default one for
// unknown names.
func (r *Registry) Guard(service string) *Guard {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.guards[service]; ok {
		return g
	}
	p := DefaultProfile(service)
	g, err := r.build(p)
	if err != nil {
		// default kinds always parse
		panic(err)
	}
	r.logger.Warn().Str("service", service).Msg("no profile configured; using defaults")
	r.profiles[service] = p
	r.guards[service] = g
	return g
}

// Services lists known service names in sorted order.
func (r *Registry) Services() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.guards))
	for name := range r.guards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset rebuilds every guard, restoring full buckets and closed breakers.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, p := range r.profiles {
		if g, err := r.build(p); err == nil {
			r.guards[name] = g
		}
	}
}

func (r *Registry) build(p ServiceProfile) (*Guard, error) {
	counted, err := MatchKinds(p.CountErrors)
	if err != nil {
		return nil, fmt.Errorf("count_errors: %w", err)
	}
	retryable, err := MatchKinds(p.RetryErrors)
	if err != nil {
		return nil, fmt.Errorf("retry_errors: %w", err)
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = defaultCallTimeout
	}

	log := r.logger.With().Str("service", p.Name).Logger()
	policy := RetryPolicy{
		MaxRetries:  p.MaxRetries,
		BaseDelay:   p.BaseDelay,
		MaxDelay:    p.MaxDelay,
		Exponential: p.Exponential,
		Retryable:   retryable,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			log.Warn().Err(err).Int("attempt", attempt).Int("max_retries", p.MaxRetries).Dur("delay", delay).Msg("call failed, retrying")
		},
	}
	if r.sleep != nil {
		policy.Sleep = r.sleep
	}

	return &Guard{
		Profile: p,
		Limiter: NewRateLimiter(p.Name, p.RatePerMinute),
		Breaker: NewCircuitBreaker(p.Name, BreakerSettings{
			FailureThreshold: p.FailureThreshold,
			RecoveryTimeout:  p.RecoveryTimeout,
			Counted:          counted,
		}, r.base),
		Retry: policy,
	}, nil
}
