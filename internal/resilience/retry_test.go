package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func TestRetryExponentialBackoff(t *testing.T) {
	rec := &sleepRecorder{}
	policy := RetryPolicy{
		MaxRetries:  3,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Exponential: true,
		Retryable:   IsTransient,
		Sleep:       rec.sleep,
	}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls <= 3 {
			return Transient("market_data", 503, errBoom)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestRetryLinearBackoffIsCapped(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, 2*time.Second, policy.Backoff(0))
	assert.Equal(t, 4*time.Second, policy.Backoff(1))
	assert.Equal(t, 5*time.Second, policy.Backoff(2))

	policy.Exponential = true
	assert.Equal(t, 2*time.Second, policy.Backoff(0))
	assert.Equal(t, 4*time.Second, policy.Backoff(1))
	assert.Equal(t, 5*time.Second, policy.Backoff(2))
	assert.Equal(t, 5*time.Second, policy.Backoff(40))
}

func TestRetryNonRetryableReturnsImmediately(t *testing.T) {
	rec := &sleepRecorder{}
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, Retryable: IsTransient, Sleep: rec.sleep}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return Invalid("ticker", "empty")
	})

	require.True(t, IsValidation(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestRetryExhaustedReturnsLastError(t *testing.T) {
	rec := &sleepRecorder{}
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, Retryable: IsTransient, Sleep: rec.sleep}

	calls := 0
	last := errors.New("attempt 3")
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 3 {
			return Transient("dex_data", 500, last)
		}
		return Transient("dex_data", 500, errBoom)
	})

	require.ErrorIs(t, err, last)
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.delays, 2)
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour, Retryable: IsTransient}

	calls := 0
	err := policy.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return Transient("market_data", 0, errBoom)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestMatchKinds(t *testing.T) {
	match, err := MatchKinds(nil)
	require.NoError(t, err)
	assert.True(t, match(Transient("x", 500, errBoom)))
	assert.True(t, match(context.DeadlineExceeded))
	assert.False(t, match(Invalid("ticker", "bad")))
	assert.False(t, match(context.Canceled))

	match, err = MatchKinds([]string{"any"})
	require.NoError(t, err)
	assert.True(t, match(errBoom))
	assert.False(t, match(nil))

	_, err = MatchKinds([]string{"sometimes"})
	assert.Error(t, err)
}
