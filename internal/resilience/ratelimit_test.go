package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterBlocksOnceBucketIsEmpty(t *testing.T) {
	limiter := NewRateLimiter("market_data", 60)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 60; i++ {
		require.NoError(t, limiter.Acquire(ctx))
		tokens := limiter.Tokens()
		assert.GreaterOrEqual(t, tokens, 0.0)
		assert.LessOrEqual(t, tokens, 60.0)
	}
	require.Less(t, time.Since(start), 500*time.Millisecond, "a full bucket should not delay")

	start = time.Now()
	require.NoError(t, limiter.Acquire(ctx))
	waited := time.Since(start)
	assert.GreaterOrEqual(t, waited, 900*time.Millisecond)
	assert.Less(t, waited, 1500*time.Millisecond)
	assert.GreaterOrEqual(t, limiter.Tokens(), 0.0)
}

func TestRateLimiterConcurrentCallersChargedIndependently(t *testing.T) {
	limiter := NewRateLimiter("dex_data", 60)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, limiter.Acquire(context.Background()))
		}()
	}
	wg.Wait()

	assert.InDelta(t, 40.0, limiter.Tokens(), 1.0)
}

func TestRateLimiterHonoursCancellation(t *testing.T) {
	limiter := NewRateLimiter("telegram", 1)
	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Acquire(ctx))
}

func TestRateLimiterDefaultsNonPositiveRate(t *testing.T) {
	limiter := NewRateLimiter("x", 0)
	assert.Equal(t, 60, limiter.Capacity())
	assert.Equal(t, "x", limiter.Service())
}
