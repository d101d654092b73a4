package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMiniredisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestFixedWindowLimiter(t *testing.T) {
	client := newMiniredisClient(t)
	limiter := NewFixedWindowLimiter(client, zap.NewNop())

	ctx := context.Background()
	key := "user:u-1"
	limit := 5
	window := time.Minute

	t.Run("allow requests within limit", func(t *testing.T) {
		require.NoError(t, limiter.Reset(ctx, key))

		for i := 0; i < limit; i++ {
			allowed, err := limiter.Allow(ctx, key, limit, window)
			require.NoError(t, err)
			assert.True(t, allowed, "request %d should be allowed", i+1)
		}
	})

	t.Run("reject requests exceeding limit", func(t *testing.T) {
		require.NoError(t, limiter.Reset(ctx, key))

		for i := 0; i < limit; i++ {
			allowed, err := limiter.Allow(ctx, key, limit, window)
			require.NoError(t, err)
			require.True(t, allowed)
		}

		allowed, err := limiter.Allow(ctx, key, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("remaining decreases and never goes negative", func(t *testing.T) {
		require.NoError(t, limiter.Reset(ctx, key))

		remaining, err := limiter.GetRemaining(ctx, key, limit, window)
		require.NoError(t, err)
		assert.Equal(t, limit, remaining)

		for i := 0; i < limit+3; i++ {
			_, _ = limiter.Allow(ctx, key, limit, window)
		}

		remaining, err = limiter.GetRemaining(ctx, key, limit, window)
		require.NoError(t, err)
		assert.Equal(t, 0, remaining)
	})

	t.Run("keys are isolated", func(t *testing.T) {
		require.NoError(t, limiter.Reset(ctx, "user:a"))
		require.NoError(t, limiter.Reset(ctx, "user:b"))

		for i := 0; i < limit; i++ {
			allowed, err := limiter.Allow(ctx, "user:a", limit, window)
			require.NoError(t, err)
			require.True(t, allowed)
		}

		allowed, err := limiter.Allow(ctx, "user:b", limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestInMemoryLimiter(t *testing.T) {
	limiter := NewInMemoryLimiter(zap.NewNop())

	ctx := context.Background()
	key := "user:u-1"
	limit := 5
	window := time.Second

	t.Run("allow requests within limit", func(t *testing.T) {
		require.NoError(t, limiter.Reset(ctx, key))

		for i := 0; i < limit; i++ {
			allowed, err := limiter.Allow(ctx, key, limit, window)
			require.NoError(t, err)
			assert.True(t, allowed, "request %d should be allowed", i+1)
		}
	})

	t.Run("reject requests exceeding limit", func(t *testing.T) {
		require.NoError(t, limiter.Reset(ctx, key))

		for i := 0; i < limit; i++ {
			allowed, err := limiter.Allow(ctx, key, limit, window)
			require.NoError(t, err)
			require.True(t, allowed)
		}

		allowed, err := limiter.Allow(ctx, key, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		require.NoError(t, limiter.Reset(ctx, key))

		for i := 0; i < limit; i++ {
			allowed, err := limiter.Allow(ctx, key, limit, window)
			require.NoError(t, err)
			require.True(t, allowed)
		}

		time.Sleep(window/time.Duration(limit) + 50*time.Millisecond)

		allowed, err := limiter.Allow(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("concurrent access stays within limit", func(t *testing.T) {
		require.NoError(t, limiter.Reset(ctx, key))

		var wg sync.WaitGroup
		var mu sync.Mutex
		allowedCount := 0

		for i := 0; i < limit*3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				allowed, err := limiter.Allow(ctx, key, limit, time.Hour)
				assert.NoError(t, err)
				if allowed {
					mu.Lock()
					allowedCount++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, limit, allowedCount)
	})

	t.Run("remaining reflects usage", func(t *testing.T) {
		k := fmt.Sprintf("%s:remaining", key)
		require.NoError(t, limiter.Reset(ctx, k))

		remaining, err := limiter.GetRemaining(ctx, k, limit, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, limit, remaining)

		_, _ = limiter.Allow(ctx, k, limit, time.Hour)
		remaining, err = limiter.GetRemaining(ctx, k, limit, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, limit-1, remaining)
	})
}
