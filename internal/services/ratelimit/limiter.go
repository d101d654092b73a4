package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter answers whether one more request under key fits inside the
// current window. Limits are per-user at the chat edge; the engine backends
// never consult the limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string) error
	GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// FixedWindowLimiter counts requests per window bucket in Redis. Shared state
// makes the limit hold across replicas.
type FixedWindowLimiter struct {
	client *redis.Client
	log    *zap.Logger
}

func NewFixedWindowLimiter(client *redis.Client, log *zap.Logger) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		client: client,
		log:    log,
	}
}

func (f *FixedWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	windowKey := f.windowKey(key, window)

	count, err := f.client.IncrBy(ctx, windowKey, 1).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment counter: %w", err)
	}

	// Set expiry on first increment
	if count == 1 {
		f.client.Expire(ctx, windowKey, window)
	}

	if count > int64(limit) {
		// Rollback so GetRemaining stays accurate
		f.client.DecrBy(ctx, windowKey, 1)
		return false, nil
	}

	return true, nil
}

func (f *FixedWindowLimiter) Reset(ctx context.Context, key string) error {
	pattern := fmt.Sprintf("%s:*", key)
	keys, err := f.client.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}

	if len(keys) > 0 {
		return f.client.Del(ctx, keys...).Err()
	}

	return nil
}

func (f *FixedWindowLimiter) GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	windowKey := f.windowKey(key, window)

	count, err := f.client.Get(ctx, windowKey).Int()
	if err == redis.Nil {
		return limit, nil
	}
	if err != nil {
		return 0, err
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

func (f *FixedWindowLimiter) windowKey(key string, window time.Duration) string {
	windowStart := time.Now().Truncate(window).Unix()
	return fmt.Sprintf("%s:%d", key, windowStart)
}

// InMemoryLimiter is the lite-mode fallback when Redis is not configured. It
// is a token bucket per key and is local to one process.
type InMemoryLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	log     *zap.Logger
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

func NewInMemoryLimiter(log *zap.Logger) *InMemoryLimiter {
	limiter := &InMemoryLimiter{
		buckets: make(map[string]*bucket),
		log:     log,
	}

	go limiter.cleanup()

	return limiter
}

func (l *InMemoryLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	b := l.bucket(key, limit)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(limit, window)

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}

	return false, nil
}

func (l *InMemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
	return nil
}

func (l *InMemoryLimiter) GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()
	if !exists {
		return limit, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(limit, window)

	return int(b.tokens), nil
}

func (l *InMemoryLimiter) bucket(key string, limit int) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     float64(limit),
			lastRefill: time.Now(),
		}
		l.buckets[key] = b
	}
	return b
}

// refill must be called with b.mu held.
func (b *bucket) refill(limit int, window time.Duration) {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	refillRate := float64(limit) / window.Seconds()

	b.tokens += elapsed.Seconds() * refillRate
	if b.tokens > float64(limit) {
		b.tokens = float64(limit)
	}
	b.lastRefill = now
}

func (l *InMemoryLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := time.Now()
		for key, b := range l.buckets {
			b.mu.Lock()
			if now.Sub(b.lastRefill) > 1*time.Hour {
				delete(l.buckets, key)
			}
			b.mu.Unlock()
		}
		l.mu.Unlock()
	}
}
