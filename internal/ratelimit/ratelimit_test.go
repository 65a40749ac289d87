package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *storage.RedisClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := storage.NewRedis(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func limiters(t *testing.T) map[string]Limiter {
	redis := newRedis(t)
	return map[string]Limiter{
		"memory":  NewMemoryLimiter(),
		"sliding": NewSlidingWindowLimiter(redis),
	}
}

func TestAcquireWindowScenario(t *testing.T) {
	ctx := context.Background()
	rule := Rule{Limit: 5, Window: 60 * time.Second}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, limiter := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			key := Key("guild-1", "user-"+name, models.KindAsk)

			for i := 0; i < 5; i++ {
				res, err := limiter.Acquire(ctx, key, rule, start.Add(time.Duration(i*2)*time.Second))
				require.NoError(t, err)
				assert.True(t, res.Allowed, "request %d should be admitted", i+1)
				assert.Equal(t, i+1, res.Count)
			}

			res, err := limiter.Acquire(ctx, key, rule, start.Add(30*time.Second))
			require.NoError(t, err)
			assert.False(t, res.Allowed, "sixth request inside the window must be limited")
			assert.Equal(t, 0, res.Remaining)

			// First event leaves the window exactly one window later
			res, err = limiter.Acquire(ctx, key, rule, start.Add(60*time.Second))
			require.NoError(t, err)
			assert.True(t, res.Allowed)
		})
	}
}

func TestAllowDoesNotRecord(t *testing.T) {
	ctx := context.Background()
	rule := Rule{Limit: 1, Window: time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, limiter := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			key := Key("guild-1", "peek-"+name, models.KindAsk)

			for i := 0; i < 3; i++ {
				ok, err := limiter.Allow(ctx, key, rule, now)
				require.NoError(t, err)
				assert.True(t, ok)
			}

			require.NoError(t, limiter.Record(ctx, key, rule, now))

			ok, err := limiter.Allow(ctx, key, rule, now.Add(time.Second))
			require.NoError(t, err)
			assert.False(t, ok)

			left, err := limiter.Remaining(ctx, key, rule, now.Add(time.Second))
			require.NoError(t, err)
			assert.Equal(t, 0, left)
		})
	}
}

func TestKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	rule := Rule{Limit: 1, Window: time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter()

	res, err := limiter.Acquire(ctx, Key("guild-1", "alice", models.KindAsk), rule, now)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Acquire(ctx, Key("guild-2", "alice", models.KindAsk), rule, now)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "other community has its own window")

	res, err = limiter.Acquire(ctx, Key("guild-1", "bob", models.KindAsk), rule, now)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "other user has its own window")
}

func TestInvalidRuleFailsClosed(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, limiter := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			res, err := limiter.Acquire(ctx, "k", Rule{Limit: 0, Window: time.Minute}, now)
			require.NoError(t, err)
			assert.False(t, res.Allowed)

			ok, err := limiter.Allow(ctx, "k", Rule{Limit: 3, Window: 0}, now)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestConcurrentAcquireNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	rule := Rule{Limit: 10, Window: time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, limiter := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			key := Key("guild-1", "burst-"+name, models.KindAsk)

			var wg sync.WaitGroup
			var mu sync.Mutex
			admitted := 0

			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := limiter.Acquire(ctx, key, rule, now.Add(time.Duration(i)*time.Millisecond))
					if err == nil && res.Allowed {
						mu.Lock()
						admitted++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, rule.Limit, admitted)
		})
	}
}

func TestFixedWindowLimiter(t *testing.T) {
	ctx := context.Background()
	limiter := NewFixedWindow(newRedis(t))
	rule := Rule{Limit: 2, Window: time.Minute}
	now := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)

	for i := 0; i < 2; i++ {
		res, err := limiter.Acquire(ctx, "fixed", rule, now)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.Acquire(ctx, "fixed", rule, now.Add(20*time.Second))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Count, "denied attempts are not counted")

	// Next aligned window starts fresh
	res, err = limiter.Acquire(ctx, "fixed", rule, now.Add(50*time.Second))
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	assert.Equal(t, time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC), limiter.Reset(rule, now).UTC())

	t.Run("record counts without checking", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, limiter.Record(ctx, "recorded", rule, now))
		}

		allowed, err := limiter.Allow(ctx, "recorded", rule, now)
		require.NoError(t, err)
		assert.False(t, allowed)

		left, err := limiter.Remaining(ctx, "recorded", rule, now)
		require.NoError(t, err)
		assert.Zero(t, left)

		allowed, err = limiter.Allow(ctx, "recorded", rule, now.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestNewLimiter(t *testing.T) {
	redis := newRedis(t)

	l, err := NewLimiter("memory", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "memory_sliding_window", l.Name())

	l, err = NewLimiter("redis", "fixed_window", redis)
	require.NoError(t, err)
	assert.Equal(t, "fixed_window", l.Name())

	l, err = NewLimiter("redis", "", redis)
	require.NoError(t, err)
	assert.Equal(t, "sliding_window", l.Name())

	_, err = NewLimiter("redis", "token_bucket", redis)
	assert.Error(t, err)

	_, err = NewLimiter("redis", "", nil)
	assert.Error(t, err)
}
