package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/storage"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] counter for the current window; ARGV: limit, ttl ms
var fixedAcquireScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count < tonumber(ARGV[1]) then
	count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return {1, count}
end
return {0, count}
`)

// Counts events per aligned window. Cheaper than the sliding window, but a
// burst straddling a boundary can admit up to twice the limit within one
// window length.
type FixedWindowLimiter struct {
	redis *storage.RedisClient
}

func NewFixedWindow(redis *storage.RedisClient) *FixedWindowLimiter {
	return &FixedWindowLimiter{redis: redis}
}

func (f *FixedWindowLimiter) Allow(ctx context.Context, key string, rule Rule, now time.Time) (bool, error) {
	if !rule.valid() {
		return false, nil
	}

	count, err := f.count(ctx, key, rule, now)
	if err != nil {
		return false, err
	}
	return count < rule.Limit, nil
}

func (f *FixedWindowLimiter) Record(ctx context.Context, key string, rule Rule, now time.Time) error {
	// Reuse the acquire script with an unbounded limit
	_, _, err := f.acquire(ctx, key, Rule{Limit: int(^uint32(0) >> 1), Window: rule.Window}, now)
	return err
}

func (f *FixedWindowLimiter) Acquire(ctx context.Context, key string, rule Rule, now time.Time) (Result, error) {
	if !rule.valid() {
		return Result{}, nil
	}

	allowed, count, err := f.acquire(ctx, key, rule, now)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Allowed:   allowed,
		Count:     count,
		Remaining: remaining(rule, count),
	}, nil
}

func (f *FixedWindowLimiter) Remaining(ctx context.Context, key string, rule Rule, now time.Time) (int, error) {
	count, err := f.count(ctx, key, rule, now)
	if err != nil {
		return 0, err
	}
	return remaining(rule, count), nil
}

func (f *FixedWindowLimiter) Name() string {
	return "fixed_window"
}

// Returns the time at which the current window ends
func (f *FixedWindowLimiter) Reset(rule Rule, now time.Time) time.Time {
	size := int64(rule.Window / time.Millisecond)
	if size <= 0 {
		return now
	}
	current := now.UnixMilli() / size
	return time.UnixMilli((current + 1) * size)
}

func (f *FixedWindowLimiter) acquire(ctx context.Context, key string, rule Rule, now time.Time) (bool, int, error) {
	vals, err := f.redis.RunScript(ctx, fixedAcquireScript,
		[]string{f.redisKey(key, rule, now)},
		rule.Limit,
		ttlMillis(rule.Window),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("fixed window acquire: %w", err)
	}
	return vals[0] == 1, int(vals[1]), nil
}

func (f *FixedWindowLimiter) count(ctx context.Context, key string, rule Rule, now time.Time) (int, error) {
	val, err := f.redis.Get(ctx, f.redisKey(key, rule, now))
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	count, _ := strconv.Atoi(val)
	return count, nil
}

func (f *FixedWindowLimiter) redisKey(key string, rule Rule, now time.Time) string {
	size := int64(rule.Window / time.Millisecond)
	if size <= 0 {
		size = 1
	}
	return fmt.Sprintf("ratelimit:fixed:%s:%d", key, now.UnixMilli()/size)
}
