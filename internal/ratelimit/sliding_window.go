package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] sorted set of event timestamps (microseconds)
// ARGV: now, cutoff, limit, member, ttl ms
var slidingAcquireScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return {1, count + 1}
end
return {0, count}
`)

var slidingRecordScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return redis.call('ZCARD', KEYS[1])
`)

// Sliding window over a Redis sorted set. Acquire runs as a single Lua script
// so concurrent callers cannot both observe a free slot.
type SlidingWindowLimiter struct {
	redis *storage.RedisClient
}

func NewSlidingWindowLimiter(redis *storage.RedisClient) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{redis: redis}
}

func (s *SlidingWindowLimiter) Allow(ctx context.Context, key string, rule Rule, now time.Time) (bool, error) {
	if !rule.valid() {
		return false, nil
	}

	count, err := s.count(ctx, key, rule, now)
	if err != nil {
		return false, err
	}

	return count < rule.Limit, nil
}

func (s *SlidingWindowLimiter) Record(ctx context.Context, key string, rule Rule, now time.Time) error {
	return s.redis.RunScript(ctx, slidingRecordScript,
		[]string{s.redisKey(key)},
		micros(now),
		micros(now.Add(-rule.Window)),
		member(now),
		ttlMillis(rule.Window),
	).Err()
}

func (s *SlidingWindowLimiter) Acquire(ctx context.Context, key string, rule Rule, now time.Time) (Result, error) {
	if !rule.valid() {
		return Result{}, nil
	}

	vals, err := s.redis.RunScript(ctx, slidingAcquireScript,
		[]string{s.redisKey(key)},
		micros(now),
		micros(now.Add(-rule.Window)),
		rule.Limit,
		member(now),
		ttlMillis(rule.Window),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("sliding window acquire: %w", err)
	}

	count := int(vals[1])
	return Result{
		Allowed:   vals[0] == 1,
		Count:     count,
		Remaining: remaining(rule, count),
	}, nil
}

func (s *SlidingWindowLimiter) Remaining(ctx context.Context, key string, rule Rule, now time.Time) (int, error) {
	count, err := s.count(ctx, key, rule, now)
	if err != nil {
		return 0, err
	}
	return remaining(rule, count), nil
}

func (s *SlidingWindowLimiter) Name() string {
	return "sliding_window"
}

func (s *SlidingWindowLimiter) count(ctx context.Context, key string, rule Rule, now time.Time) (int, error) {
	// Exclusive lower bound: events exactly one window old have expired
	n, err := s.redis.ZCount(ctx, s.redisKey(key), "("+micros(now.Add(-rule.Window)), micros(now))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SlidingWindowLimiter) redisKey(key string) string {
	return fmt.Sprintf("ratelimit:sliding:%s", key)
}

func micros(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func member(t time.Time) string {
	return micros(t) + "-" + uuid.NewString()
}

func ttlMillis(window time.Duration) int64 {
	ms := window.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}
