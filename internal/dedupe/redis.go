package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/storage"
)

// Guard shared by every admission process through Redis SET NX
type RedisGuard struct {
	redis *storage.RedisClient
}

func NewRedisGuard(redis *storage.RedisClient) *RedisGuard {
	return &RedisGuard{redis: redis}
}

func (g *RedisGuard) Seen(ctx context.Context, fingerprint string, window time.Duration, now time.Time) (bool, error) {
	if window <= 0 {
		return false, nil
	}

	created, err := g.redis.SetNX(ctx, "dedupe:"+fingerprint, now.UnixMilli(), window)
	if err != nil {
		return false, fmt.Errorf("duplicate check: %w", err)
	}
	return !created, nil
}
