package ratelimit

import (
	"fmt"

	"github.com/aman-churiwal/chat-admission/internal/storage"
)

// NewLimiter selects a limiter implementation.
// backend is "memory" or "redis"; algorithm applies to redis only.
func NewLimiter(backend, algorithm string, redis *storage.RedisClient) (Limiter, error) {
	switch backend {
	case "memory", "":
		return NewMemoryLimiter(), nil
	case "redis":
		if redis == nil {
			return nil, fmt.Errorf("redis limiter requires a redis client")
		}
		switch algorithm {
		case "sliding_window", "":
			return NewSlidingWindowLimiter(redis), nil
		case "fixed_window":
			return NewFixedWindow(redis), nil
		default:
			return nil, fmt.Errorf("unknown rate limit algorithm: %s", algorithm)
		}
	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s", backend)
	}
}
