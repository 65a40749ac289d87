package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// In-process guard backed by an expirable LRU. Entries live for maxWindow;
// shorter per-community windows are enforced by comparing timestamps.
type MemoryGuard struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, time.Time]
}

func NewMemoryGuard(maxEntries int, maxWindow time.Duration) *MemoryGuard {
	if maxEntries <= 0 {
		maxEntries = 50000
	}
	if maxWindow <= 0 {
		maxWindow = time.Hour
	}
	return &MemoryGuard{
		cache: expirable.NewLRU[string, time.Time](maxEntries, nil, maxWindow),
	}
}

func (g *MemoryGuard) Seen(ctx context.Context, fingerprint string, window time.Duration, now time.Time) (bool, error) {
	if window <= 0 {
		return false, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.cache.Get(fingerprint); ok && now.Sub(last) < window {
		return true, nil
	}

	g.cache.Add(fingerprint, now)
	return false, nil
}
