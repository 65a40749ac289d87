package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Sweep every key once the map grows past this many entries
const memorySweepThreshold = 100000

// Sliding window kept in process memory. Stale timestamps are evicted lazily
// when their key is touched.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
	}
}

func (m *MemoryLimiter) Allow(ctx context.Context, key string, rule Rule, now time.Time) (bool, error) {
	if !rule.valid() {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.prune(key, rule, now)) < rule.Limit, nil
}

func (m *MemoryLimiter) Record(ctx context.Context, key string, rule Rule, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.prune(key, rule, now)
	m.windows[key] = append(events, now)
	return nil
}

func (m *MemoryLimiter) Acquire(ctx context.Context, key string, rule Rule, now time.Time) (Result, error) {
	if !rule.valid() {
		return Result{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.windows) > memorySweepThreshold {
		m.sweep(rule, now)
	}

	events := m.prune(key, rule, now)
	if len(events) >= rule.Limit {
		return Result{Allowed: false, Count: len(events), Remaining: 0}, nil
	}

	events = append(events, now)
	m.windows[key] = events

	return Result{
		Allowed:   true,
		Count:     len(events),
		Remaining: remaining(rule, len(events)),
	}, nil
}

func (m *MemoryLimiter) Remaining(ctx context.Context, key string, rule Rule, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return remaining(rule, len(m.prune(key, rule, now))), nil
}

func (m *MemoryLimiter) Name() string {
	return "memory_sliding_window"
}

// Drops events at or before now-window. Caller holds mu.
func (m *MemoryLimiter) prune(key string, rule Rule, now time.Time) []time.Time {
	events := m.windows[key]
	cutoff := now.Add(-rule.Window)

	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) == 0 {
		delete(m.windows, key)
		return nil
	}

	m.windows[key] = kept
	return kept
}

func (m *MemoryLimiter) sweep(rule Rule, now time.Time) {
	for key := range m.windows {
		m.prune(key, rule, now)
	}
}
