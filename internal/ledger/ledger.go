package ledger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/apperrors"
)

const dayLayout = "2006-01-02"

// Key identifies the pair of counters a reservation touches: the user's and
// the community's for one UTC day.
type Key struct {
	CommunityID string
	UserID      string
	Day         string
}

// Ceilings for the two counters
type Limits struct {
	UserDaily      int64
	CommunityDaily int64
}

// Counter values for one day. UserID is empty for community-only reads.
type Usage struct {
	CommunityID     string `json:"community_id"`
	UserID          string `json:"user_id,omitempty"`
	Day             string `json:"day"`
	UserTokens      int64  `json:"user_tokens"`
	CommunityTokens int64  `json:"community_tokens"`
}

type Scope string

const (
	ScopeUser      Scope = "user"
	ScopeCommunity Scope = "community"
)

// Reservation refused because one counter would pass its ceiling
type LimitError struct {
	Scope     Scope
	Used      int64
	Requested int64
	Limit     int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s daily limit exceeded: used %d + requested %d > limit %d", e.Scope, e.Used, e.Requested, e.Limit)
}

func (e *LimitError) Unwrap() error {
	return apperrors.ErrBudgetExhausted
}

// Store persists the counters. Reserve must be all-or-nothing across both
// counters; Adjust moves both by delta clamped to [0, ceiling].
type Store interface {
	Reserve(ctx context.Context, key Key, quantity int64, limits Limits) (Usage, error)
	Adjust(ctx context.Context, key Key, delta int64, limits Limits) (Usage, error)
	Usage(ctx context.Context, communityID, userID, day string) (Usage, error)
}

const lockStripes = 64

// Ledger serializes mutations per (community, day) inside this process and
// delegates durability and cross-process atomicity to the Store.
type Ledger struct {
	store Store
	locks [lockStripes]sync.Mutex
	now   func() time.Time
}

func New(store Store) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
	}
}

// Day returns the UTC day bucket for t
func Day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

func (l *Ledger) Today() string {
	return Day(l.now())
}

// TryReserve atomically checks both ceilings and increments both counters.
// On denial nothing is written and the error wraps apperrors.ErrBudgetExhausted.
func (l *Ledger) TryReserve(ctx context.Context, key Key, quantity int64, limits Limits) (Usage, error) {
	if quantity < 0 {
		return Usage{}, fmt.Errorf("reserve: negative quantity %d", quantity)
	}

	mu := l.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	usage, err := l.store.Reserve(ctx, key, quantity, limits)
	if err != nil {
		var limitErr *LimitError
		if errors.As(err, &limitErr) {
			return usage, err
		}
		return Usage{}, fmt.Errorf("reserve: %w", err)
	}
	return usage, nil
}

// Reconcile replaces a reservation of `reserved` with the true cost `actual`.
func (l *Ledger) Reconcile(ctx context.Context, key Key, reserved, actual int64, limits Limits) (Usage, error) {
	if actual < 0 {
		actual = 0
	}

	delta := actual - reserved
	if delta == 0 {
		return l.store.Usage(ctx, key.CommunityID, key.UserID, key.Day)
	}

	mu := l.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	usage, err := l.store.Adjust(ctx, key, delta, limits)
	if err != nil {
		return Usage{}, fmt.Errorf("reconcile: %w", err)
	}
	return usage, nil
}

// Release returns an unused reservation
func (l *Ledger) Release(ctx context.Context, key Key, reserved int64, limits Limits) (Usage, error) {
	return l.Reconcile(ctx, key, reserved, 0, limits)
}

func (l *Ledger) GetUsage(ctx context.Context, communityID, userID, day string) (Usage, error) {
	if day == "" {
		day = l.Today()
	}
	return l.store.Usage(ctx, communityID, userID, day)
}

// One stripe per (community, day): both counters of a reservation live under it
func (l *Ledger) lockFor(key Key) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key.CommunityID))
	h.Write([]byte{0})
	h.Write([]byte(key.Day))
	return &l.locks[h.Sum32()%lockStripes]
}

// Applies delta to value, never below zero and never pushing past limit.
// A counter already above a lowered limit is left where it is.
func Clamp(value, delta, limit int64) int64 {
	next := value + delta
	if delta > 0 && next > limit {
		next = max(value, limit)
	}
	if next < 0 {
		next = 0
	}
	return next
}
