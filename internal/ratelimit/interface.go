package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/models"
)

// At most Limit events per trailing Window
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) valid() bool {
	return r.Limit > 0 && r.Window > 0
}

type Result struct {
	Allowed   bool
	Count     int // events inside the window after this call
	Remaining int
}

type Limiter interface {
	// Reports whether one more event would fit, without recording it
	Allow(ctx context.Context, key string, rule Rule, now time.Time) (bool, error)

	// Records an event unconditionally
	Record(ctx context.Context, key string, rule Rule, now time.Time) error

	// Checks and records in one atomic step; nothing is recorded when denied
	Acquire(ctx context.Context, key string, rule Rule, now time.Time) (Result, error)

	Remaining(ctx context.Context, key string, rule Rule, now time.Time) (int, error)

	Name() string
}

// Key for the (community, user, command kind) window
func Key(communityID, userID string, kind models.CommandKind) string {
	return fmt.Sprintf("%s:%s:%s", communityID, userID, kind)
}

func remaining(rule Rule, count int) int {
	r := rule.Limit - count
	if r < 0 {
		return 0
	}
	return r
}
