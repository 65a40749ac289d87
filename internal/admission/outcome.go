package admission

import (
	"time"

	"github.com/aman-churiwal/chat-admission/internal/models"
)

// Inbound command as handed over by a chat-platform gateway adapter
type Request struct {
	CommunityID string
	ChannelID   string
	UserID      string
	MessageID   string
	Kind        models.CommandKind
	Content     string
	// Platform-level admin permission reported by the adapter
	IsAdmin    bool
	ReceivedAt time.Time
}

type OutcomeKind string

const (
	OutcomeRejected  OutcomeKind = "rejected"
	OutcomeQueued    OutcomeKind = "queued"
	OutcomeFulfilled OutcomeKind = "fulfilled"
	OutcomeFailed    OutcomeKind = "failed"
)

// Reasons beyond the validator's
const (
	ReasonInvalidKind       = "invalid_kind"
	ReasonRateLimited       = "rate_limited"
	ReasonDuplicate         = "duplicate"
	ReasonBudgetExhausted   = "budget_exhausted"
	ReasonConfigUnavailable = "config_unavailable"
	ReasonBackendError      = "backend_error"
	ReasonInternal          = "internal_error"
)

type Outcome struct {
	Kind     OutcomeKind `json:"outcome"`
	Reason   string      `json:"reason,omitempty"`
	RecordID string      `json:"record_id,omitempty"`
	// Text delivered to the channel, before prefix and suffix
	Reply string `json:"reply"`
}
