package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CommandKind string

const (
	KindAsk CommandKind = "ask"
)

func (k CommandKind) Valid() bool {
	return k == KindAsk
}

type RecordStatus string

const (
	StatusPendingApproval RecordStatus = "pending_approval"
	StatusAutoResponded   RecordStatus = "auto_responded"
	StatusApprovedBackend RecordStatus = "approved_backend"
	StatusApprovedManual  RecordStatus = "approved_manual"
	StatusRejected        RecordStatus = "rejected"
	StatusError           RecordStatus = "error"
)

// pending_approval is the only non-terminal status
func (s RecordStatus) Terminal() bool {
	return s != StatusPendingApproval
}

type Decision string

const (
	DecisionBackend Decision = "backend"
	DecisionManual  Decision = "manual"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionBackend, DecisionManual, DecisionReject:
		return true
	}
	return false
}

// One user-initiated command instance and its lifecycle
type RequestRecord struct {
	ID          uuid.UUID    `gorm:"type:uuid;primary_key" json:"id"`
	CommunityID string       `gorm:"not null;index:idx_records_community_status,priority:1" json:"community_id"`
	ChannelID   string       `gorm:"not null" json:"channel_id"`
	UserID      string       `gorm:"not null;index" json:"user_id"`
	MessageID   string       `json:"message_id,omitempty"`
	Kind        CommandKind  `gorm:"not null" json:"kind"`
	Content     string       `gorm:"type:text;not null" json:"content"`
	Status      RecordStatus `gorm:"not null;index:idx_records_community_status,priority:2" json:"status"`
	CreatedAt   time.Time    `gorm:"index" json:"created_at"`

	// Quota held against the daily counters of UsageDay
	UsageDay       string `gorm:"not null" json:"usage_day"`
	ReservedTokens int64  `gorm:"not null" json:"reserved_tokens"`

	ResponseContent  *string `gorm:"type:text" json:"response_content,omitempty"`
	PromptTokens     *int64  `json:"prompt_tokens,omitempty"`
	CompletionTokens *int64  `json:"completion_tokens,omitempty"`
	TotalTokens      *int64  `json:"total_tokens,omitempty"`
	EstimatedCostUSD *string `gorm:"size:40" json:"estimated_cost_usd,omitempty"`

	Decision       Decision   `gorm:"not null;default:''" json:"decision,omitempty"`
	ReviewerID     string     `json:"reviewer_id,omitempty"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	ManualReply    string     `gorm:"type:text" json:"manual_reply,omitempty"`
	DecisionReason string     `gorm:"type:text" json:"decision_reason,omitempty"`
	ErrorCode      string     `json:"error_code,omitempty"`
	ErrorDetail    string     `gorm:"type:text" json:"error_detail,omitempty"`
	RespondedAt    *time.Time `json:"responded_at,omitempty"`
}

func (r *RequestRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (RequestRecord) TableName() string {
	return "request_records"
}
