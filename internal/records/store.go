package records

import (
	"context"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/google/uuid"
)

// Terminal fields written when a claimed record leaves pending_approval
type Outcome struct {
	Status           models.RecordStatus
	ResponseContent  *string
	PromptTokens     *int64
	CompletionTokens *int64
	TotalTokens      *int64
	EstimatedCostUSD *string
	ManualReply      string
	DecisionReason   string
	ErrorCode        string
	ErrorDetail      string
	RespondedAt      time.Time
}

type Query struct {
	CommunityID string
	UserID      string
	Status      models.RecordStatus
	Kind        models.CommandKind
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int

	// Skip pending records a reviewer has already claimed
	Unclaimed bool
}

// Store owns request records. Claim is the optimistic guard: it succeeds for
// exactly one caller while the record is pending and undecided, and every
// other caller gets apperrors.ErrAlreadyDecided. Complete only applies to a
// record whose claim matches decision.
type Store interface {
	Create(ctx context.Context, record *models.RequestRecord) error
	Get(ctx context.Context, id uuid.UUID) (*models.RequestRecord, error)
	Claim(ctx context.Context, id uuid.UUID, decision models.Decision, reviewerID string, at time.Time) (*models.RequestRecord, error)
	Complete(ctx context.Context, id uuid.UUID, decision models.Decision, outcome Outcome) (*models.RequestRecord, error)
	ListPending(ctx context.Context, communityID string) ([]models.RequestRecord, error)
	History(ctx context.Context, q Query) ([]models.RequestRecord, error)
}

func (o Outcome) Apply(r *models.RequestRecord) {
	r.Status = o.Status
	r.ResponseContent = o.ResponseContent
	r.PromptTokens = o.PromptTokens
	r.CompletionTokens = o.CompletionTokens
	r.TotalTokens = o.TotalTokens
	r.EstimatedCostUSD = o.EstimatedCostUSD
	r.ManualReply = o.ManualReply
	r.DecisionReason = o.DecisionReason
	r.ErrorCode = o.ErrorCode
	r.ErrorDetail = o.ErrorDetail
	at := o.RespondedAt
	r.RespondedAt = &at
}

// Columns for an UPDATE carrying the outcome
func (o Outcome) Columns() map[string]interface{} {
	return map[string]interface{}{
		"status":             o.Status,
		"response_content":   o.ResponseContent,
		"prompt_tokens":      o.PromptTokens,
		"completion_tokens":  o.CompletionTokens,
		"total_tokens":       o.TotalTokens,
		"estimated_cost_usd": o.EstimatedCostUSD,
		"manual_reply":       o.ManualReply,
		"decision_reason":    o.DecisionReason,
		"error_code":         o.ErrorCode,
		"error_detail":       o.ErrorDetail,
		"responded_at":       o.RespondedAt,
	}
}

const defaultHistoryLimit = 50

func (q Query) PageSize() int {
	if q.Limit <= 0 {
		return defaultHistoryLimit
	}
	if q.Limit > 500 {
		return 500
	}
	return q.Limit
}
