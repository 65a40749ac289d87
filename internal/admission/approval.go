package admission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aman-churiwal/chat-admission/internal/apperrors"
	"github.com/aman-churiwal/chat-admission/internal/delivery"
	"github.com/aman-churiwal/chat-admission/internal/ledger"
	"github.com/aman-churiwal/chat-admission/internal/messages"
	"github.com/aman-churiwal/chat-admission/internal/metrics"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/records"
	"github.com/google/uuid"
)

// Approvals drives pending records to a terminal status on reviewer decisions
type Approvals struct {
	deps   Deps
	logger *slog.Logger
}

func NewApprovals(deps Deps) (*Approvals, error) {
	if err := deps.defaults(); err != nil {
		return nil, err
	}
	return &Approvals{
		deps:   deps,
		logger: deps.Logger.With("component", "approvals"),
	}, nil
}

// Pending records of a community, oldest first
func (a *Approvals) ListPending(ctx context.Context, communityID string) ([]models.RequestRecord, error) {
	return a.deps.Records.ListPending(ctx, communityID)
}

func (a *Approvals) Get(ctx context.Context, id uuid.UUID) (*models.RequestRecord, error) {
	return a.deps.Records.Get(ctx, id)
}

// Decide applies one reviewer decision. Exactly one caller per record wins the
// claim; everyone else gets apperrors.ErrAlreadyDecided with no side effect.
// A failed backend call leaves the record in error and returns a
// *apperrors.BackendError alongside it.
func (a *Approvals) Decide(ctx context.Context, id uuid.UUID, reviewerID string, decision models.Decision, text string) (*models.RequestRecord, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidDecision, decision)
	}

	record, err := a.deps.Records.Claim(ctx, id, decision, reviewerID, a.deps.Clock())
	if err != nil {
		return nil, err
	}

	log := a.logger.With("record_id", record.ID, "community_id", record.CommunityID, "decision", decision, "reviewer_id", reviewerID)
	key := ledger.Key{CommunityID: record.CommunityID, UserID: record.UserID, Day: record.UsageDay}

	switch decision {
	case models.DecisionManual:
		reply := strings.TrimSpace(text)
		if reply == "" {
			reply = a.deps.Messages.Message(messages.ManualReplyDefault, nil)
		}
		return a.finish(ctx, log, record, key, ledger.Limits{}, 0, records.Outcome{
			Status:      models.StatusApprovedManual,
			ManualReply: reply,
		}, reply)

	case models.DecisionReject:
		reason := strings.TrimSpace(text)
		reply := reason
		if reply == "" {
			reply = a.deps.Messages.Message(messages.RejectionDefault, nil)
		}
		return a.finish(ctx, log, record, key, ledger.Limits{}, 0, records.Outcome{
			Status:         models.StatusRejected,
			DecisionReason: reason,
		}, reply)
	}

	return a.useBackend(ctx, log, record, key)
}

func (a *Approvals) useBackend(ctx context.Context, log *slog.Logger, record *models.RequestRecord, key ledger.Key) (*models.RequestRecord, error) {
	snapCtx, cancel := detach(ctx)
	cfg, err := a.deps.Configs.Snapshot(snapCtx, record.CommunityID)
	cancel()
	if err != nil {
		done, finishErr := a.finish(ctx, log, record, key, ledger.Limits{}, 0, records.Outcome{
			Status:      models.StatusError,
			ErrorCode:   ReasonConfigUnavailable,
			ErrorDetail: err.Error(),
		}, a.deps.Messages.Message(messages.UnknownError, nil))
		if finishErr != nil {
			return nil, finishErr
		}
		return done, err
	}

	completion, callErr := a.deps.Backend.Complete(ctx, a.deps.prompt(cfg, record.Content))
	if callErr != nil {
		log.Warn("backend call failed", "error", callErr)
		done, err := a.finish(ctx, log, record, key, limitsOf(cfg), 0, records.Outcome{
			Status:      models.StatusError,
			ErrorCode:   ReasonBackendError,
			ErrorDetail: callErr.Error(),
		}, a.deps.Messages.Message(messages.AIErrorChat, nil))
		if err != nil {
			return nil, err
		}
		if !apperrors.IsBackend(callErr) {
			callErr = &apperrors.BackendError{Cause: callErr}
		}
		return done, callErr
	}

	outcome := records.Outcome{Status: models.StatusApprovedBackend}
	a.deps.usageOutcome(&outcome, completion)
	return a.finish(ctx, log, record, key, limitsOf(cfg), consumed(completion, record.ReservedTokens), outcome, completion.Content)
}

// Persists the terminal status, then settles the reservation to actual and
// delivers the single reply. The claim already guarantees a single winner, so
// settlement and delivery run even when persisting the outcome fails.
func (a *Approvals) finish(ctx context.Context, log *slog.Logger, record *models.RequestRecord, key ledger.Key, limits ledger.Limits, actual int64, outcome records.Outcome, reply string) (*models.RequestRecord, error) {
	ctx, cancel := detach(ctx)
	defer cancel()

	outcome.RespondedAt = a.deps.Clock()
	done, err := a.deps.Records.Complete(ctx, record.ID, record.Decision, outcome)
	if err != nil {
		log.Error("failed to complete record", "status", outcome.Status, "error", err)
	}

	a.deps.settle(ctx, key, record.ReservedTokens, actual, limits)
	a.deps.deliver(ctx, delivery.Reply{
		ChannelID:        record.ChannelID,
		Content:          reply,
		MentionUserID:    record.UserID,
		ReplyToMessageID: record.MessageID,
	})

	if err != nil {
		return nil, err
	}
	metrics.Decisions.WithLabelValues(string(record.Decision), string(done.Status)).Inc()
	log.Info("decision applied", "status", done.Status, "reserved", record.ReservedTokens, "charged", actual)
	return done, nil
}
