package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/aman-churiwal/chat-admission/internal/backend"
	"github.com/aman-churiwal/chat-admission/internal/dedupe"
	"github.com/aman-churiwal/chat-admission/internal/delivery"
	"github.com/aman-churiwal/chat-admission/internal/ledger"
	"github.com/aman-churiwal/chat-admission/internal/messages"
	"github.com/aman-churiwal/chat-admission/internal/metrics"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/ratelimit"
	"github.com/aman-churiwal/chat-admission/internal/records"
	"github.com/aman-churiwal/chat-admission/internal/validator"
)

// Pipeline decides, per inbound command, whether to reject it locally,
// queue it for review, or fulfil it now.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
}

func NewPipeline(deps Deps) (*Pipeline, error) {
	if err := deps.defaults(); err != nil {
		return nil, err
	}
	if deps.Limiter == nil || deps.Dedupe == nil {
		return nil, errors.New("admission: limiter and duplicate guard are required")
	}
	return &Pipeline{
		deps:   deps,
		logger: deps.Logger.With("component", "pipeline"),
	}, nil
}

var validationMessages = map[string]string{
	validator.ReasonEmpty:     messages.EmptyInput,
	validator.ReasonTrivial:   messages.TrivialInput,
	validator.ReasonTooShort:  messages.TooShort,
	validator.ReasonTooLong:   messages.TooLong,
	validator.ReasonGibberish: messages.Gibberish,
}

// Handle runs the admission steps in order and stops at the first rejection.
// The returned error is non-nil only for infrastructure failures; the
// Outcome is always usable and its reply has already been delivered.
func (p *Pipeline) Handle(ctx context.Context, req Request) (Outcome, error) {
	now := req.ReceivedAt
	if now.IsZero() {
		now = p.deps.Clock()
	}
	now = now.UTC()
	log := p.logger.With("community_id", req.CommunityID, "user_id", req.UserID, "kind", req.Kind)

	cfg, err := p.deps.Configs.Snapshot(ctx, req.CommunityID)
	if err != nil {
		log.Error("config snapshot unavailable, failing closed", "error", err)
		return p.reject(ctx, req, now, ReasonConfigUnavailable, messages.ConfigUnavailable, nil), err
	}

	if !req.Kind.Valid() {
		return p.reject(ctx, req, now, ReasonInvalidKind, messages.InvalidInput, nil), nil
	}

	verdict := validator.Classify(req.Content, validator.Limits{MinChars: cfg.MinPromptChars, MaxChars: cfg.MaxPromptChars})
	if !verdict.Accepted {
		vars := map[string]string{"max_chars": strconv.Itoa(cfg.MaxPromptChars)}
		return p.reject(ctx, req, now, verdict.Reason, validationMessages[verdict.Reason], vars), nil
	}

	limit, window := cfg.RateRule(req.Kind)
	rate, err := p.deps.Limiter.Acquire(ctx, ratelimit.Key(req.CommunityID, req.UserID, req.Kind), ratelimit.Rule{Limit: limit, Window: window}, now)
	if err != nil {
		log.Error("rate limiter unavailable, failing closed", "error", err)
		return p.fail(ctx, req, now, ReasonInternal), fmt.Errorf("rate limiter: %w", err)
	}
	if !rate.Allowed {
		return p.reject(ctx, req, now, ReasonRateLimited, messages.RateLimitChat, nil), nil
	}

	seen, err := p.deps.Dedupe.Seen(ctx, dedupe.Fingerprint(req.CommunityID, req.UserID, req.Kind, req.Content), cfg.DuplicateWindow(), now)
	if err != nil {
		log.Error("duplicate guard unavailable, failing closed", "error", err)
		return p.fail(ctx, req, now, ReasonInternal), fmt.Errorf("duplicate guard: %w", err)
	}
	if seen {
		metrics.DuplicateHits.WithLabelValues(string(req.Kind)).Inc()
		return p.reject(ctx, req, now, ReasonDuplicate, messages.Duplicate, nil), nil
	}

	prompt := p.deps.prompt(cfg, req.Content)
	estimate := backend.Estimate(prompt.System, prompt.User, prompt.MaxTokens)
	key := ledger.Key{CommunityID: req.CommunityID, UserID: req.UserID, Day: ledger.Day(now)}
	limits := limitsOf(cfg)

	if _, err := p.deps.Ledger.TryReserve(ctx, key, estimate, limits); err != nil {
		var limitErr *ledger.LimitError
		if errors.As(err, &limitErr) {
			metrics.LedgerDenials.WithLabelValues(string(limitErr.Scope)).Inc()
			msg := messages.ChatBudgetUser
			if limitErr.Scope == ledger.ScopeCommunity {
				msg = messages.ChatBudgetCommunity
			}
			return p.reject(ctx, req, now, ReasonBudgetExhausted, msg, nil), nil
		}
		log.Error("ledger reservation failed", "error", err)
		return p.fail(ctx, req, now, ReasonInternal), err
	}
	metrics.ReservedTokens.Add(float64(estimate))

	record := &models.RequestRecord{
		CommunityID:    req.CommunityID,
		ChannelID:      req.ChannelID,
		UserID:         req.UserID,
		MessageID:      req.MessageID,
		Kind:           req.Kind,
		Content:        req.Content,
		CreatedAt:      now,
		UsageDay:       key.Day,
		ReservedTokens: estimate,
	}

	if cfg.RequiresApproval(p.exempt(ctx, log, req, cfg)) {
		return p.queue(ctx, log, req, record, key, limits)
	}
	return p.fulfil(ctx, log, req, record, key, limits, prompt)
}

// Operator lookup only matters when approval is on; a failed lookup counts as
// not exempt so the request is reviewed rather than waved through.
func (p *Pipeline) exempt(ctx context.Context, log *slog.Logger, req Request, cfg models.CommunityConfig) bool {
	if req.IsAdmin || !cfg.AutoApproveEnabled || !cfg.AdminBypassAutoApprove {
		return req.IsAdmin
	}
	operator, err := p.deps.Configs.IsOperator(ctx, req.CommunityID, req.UserID)
	if err != nil {
		log.Warn("operator lookup failed, treating as non-exempt", "error", err)
		return false
	}
	return operator
}

// The reservation stays held while the record waits for a reviewer
func (p *Pipeline) queue(ctx context.Context, log *slog.Logger, req Request, record *models.RequestRecord, key ledger.Key, limits ledger.Limits) (Outcome, error) {
	ctx, cancel := detach(ctx)
	defer cancel()

	record.Status = models.StatusPendingApproval
	if err := p.deps.Records.Create(ctx, record); err != nil {
		p.deps.settle(ctx, key, record.ReservedTokens, 0, limits)
		log.Error("failed to persist pending record", "error", err)
		return p.fail(ctx, req, record.CreatedAt, ReasonInternal), err
	}

	notice := p.deps.Messages.Message(messages.PendingApprovalChat, nil)
	p.deps.deliver(ctx, delivery.Reply{ChannelID: req.ChannelID, Content: notice, ReplyToMessageID: req.MessageID})

	metrics.AdmissionOutcomes.WithLabelValues(string(req.Kind), string(OutcomeQueued), "").Inc()
	log.Info("request queued for approval", "record_id", record.ID, "reserved", record.ReservedTokens)
	return Outcome{Kind: OutcomeQueued, RecordID: record.ID.String(), Reply: notice}, nil
}

func (p *Pipeline) fulfil(ctx context.Context, log *slog.Logger, req Request, record *models.RequestRecord, key ledger.Key, limits ledger.Limits, prompt backend.Prompt) (Outcome, error) {
	completion, callErr := p.deps.Backend.Complete(ctx, prompt)
	ctx, cancel := detach(ctx)
	defer cancel()
	respondedAt := p.deps.Clock()
	record.RespondedAt = &respondedAt

	var outcome Outcome
	if callErr != nil {
		p.deps.settle(ctx, key, record.ReservedTokens, 0, limits)

		record.Status = models.StatusError
		record.ErrorCode = ReasonBackendError
		record.ErrorDetail = callErr.Error()
		outcome = Outcome{Kind: OutcomeFailed, Reason: ReasonBackendError, Reply: p.deps.Messages.Message(messages.AIErrorChat, nil)}
		log.Warn("backend call failed", "error", callErr)
	} else {
		p.deps.settle(ctx, key, record.ReservedTokens, consumed(completion, record.ReservedTokens), limits)

		var fields records.Outcome
		p.deps.usageOutcome(&fields, completion)
		fields.Status = models.StatusAutoResponded
		fields.RespondedAt = respondedAt
		fields.Apply(record)
		outcome = Outcome{Kind: OutcomeFulfilled, Reply: completion.Content}
	}

	var persistErr error
	if err := p.deps.Records.Create(ctx, record); err != nil {
		log.Error("failed to persist record", "status", record.Status, "error", err)
		persistErr = err
	} else {
		outcome.RecordID = record.ID.String()
	}

	p.deps.deliver(ctx, delivery.Reply{ChannelID: req.ChannelID, Content: outcome.Reply, ReplyToMessageID: req.MessageID})
	metrics.AdmissionOutcomes.WithLabelValues(string(req.Kind), string(outcome.Kind), outcome.Reason).Inc()
	if outcome.Kind == OutcomeFulfilled {
		log.Info("request fulfilled", "record_id", record.ID, "tokens", consumed(completion, record.ReservedTokens))
	}
	return outcome, persistErr
}

// Local rejection: reply, audit, nothing persisted as a record
func (p *Pipeline) reject(ctx context.Context, req Request, at time.Time, reason, messageKey string, vars map[string]string) Outcome {
	reply := p.deps.Messages.Message(messageKey, vars)
	p.deps.deliver(ctx, delivery.Reply{ChannelID: req.ChannelID, Content: reply, ReplyToMessageID: req.MessageID})

	if p.deps.Audit != nil {
		p.deps.Audit.Record(models.AuditEntry{
			Timestamp:   at,
			CommunityID: req.CommunityID,
			ChannelID:   req.ChannelID,
			UserID:      req.UserID,
			Kind:        req.Kind,
			Reason:      reason,
			ContentLen:  utf8.RuneCountInString(req.Content),
		})
	}

	metrics.AdmissionOutcomes.WithLabelValues(string(req.Kind), string(OutcomeRejected), reason).Inc()
	p.logger.Debug("request rejected locally", "community_id", req.CommunityID, "user_id", req.UserID, "reason", reason)
	return Outcome{Kind: OutcomeRejected, Reason: reason, Reply: reply}
}

func (p *Pipeline) fail(ctx context.Context, req Request, at time.Time, reason string) Outcome {
	reply := p.deps.Messages.Message(messages.UnknownError, nil)
	p.deps.deliver(ctx, delivery.Reply{ChannelID: req.ChannelID, Content: reply, ReplyToMessageID: req.MessageID})
	metrics.AdmissionOutcomes.WithLabelValues(string(req.Kind), string(OutcomeFailed), reason).Inc()
	return Outcome{Kind: OutcomeFailed, Reason: reason, Reply: reply}
}
