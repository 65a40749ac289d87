package admission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/backend"
	"github.com/aman-churiwal/chat-admission/internal/dedupe"
	"github.com/aman-churiwal/chat-admission/internal/delivery"
	"github.com/aman-churiwal/chat-admission/internal/ledger"
	"github.com/aman-churiwal/chat-admission/internal/messages"
	"github.com/aman-churiwal/chat-admission/internal/metrics"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/pricing"
	"github.com/aman-churiwal/chat-admission/internal/ratelimit"
	"github.com/aman-churiwal/chat-admission/internal/records"
)

// ConfigSource yields immutable per-community snapshots
type ConfigSource interface {
	Snapshot(ctx context.Context, communityID string) (models.CommunityConfig, error)
	IsOperator(ctx context.Context, communityID, userID string) (bool, error)
}

type AuditSink interface {
	Record(entry models.AuditEntry)
}

// Deps are the collaborators shared by the pipeline and the approval flow.
// Audit, Pricing and Clock are optional.
type Deps struct {
	Configs  ConfigSource
	Limiter  ratelimit.Limiter
	Dedupe   dedupe.Guard
	Ledger   *ledger.Ledger
	Records  records.Store
	Backend  backend.Completer
	Notifier delivery.Notifier
	Messages *messages.Catalog
	Pricing  *pricing.Table
	Audit    AuditSink
	Logger   *slog.Logger
	Clock    func() time.Time
}

func (d *Deps) defaults() error {
	switch {
	case d.Configs == nil:
		return errors.New("admission: config source is required")
	case d.Ledger == nil:
		return errors.New("admission: ledger is required")
	case d.Records == nil:
		return errors.New("admission: record store is required")
	case d.Backend == nil:
		return errors.New("admission: backend is required")
	case d.Notifier == nil:
		return errors.New("admission: notifier is required")
	}
	if d.Messages == nil {
		d.Messages = messages.Default()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	return nil
}

// Community persona first, catalog persona otherwise
func (d *Deps) prompt(cfg models.CommunityConfig, content string) backend.Prompt {
	system := cfg.SystemPrompt
	if system == "" {
		system = d.Messages.SystemPrompt()
	}
	return backend.Prompt{
		System:      system,
		User:        content,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxCompletionTokens,
	}
}

func limitsOf(cfg models.CommunityConfig) ledger.Limits {
	return ledger.Limits{
		UserDaily:      cfg.UserDailyChatTokenLimit,
		CommunityDaily: cfg.CommunityDailyChatTokenLimit,
	}
}

// Tokens to charge for a completed call. A backend that reports no usage is
// charged the reservation.
func consumed(c backend.Completion, reserved int64) int64 {
	if c.Usage.TotalTokens > 0 {
		return c.Usage.TotalTokens
	}
	if sum := c.Usage.PromptTokens + c.Usage.CompletionTokens; sum > 0 {
		return sum
	}
	return reserved
}

// Fills the usage and cost fields of a successful outcome
func (d *Deps) usageOutcome(out *records.Outcome, c backend.Completion) {
	content := c.Content
	prompt, completion, total := c.Usage.PromptTokens, c.Usage.CompletionTokens, c.Usage.TotalTokens
	out.ResponseContent = &content
	out.PromptTokens = &prompt
	out.CompletionTokens = &completion
	out.TotalTokens = &total

	if d.Pricing == nil || (prompt == 0 && completion == 0) {
		return
	}
	cost, err := d.Pricing.Cost(prompt, completion)
	if err != nil {
		d.Logger.Warn("cost calculation failed", "error", err)
		return
	}
	out.EstimatedCostUSD = &cost
}

// Bound on the bookkeeping that follows a claim or a backend call
const settleTimeout = 10 * time.Second

// Once the backend has been called or a record claimed, persistence, ledger
// settlement and the reply must not be cut short by the caller going away.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// Returns (part of) a reservation. Failures are logged; the counter only
// ever stays too high, never too low.
func (d *Deps) settle(ctx context.Context, key ledger.Key, reserved, actual int64, limits ledger.Limits) {
	if _, err := d.Ledger.Reconcile(ctx, key, reserved, actual, limits); err != nil {
		d.Logger.Error("ledger reconcile failed",
			"community_id", key.CommunityID,
			"user_id", key.UserID,
			"day", key.Day,
			"reserved", reserved,
			"actual", actual,
			"error", err,
		)
	}
}

func (d *Deps) deliver(ctx context.Context, reply delivery.Reply) {
	reply.Content = d.Messages.Format(reply.Content)
	if err := d.Notifier.Deliver(ctx, reply); err != nil {
		metrics.Deliveries.WithLabelValues("error").Inc()
		d.Logger.Warn("reply delivery failed", "channel_id", reply.ChannelID, "error", err)
		return
	}
	metrics.Deliveries.WithLabelValues("ok").Inc()
}
