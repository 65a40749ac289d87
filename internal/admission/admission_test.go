package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/backend"
	"github.com/aman-churiwal/chat-admission/internal/dedupe"
	"github.com/aman-churiwal/chat-admission/internal/delivery"
	"github.com/aman-churiwal/chat-admission/internal/ledger"
	"github.com/aman-churiwal/chat-admission/internal/messages"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/pricing"
	"github.com/aman-churiwal/chat-admission/internal/ratelimit"
	"github.com/aman-churiwal/chat-admission/internal/records"
	"github.com/stretchr/testify/require"
)

type fakeConfigs struct {
	mu        sync.Mutex
	configs   map[string]models.CommunityConfig
	operators map[string]bool
	err       error
}

func newFakeConfigs() *fakeConfigs {
	return &fakeConfigs{configs: map[string]models.CommunityConfig{}, operators: map[string]bool{}}
}

func (f *fakeConfigs) Snapshot(ctx context.Context, communityID string) (models.CommunityConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.CommunityConfig{}, f.err
	}
	if cfg, ok := f.configs[communityID]; ok {
		return cfg, nil
	}
	return models.DefaultCommunityConfig(communityID), nil
}

func (f *fakeConfigs) IsOperator(ctx context.Context, communityID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.operators[communityID+":"+userID], nil
}

func (f *fakeConfigs) set(cfg models.CommunityConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[cfg.CommunityID] = cfg
}

type recordingNotifier struct {
	mu      sync.Mutex
	replies []delivery.Reply
}

func (n *recordingNotifier) Deliver(ctx context.Context, reply delivery.Reply) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replies = append(n.replies, reply)
	return nil
}

func (n *recordingNotifier) all() []delivery.Reply {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]delivery.Reply(nil), n.replies...)
}

type fakeBackend struct {
	mu    sync.Mutex
	calls int
	fn    func(p backend.Prompt) (backend.Completion, error)
}

func (b *fakeBackend) Complete(ctx context.Context, p backend.Prompt) (backend.Completion, error) {
	b.mu.Lock()
	b.calls++
	fn := b.fn
	b.mu.Unlock()
	if fn == nil {
		return backend.Completion{
			Content: "Paris. Obviously.",
			Usage:   backend.Usage{PromptTokens: 40, CompletionTokens: 10, TotalTokens: 50},
		}, nil
	}
	return fn(p)
}

func (b *fakeBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (a *memoryAudit) Record(e models.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

type harness struct {
	configs   *fakeConfigs
	notifier  *recordingNotifier
	backend   *fakeBackend
	audit     *memoryAudit
	ledger    *ledger.Ledger
	records   *records.MemoryStore
	pipeline  *Pipeline
	approvals *Approvals
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	table, err := pricing.NewTable("0.30", "0.50")
	require.NoError(t, err)

	h := &harness{
		configs:  newFakeConfigs(),
		notifier: &recordingNotifier{},
		backend:  &fakeBackend{},
		audit:    &memoryAudit{},
		ledger:   ledger.New(ledger.NewMemoryStore()),
		records:  records.NewMemoryStore(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	deps := Deps{
		Configs:  h.configs,
		Limiter:  ratelimit.NewMemoryLimiter(),
		Dedupe:   dedupe.NewMemoryGuard(1000, time.Hour),
		Ledger:   h.ledger,
		Records:  h.records,
		Backend:  h.backend,
		Notifier: h.notifier,
		Messages: messages.Default(),
		Pricing:  table,
		Audit:    h.audit,
		Clock:    func() time.Time { return h.now },
	}

	h.pipeline, err = NewPipeline(deps)
	require.NoError(t, err)
	h.approvals, err = NewApprovals(deps)
	require.NoError(t, err)
	return h
}

func (h *harness) ask(content string, at time.Time) Request {
	return Request{
		CommunityID: "g1",
		ChannelID:   "c1",
		UserID:      "u1",
		MessageID:   "m1",
		Kind:        models.KindAsk,
		Content:     content,
		ReceivedAt:  at,
	}
}

func (h *harness) usage(t *testing.T) ledger.Usage {
	t.Helper()
	u, err := h.ledger.GetUsage(context.Background(), "g1", "u1", ledger.Day(h.now))
	require.NoError(t, err)
	return u
}

var questions = []string{
	"What is the capital of France?",
	"How do ocean tides work on Earth?",
	"Why does the sky look blue at noon?",
	"Explain how vaccines train immunity",
	"Who painted the Mona Lisa and when?",
	"When did the Roman empire fall apart?",
	"How many moons does Jupiter have?",
}

func TestNewPipelineRequiresCollaborators(t *testing.T) {
	_, err := NewPipeline(Deps{})
	require.Error(t, err)

	_, err = NewApprovals(Deps{Configs: newFakeConfigs()})
	require.Error(t, err)
}
