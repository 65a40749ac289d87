package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/apperrors"
	"github.com/aman-churiwal/chat-admission/internal/backend"
	"github.com/aman-churiwal/chat-admission/internal/messages"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Queues one request under auto-approve and returns its record id
func queueOne(t *testing.T, h *harness, content string, at time.Time) uuid.UUID {
	t.Helper()
	cfg := models.DefaultCommunityConfig("g1")
	cfg.AutoApproveEnabled = true
	h.configs.set(cfg)

	out, err := h.pipeline.Handle(context.Background(), h.ask(content, at))
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, out.Kind)
	return uuid.MustParse(out.RecordID)
}

func TestManualDecision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := queueOne(t, h, questions[0], h.now)
	require.Positive(t, h.usage(t).UserTokens)

	rec, err := h.approvals.Decide(ctx, id, "reviewer-1", models.DecisionManual, "no.")
	require.NoError(t, err)

	assert.Equal(t, models.StatusApprovedManual, rec.Status)
	assert.Equal(t, "no.", rec.ManualReply)
	assert.Equal(t, "reviewer-1", rec.ReviewerID)
	assert.NotNil(t, rec.DecidedAt)
	assert.Zero(t, h.backend.count())
	assert.Zero(t, h.usage(t).UserTokens, "manual replies consume no budget")

	replies := h.notifier.all()
	require.Len(t, replies, 2)
	assert.Equal(t, "no.", replies[1].Content)
	assert.Equal(t, "u1", replies[1].MentionUserID)
	assert.Equal(t, "c1", replies[1].ChannelID)

	_, err = h.approvals.Decide(ctx, id, "reviewer-2", models.DecisionReject, "")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyDecided)
	assert.Len(t, h.notifier.all(), 2, "second decision has no side effects")
}

func TestManualDecisionDefaultText(t *testing.T) {
	h := newHarness(t)
	id := queueOne(t, h, questions[0], h.now)

	rec, err := h.approvals.Decide(context.Background(), id, "r", models.DecisionManual, "   ")
	require.NoError(t, err)
	assert.Equal(t, messages.Default().Message(messages.ManualReplyDefault, nil), rec.ManualReply)
}

func TestRejectDecision(t *testing.T) {
	ctx := context.Background()

	t.Run("with reason", func(t *testing.T) {
		h := newHarness(t)
		id := queueOne(t, h, questions[0], h.now)

		rec, err := h.approvals.Decide(ctx, id, "r", models.DecisionReject, "off topic")
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, rec.Status)
		assert.Equal(t, "off topic", rec.DecisionReason)
		assert.Equal(t, "off topic", h.notifier.all()[1].Content)
		assert.Zero(t, h.usage(t).UserTokens)
	})

	t.Run("default text", func(t *testing.T) {
		h := newHarness(t)
		id := queueOne(t, h, questions[0], h.now)

		rec, err := h.approvals.Decide(ctx, id, "r", models.DecisionReject, "")
		require.NoError(t, err)
		assert.Empty(t, rec.DecisionReason)
		assert.Equal(t, messages.Default().Message(messages.RejectionDefault, nil), h.notifier.all()[1].Content)
	})
}

func TestBackendDecision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := queueOne(t, h, questions[0], h.now)

	rec, err := h.approvals.Decide(ctx, id, "r", models.DecisionBackend, "")
	require.NoError(t, err)

	assert.Equal(t, models.StatusApprovedBackend, rec.Status)
	require.NotNil(t, rec.ResponseContent)
	assert.Equal(t, "Paris. Obviously.", *rec.ResponseContent)
	require.NotNil(t, rec.TotalTokens)
	assert.Equal(t, int64(50), *rec.TotalTokens)
	require.NotNil(t, rec.EstimatedCostUSD)
	assert.Equal(t, "0.000017", *rec.EstimatedCostUSD)
	assert.Equal(t, 1, h.backend.count())

	usage := h.usage(t)
	assert.Equal(t, int64(50), usage.UserTokens)
	assert.Equal(t, int64(50), usage.CommunityTokens)

	replies := h.notifier.all()
	require.Len(t, replies, 2)
	assert.Equal(t, "Paris. Obviously.", replies[1].Content)
	assert.Equal(t, "u1", replies[1].MentionUserID)
}

func TestBackendDecisionFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := queueOne(t, h, questions[0], h.now)
	h.backend.fn = func(backend.Prompt) (backend.Completion, error) {
		return backend.Completion{}, errors.New("upstream 503")
	}

	rec, err := h.approvals.Decide(ctx, id, "r", models.DecisionBackend, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsBackend(err))

	require.NotNil(t, rec)
	assert.Equal(t, models.StatusError, rec.Status)
	assert.Equal(t, ReasonBackendError, rec.ErrorCode)
	assert.Zero(t, h.usage(t).UserTokens)
	assert.Equal(t, messages.Default().Message(messages.AIErrorChat, nil), h.notifier.all()[1].Content)

	pending, err := h.approvals.ListPending(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestConcurrentDecisionsHaveOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := queueOne(t, h, questions[0], h.now)

	decisions := []models.Decision{models.DecisionBackend, models.DecisionManual, models.DecisionReject}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, lost := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(d models.Decision) {
			defer wg.Done()
			_, err := h.approvals.Decide(ctx, id, "r", d, "ok")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperrors.ErrAlreadyDecided):
				lost++
			}
		}(decisions[i%len(decisions)])
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 11, lost)
	assert.Len(t, h.notifier.all(), 2)
	assert.LessOrEqual(t, h.backend.count(), 1)
}

func TestDecideErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.approvals.Decide(ctx, uuid.New(), "r", models.DecisionManual, "x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	id := queueOne(t, h, questions[0], h.now)
	_, err = h.approvals.Decide(ctx, id, "r", models.Decision("maybe"), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidDecision)

	pending, err := h.approvals.ListPending(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, pending, 1, "invalid decision leaves the record pending")
}

func TestListPendingOldestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := queueOne(t, h, questions[0], h.now)
	second := queueOne(t, h, questions[1], h.now.Add(time.Second))
	third := queueOne(t, h, questions[2], h.now.Add(2*time.Second))

	_, err := h.approvals.Decide(ctx, second, "r", models.DecisionReject, "")
	require.NoError(t, err)

	pending, err := h.approvals.ListPending(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0].ID)
	assert.Equal(t, third, pending[1].ID)
}
