package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/apperrors"
	"github.com/aman-churiwal/chat-admission/internal/backend"
	"github.com/aman-churiwal/chat-admission/internal/dedupe"
	"github.com/aman-churiwal/chat-admission/internal/ledger"
	"github.com/aman-churiwal/chat-admission/internal/messages"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/pricing"
	"github.com/aman-churiwal/chat-admission/internal/ratelimit"
	"github.com/aman-churiwal/chat-admission/internal/records"
	"github.com/aman-churiwal/chat-admission/internal/repository"
	"github.com/aman-churiwal/chat-admission/internal/storage"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

// Cancels the caller's context right after a successful claim, the way a
// reviewer closing the dashboard mid-request would.
type cancelAfterClaim struct {
	records.Store
	cancel context.CancelFunc
}

func (s *cancelAfterClaim) Claim(ctx context.Context, id uuid.UUID, decision models.Decision, reviewerID string, at time.Time) (*models.RequestRecord, error) {
	rec, err := s.Store.Claim(ctx, id, decision, reviewerID, at)
	s.cancel()
	return rec, err
}

type failingComplete struct {
	records.Store
}

func (s *failingComplete) Complete(ctx context.Context, id uuid.UUID, decision models.Decision, outcome records.Outcome) (*models.RequestRecord, error) {
	return nil, errors.New("database is locked")
}

// Harness over SQLite-backed records and usage counters, which honour the
// context unlike the memory stores. wrap may decorate the record store.
func newDurableHarness(t *testing.T, wrap func(records.Store) records.Store) (*harness, *repository.RecordRepository) {
	t.Helper()

	db, err := storage.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), logger.Silent)
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { db.Close() })

	repo := repository.NewRecordRepository(db)
	var store records.Store = repo
	if wrap != nil {
		store = wrap(repo)
	}

	table, err := pricing.NewTable("0.30", "0.50")
	require.NoError(t, err)

	h := &harness{
		configs:  newFakeConfigs(),
		notifier: &recordingNotifier{},
		backend:  &fakeBackend{},
		audit:    &memoryAudit{},
		ledger:   ledger.New(repository.NewUsageRepository(db)),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	deps := Deps{
		Configs:  h.configs,
		Limiter:  ratelimit.NewMemoryLimiter(),
		Dedupe:   dedupe.NewMemoryGuard(1000, time.Hour),
		Ledger:   h.ledger,
		Records:  store,
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
	return h, repo
}

func TestFulfilSurvivesCallerCancellation(t *testing.T) {
	t.Run("completion returned as the caller left", func(t *testing.T) {
		h, repo := newDurableHarness(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h.backend.fn = func(backend.Prompt) (backend.Completion, error) {
			cancel()
			return backend.Completion{Content: "Paris.", Usage: backend.Usage{TotalTokens: 50}}, nil
		}

		out, err := h.pipeline.Handle(ctx, h.ask(questions[0], h.now))
		require.NoError(t, err)
		require.Equal(t, OutcomeFulfilled, out.Kind)
		require.NotEmpty(t, out.RecordID)

		rec, err := repo.Get(context.Background(), uuid.MustParse(out.RecordID))
		require.NoError(t, err)
		assert.Equal(t, models.StatusAutoResponded, rec.Status)

		usage := h.usage(t)
		assert.Equal(t, int64(50), usage.UserTokens)
		assert.Equal(t, int64(50), usage.CommunityTokens)
		assert.Len(t, h.notifier.all(), 1)
	})

	t.Run("backend aborted by cancellation", func(t *testing.T) {
		h, repo := newDurableHarness(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h.backend.fn = func(backend.Prompt) (backend.Completion, error) {
			cancel()
			return backend.Completion{}, context.Canceled
		}

		out, err := h.pipeline.Handle(ctx, h.ask(questions[0], h.now))
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, out.Kind)
		assert.Equal(t, ReasonBackendError, out.Reason)
		require.NotEmpty(t, out.RecordID, "the error record is still written")

		rec, err := repo.Get(context.Background(), uuid.MustParse(out.RecordID))
		require.NoError(t, err)
		assert.Equal(t, models.StatusError, rec.Status)

		assert.Zero(t, h.usage(t).UserTokens, "reservation released")
		assert.Zero(t, h.usage(t).CommunityTokens)
		replies := h.notifier.all()
		require.Len(t, replies, 1)
		assert.Equal(t, messages.Default().Message(messages.AIErrorChat, nil), replies[0].Content)
	})
}

func TestDecisionSurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h, repo := newDurableHarness(t, func(s records.Store) records.Store {
		return &cancelAfterClaim{Store: s, cancel: cancel}
	})

	first := queueOne(t, h, questions[0], h.now)
	second := queueOne(t, h, questions[1], h.now)
	require.Positive(t, h.usage(t).UserTokens)

	rec, err := h.approvals.Decide(ctx, first, "r", models.DecisionBackend, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApprovedBackend, rec.Status)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	h.approvals.deps.Records.(*cancelAfterClaim).cancel = cancel2
	rec, err = h.approvals.Decide(ctx2, second, "r", models.DecisionReject, "off topic")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rec.Status)

	for _, id := range []uuid.UUID{first, second} {
		stored, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		assert.NotEqual(t, models.StatusPendingApproval, stored.Status)
	}

	pending, err := repo.ListPending(context.Background(), "g1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	usage := h.usage(t)
	assert.Equal(t, int64(50), usage.UserTokens, "only the backend answer is charged")
	assert.Equal(t, int64(50), usage.CommunityTokens)

	replies := h.notifier.all()
	require.Len(t, replies, 4)
	assert.Equal(t, "Paris. Obviously.", replies[2].Content)
	assert.Equal(t, "off topic", replies[3].Content)
}

func TestDecisionCompleteFailureAfterBackend(t *testing.T) {
	h, repo := newDurableHarness(t, func(s records.Store) records.Store {
		return &failingComplete{Store: s}
	})
	ctx := context.Background()
	id := queueOne(t, h, questions[0], h.now)

	rec, err := h.approvals.Decide(ctx, id, "r", models.DecisionBackend, "")
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 1, h.backend.count())

	stored, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, stored.Status)
	assert.Equal(t, models.DecisionBackend, stored.Decision, "claim stays held")

	pending, err := repo.ListPending(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	usage := h.usage(t)
	assert.Equal(t, int64(50), usage.UserTokens, "the backend call is charged even though the record was not updated")
	assert.Equal(t, int64(50), usage.CommunityTokens)

	replies := h.notifier.all()
	require.Len(t, replies, 2)
	assert.Equal(t, "Paris. Obviously.", replies[1].Content)

	_, err = h.approvals.Decide(ctx, id, "r2", models.DecisionManual, "again")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyDecided)
	assert.Len(t, h.notifier.all(), 2)
}
