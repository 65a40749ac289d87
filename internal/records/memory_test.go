package records

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/apperrors"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending(community string, at time.Time) *models.RequestRecord {
	return &models.RequestRecord{
		CommunityID: community,
		ChannelID:   "c1",
		UserID:      "u1",
		Kind:        models.KindAsk,
		Content:     "what is a monad",
		Status:      models.StatusPendingApproval,
		CreatedAt:   at,
	}
}

func TestClaim(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("exactly one concurrent claim wins", func(t *testing.T) {
		store := NewMemoryStore()
		rec := pending("g1", now)
		require.NoError(t, store.Create(ctx, rec))

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, lost := 0, 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Claim(ctx, rec.ID, models.DecisionManual, "rev", now)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					wins++
				} else if errors.Is(err, apperrors.ErrAlreadyDecided) {
					lost++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, 19, lost)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		store := NewMemoryStore()
		_, err := store.Claim(ctx, uuid.New(), models.DecisionReject, "rev", now)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("terminal record cannot be claimed", func(t *testing.T) {
		store := NewMemoryStore()
		rec := pending("g1", now)
		rec.Status = models.StatusAutoResponded
		require.NoError(t, store.Create(ctx, rec))

		_, err := store.Claim(ctx, rec.ID, models.DecisionBackend, "rev", now)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyDecided)
	})
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	rec := pending("g1", now)
	require.NoError(t, store.Create(ctx, rec))

	_, err := store.Complete(ctx, rec.ID, models.DecisionManual, Outcome{Status: models.StatusApprovedManual, RespondedAt: now})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyDecided, "completing without a claim must fail")

	claimed, err := store.Claim(ctx, rec.ID, models.DecisionManual, "rev", now)
	require.NoError(t, err)
	assert.Equal(t, "rev", claimed.ReviewerID)

	done, err := store.Complete(ctx, rec.ID, models.DecisionManual, Outcome{
		Status:      models.StatusApprovedManual,
		ManualReply: "no.",
		RespondedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApprovedManual, done.Status)
	assert.Equal(t, "no.", done.ManualReply)
	require.NotNil(t, done.DecidedAt)

	_, err = store.Complete(ctx, rec.ID, models.DecisionManual, Outcome{Status: models.StatusRejected, RespondedAt: now})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyDecided)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApprovedManual, got.Status)
}

func TestListPending(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()

	newest := pending("g1", base.Add(2*time.Minute))
	oldest := pending("g1", base)
	middle := pending("g1", base.Add(time.Minute))
	other := pending("g2", base)
	done := pending("g1", base)
	done.Status = models.StatusRejected

	for _, r := range []*models.RequestRecord{newest, oldest, middle, other, done} {
		require.NoError(t, store.Create(ctx, r))
	}

	list, err := store.ListPending(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, oldest.ID, list[0].ID)
	assert.Equal(t, middle.ID, list[1].ID)
	assert.Equal(t, newest.ID, list[2].ID)

	_, err = store.Claim(ctx, middle.ID, models.DecisionBackend, "rev", base)
	require.NoError(t, err)

	list, err = store.ListPending(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, list, 2, "claimed records leave the queue")
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()

	for i := 0; i < 5; i++ {
		r := pending("g1", base.Add(time.Duration(i)*time.Minute))
		r.Status = models.StatusAutoResponded
		require.NoError(t, store.Create(ctx, r))
	}

	page, err := store.History(ctx, Query{CommunityID: "g1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt), "history is newest first")

	page, err = store.History(ctx, Query{CommunityID: "g1", Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	page, err = store.History(ctx, Query{CommunityID: "g1", From: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = store.History(ctx, Query{CommunityID: "g1", Kind: models.KindAsk})
	require.NoError(t, err)
	assert.Len(t, page, 5)

	page, err = store.History(ctx, Query{CommunityID: "g1", Kind: "image"})
	require.NoError(t, err)
	assert.Empty(t, page)
}
