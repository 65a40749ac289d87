package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/apperrors"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/google/uuid"
)

// Single-process Store
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]models.RequestRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]models.RequestRecord)}
}

func (m *MemoryStore) Create(ctx context.Context, record *models.RequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	m.records[record.ID] = *record
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.RequestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) Claim(ctx context.Context, id uuid.UUID, decision models.Decision, reviewerID string, at time.Time) (*models.RequestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if r.Status != models.StatusPendingApproval || r.Decision != "" {
		return nil, apperrors.ErrAlreadyDecided
	}

	r.Decision = decision
	r.ReviewerID = reviewerID
	r.DecidedAt = &at
	m.records[id] = r
	return &r, nil
}

func (m *MemoryStore) Complete(ctx context.Context, id uuid.UUID, decision models.Decision, outcome Outcome) (*models.RequestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if r.Status != models.StatusPendingApproval || r.Decision != decision {
		return nil, apperrors.ErrAlreadyDecided
	}

	outcome.Apply(&r)
	m.records[id] = r
	return &r, nil
}

func (m *MemoryStore) ListPending(ctx context.Context, communityID string) ([]models.RequestRecord, error) {
	return m.History(ctx, Query{CommunityID: communityID, Status: models.StatusPendingApproval, Limit: 500, Unclaimed: true})
}

func (m *MemoryStore) History(ctx context.Context, q Query) ([]models.RequestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.RequestRecord
	for _, r := range m.records {
		if !q.matches(r) {
			continue
		}
		out = append(out, r)
	}

	pendingOnly := q.Status == models.StatusPendingApproval
	sort.Slice(out, func(i, j int) bool {
		if pendingOnly {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if q.Offset >= len(out) {
		return []models.RequestRecord{}, nil
	}
	out = out[q.Offset:]
	if size := q.PageSize(); len(out) > size {
		out = out[:size]
	}
	return out, nil
}

func (q Query) matches(r models.RequestRecord) bool {
	if q.CommunityID != "" && r.CommunityID != q.CommunityID {
		return false
	}
	if q.UserID != "" && r.UserID != q.UserID {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.Unclaimed && r.Decision != "" {
		return false
	}
	if !q.From.IsZero() && r.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && r.CreatedAt.After(q.To) {
		return false
	}
	return true
}
