package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/apperrors"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/records"
	"github.com/aman-churiwal/chat-admission/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RecordRepository struct {
	db *storage.Postgres
}

func NewRecordRepository(db *storage.Postgres) *RecordRepository {
	return &RecordRepository{db: db}
}

// Inserts a new request record
func (r *RecordRepository) Create(ctx context.Context, record *models.RequestRecord) error {
	return r.db.DB.WithContext(ctx).Create(record).Error
}

func (r *RecordRepository) Get(ctx context.Context, id uuid.UUID) (*models.RequestRecord, error) {
	var record models.RequestRecord
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&record).Error

	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// Conditional update: only a pending, undecided row is claimed
func (r *RecordRepository) Claim(ctx context.Context, id uuid.UUID, decision models.Decision, reviewerID string, at time.Time) (*models.RequestRecord, error) {
	result := r.db.DB.WithContext(ctx).
		Model(&models.RequestRecord{}).
		Where("id = ? AND status = ? AND decision = ?", id, models.StatusPendingApproval, "").
		Updates(map[string]interface{}{
			"decision":    decision,
			"reviewer_id": reviewerID,
			"decided_at":  at,
		})

	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, r.missOrDecided(ctx, id)
	}

	return r.Get(ctx, id)
}

func (r *RecordRepository) Complete(ctx context.Context, id uuid.UUID, decision models.Decision, outcome records.Outcome) (*models.RequestRecord, error) {
	result := r.db.DB.WithContext(ctx).
		Model(&models.RequestRecord{}).
		Where("id = ? AND status = ? AND decision = ?", id, models.StatusPendingApproval, decision).
		Updates(outcome.Columns())

	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, r.missOrDecided(ctx, id)
	}

	return r.Get(ctx, id)
}

// Unclaimed pending records, oldest first
func (r *RecordRepository) ListPending(ctx context.Context, communityID string) ([]models.RequestRecord, error) {
	var list []models.RequestRecord
	err := r.db.DB.WithContext(ctx).
		Where("community_id = ? AND status = ? AND decision = ?", communityID, models.StatusPendingApproval, "").
		Order("created_at ASC").
		Limit(500).
		Find(&list).Error

	return list, err
}

// Records matching the query, newest first
func (r *RecordRepository) History(ctx context.Context, q records.Query) ([]models.RequestRecord, error) {
	query := r.db.DB.WithContext(ctx).Model(&models.RequestRecord{})

	if q.CommunityID != "" {
		query = query.Where("community_id = ?", q.CommunityID)
	}
	if q.UserID != "" {
		query = query.Where("user_id = ?", q.UserID)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Kind != "" {
		query = query.Where("kind = ?", q.Kind)
	}
	if q.Unclaimed {
		query = query.Where("decision = ?", "")
	}
	if !q.From.IsZero() {
		query = query.Where("created_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		query = query.Where("created_at <= ?", q.To)
	}

	var list []models.RequestRecord
	err := query.
		Order("created_at DESC").
		Limit(q.PageSize()).
		Offset(q.Offset).
		Find(&list).Error

	return list, err
}

func (r *RecordRepository) missOrDecided(ctx context.Context, id uuid.UUID) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return apperrors.ErrAlreadyDecided
}
