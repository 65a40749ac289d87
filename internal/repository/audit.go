package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/storage"
)

type AuditRepository struct {
	db *storage.Postgres
}

func NewAuditRepository(db *storage.Postgres) *AuditRepository {
	return &AuditRepository{db: db}
}

// Inserts multiple audit entries (for batch insertion)
func (r *AuditRepository) CreateBatch(ctx context.Context, entries []*models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&entries).Error
}

func (r *AuditRepository) FindByCommunity(ctx context.Context, communityID string, from, to time.Time, limit, offset int) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := r.db.DB.WithContext(ctx).
		Where("community_id = ? AND timestamp BETWEEN ? AND ?", communityID, from, to).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error

	return entries, err
}

// Deletes entries older than the specified time
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("timestamp < ?", before).
		Delete(&models.AuditEntry{})

	return result.RowsAffected, result.Error
}
