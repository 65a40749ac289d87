package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/apperrors"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ingress credentials. Only hashes are stored; the plaintext key is shown
// once, at creation.
type APIKeyRepository struct {
	db *storage.Postgres
}

func NewAPIKeyRepository(db *storage.Postgres) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	return r.db.DB.WithContext(ctx).Create(key).Error
}

// FindActive returns nil, nil when no active key has this hash
func (r *APIKeyRepository) FindActive(ctx context.Context, hash string) (*models.APIKey, error) {
	var key models.APIKey
	err := r.db.DB.WithContext(ctx).
		Where("key_hash = ? AND is_active = ?", hash, true).
		Take(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *APIKeyRepository) Get(ctx context.Context, id string) (*models.APIKey, error) {
	return r.get(r.db.DB.WithContext(ctx), id)
}

func (r *APIKeyRepository) get(tx *gorm.DB, id string) (*models.APIKey, error) {
	keyID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperrors.ErrNotFound
	}

	var key models.APIKey
	err = tx.Where("id = ?", keyID).Take(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// Newest first, optionally only keys scoped to one community
func (r *APIKeyRepository) List(ctx context.Context, communityID string) ([]models.APIKey, error) {
	query := r.db.DB.WithContext(ctx).Order("created_at DESC")
	if communityID != "" {
		query = query.Where("community_id = ?", communityID)
	}

	var keys []models.APIKey
	if err := query.Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// Deactivate revokes the key and returns it as it was before
func (r *APIKeyRepository) Deactivate(ctx context.Context, id string) (*models.APIKey, error) {
	var key *models.APIKey
	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if key, err = r.get(tx, id); err != nil {
			return err
		}
		return tx.Model(&models.APIKey{}).Where("id = ?", key.ID).Update("is_active", false).Error
	})
	return key, err
}

// Remove deletes the key and returns what was deleted
func (r *APIKeyRepository) Remove(ctx context.Context, id string) (*models.APIKey, error) {
	var key *models.APIKey
	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if key, err = r.get(tx, id); err != nil {
			return err
		}
		return tx.Delete(&models.APIKey{}, "id = ?", key.ID).Error
	})
	return key, err
}

func (r *APIKeyRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at.UTC()).Error
}
