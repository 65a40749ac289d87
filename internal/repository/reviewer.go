package repository

import (
	"context"

	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/storage"
	"gorm.io/gorm"
)

type ReviewerRepository struct {
	db *storage.Postgres
}

func NewReviewerRepository(db *storage.Postgres) *ReviewerRepository {
	return &ReviewerRepository{db: db}
}

// Inserts a new reviewer
func (r *ReviewerRepository) Create(ctx context.Context, reviewer *models.Reviewer) error {
	return r.db.DB.WithContext(ctx).Create(reviewer).Error
}

// Retrieves reviewer by email
func (r *ReviewerRepository) FindByEmail(ctx context.Context, email string) (*models.Reviewer, error) {
	var reviewer models.Reviewer
	err := r.db.DB.WithContext(ctx).
		Where("email = ?", email).
		First(&reviewer).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &reviewer, err
}

// Retrieves reviewer by id
func (r *ReviewerRepository) FindByID(ctx context.Context, id string) (*models.Reviewer, error) {
	var reviewer models.Reviewer
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&reviewer).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &reviewer, err
}

func (r *ReviewerRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).Model(&models.Reviewer{}).Count(&count).Error
	return count, err
}

func (r *ReviewerRepository) List(ctx context.Context) ([]models.Reviewer, error) {
	var reviewers []models.Reviewer
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Find(&reviewers).Error

	return reviewers, err
}
