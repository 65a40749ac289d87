package repository

import (
	"context"

	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CommunityRepository struct {
	db *storage.Postgres
}

func NewCommunityRepository(db *storage.Postgres) *CommunityRepository {
	return &CommunityRepository{db: db}
}

// Returns nil when the community has never been configured
func (r *CommunityRepository) FindConfig(ctx context.Context, communityID string) (*models.CommunityConfig, error) {
	var cfg models.CommunityConfig
	err := r.db.DB.WithContext(ctx).
		Where("community_id = ?", communityID).
		First(&cfg).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &cfg, err
}

func (r *CommunityRepository) ListConfigs(ctx context.Context) ([]models.CommunityConfig, error) {
	var configs []models.CommunityConfig
	err := r.db.DB.WithContext(ctx).
		Order("community_id ASC").
		Find(&configs).Error

	return configs, err
}

// Inserts or fully replaces a community's configuration
func (r *CommunityRepository) SaveConfig(ctx context.Context, cfg *models.CommunityConfig) error {
	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "community_id"}},
			UpdateAll: true,
		}).
		Create(cfg).Error
}

func (r *CommunityRepository) ListOperators(ctx context.Context, communityID string) ([]models.CommunityOperator, error) {
	var ops []models.CommunityOperator
	err := r.db.DB.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("created_at ASC").
		Find(&ops).Error

	return ops, err
}

func (r *CommunityRepository) IsOperator(ctx context.Context, communityID, userID string) (bool, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.CommunityOperator{}).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Count(&count).Error

	return count > 0, err
}

func (r *CommunityRepository) AddOperator(ctx context.Context, op *models.CommunityOperator) error {
	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(op).Error
}

func (r *CommunityRepository) RemoveOperator(ctx context.Context, communityID, userID string) (bool, error) {
	result := r.db.DB.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Delete(&models.CommunityOperator{})

	return result.RowsAffected > 0, result.Error
}
