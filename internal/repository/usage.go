package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/ledger"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Daily usage counters. Every mutation runs in one transaction that locks the
// community row before the user row, so the dashboard and the bot can share
// the database without overspending.
type UsageRepository struct {
	db *storage.Postgres
}

func NewUsageRepository(db *storage.Postgres) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Reserve(ctx context.Context, key ledger.Key, quantity int64, limits ledger.Limits) (ledger.Usage, error) {
	var usage ledger.Usage

	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		community, user, err := lockCounters(tx, key)
		if err != nil {
			return err
		}
		usage = toUsage(key, community.TokensUsed, user.TokensUsed)

		if user.TokensUsed+quantity > limits.UserDaily {
			return &ledger.LimitError{Scope: ledger.ScopeUser, Used: user.TokensUsed, Requested: quantity, Limit: limits.UserDaily}
		}
		if community.TokensUsed+quantity > limits.CommunityDaily {
			return &ledger.LimitError{Scope: ledger.ScopeCommunity, Used: community.TokensUsed, Requested: quantity, Limit: limits.CommunityDaily}
		}

		if err := writeCounters(tx, key, community.TokensUsed+quantity, user.TokensUsed+quantity); err != nil {
			return err
		}
		usage = toUsage(key, community.TokensUsed+quantity, user.TokensUsed+quantity)
		return nil
	})

	return usage, err
}

func (r *UsageRepository) Adjust(ctx context.Context, key ledger.Key, delta int64, limits ledger.Limits) (ledger.Usage, error) {
	var usage ledger.Usage

	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		community, user, err := lockCounters(tx, key)
		if err != nil {
			return err
		}

		nextCommunity := ledger.Clamp(community.TokensUsed, delta, limits.CommunityDaily)
		nextUser := ledger.Clamp(user.TokensUsed, delta, limits.UserDaily)
		if err := writeCounters(tx, key, nextCommunity, nextUser); err != nil {
			return err
		}
		usage = toUsage(key, nextCommunity, nextUser)
		return nil
	})

	return usage, err
}

// Missing rows read as zero
func (r *UsageRepository) Usage(ctx context.Context, communityID, userID, day string) (ledger.Usage, error) {
	key := ledger.Key{CommunityID: communityID, UserID: userID, Day: day}
	db := r.db.DB.WithContext(ctx)

	var community models.CommunityDailyUsage
	if err := db.Where("community_id = ? AND day = ?", communityID, day).Limit(1).Find(&community).Error; err != nil {
		return ledger.Usage{}, err
	}

	var user models.UserDailyUsage
	if userID != "" {
		if err := db.Where("community_id = ? AND user_id = ? AND day = ?", communityID, userID, day).Limit(1).Find(&user).Error; err != nil {
			return ledger.Usage{}, err
		}
	}

	return toUsage(key, community.TokensUsed, user.TokensUsed), nil
}

// Per-user totals for one community day, heaviest first
func (r *UsageRepository) TopUsers(ctx context.Context, communityID, day string, limit int) ([]models.UserDailyUsage, error) {
	var rows []models.UserDailyUsage
	err := r.db.DB.WithContext(ctx).
		Where("community_id = ? AND day = ?", communityID, day).
		Order("tokens_used DESC").
		Limit(limit).
		Find(&rows).Error

	return rows, err
}

func lockCounters(tx *gorm.DB, key ledger.Key) (models.CommunityDailyUsage, models.UserDailyUsage, error) {
	var community models.CommunityDailyUsage
	var user models.UserDailyUsage

	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CommunityDailyUsage{CommunityID: key.CommunityID, Day: key.Day}).Error; err != nil {
		return community, user, err
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserDailyUsage{CommunityID: key.CommunityID, UserID: key.UserID, Day: key.Day}).Error; err != nil {
		return community, user, err
	}

	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("community_id = ? AND day = ?", key.CommunityID, key.Day).
		First(&community).Error; err != nil {
		return community, user, err
	}
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("community_id = ? AND user_id = ? AND day = ?", key.CommunityID, key.UserID, key.Day).
		First(&user).Error; err != nil {
		return community, user, err
	}

	return community, user, nil
}

func writeCounters(tx *gorm.DB, key ledger.Key, community, user int64) error {
	now := time.Now().UTC()

	if err := tx.Model(&models.CommunityDailyUsage{}).
		Where("community_id = ? AND day = ?", key.CommunityID, key.Day).
		Updates(map[string]interface{}{"tokens_used": community, "updated_at": now}).Error; err != nil {
		return err
	}

	return tx.Model(&models.UserDailyUsage{}).
		Where("community_id = ? AND user_id = ? AND day = ?", key.CommunityID, key.UserID, key.Day).
		Updates(map[string]interface{}{"tokens_used": user, "updated_at": now}).Error
}

func toUsage(key ledger.Key, community, user int64) ledger.Usage {
	return ledger.Usage{
		CommunityID:     key.CommunityID,
		UserID:          key.UserID,
		Day:             key.Day,
		UserTokens:      user,
		CommunityTokens: community,
	}
}
