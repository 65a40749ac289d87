package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/storage"
)

type StatusCount struct {
	Status models.RecordStatus
	Count  int64
}

type ReasonCount struct {
	Reason string
	Count  int64
}

type TokenTotals struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

type HourlyCount struct {
	Hour  time.Time
	Count int64
}

// Read-only aggregates over request records and the rejection audit
type AnalyticsRepository struct {
	db *storage.Postgres
}

func NewAnalyticsRepository(db *storage.Postgres) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

func (r *AnalyticsRepository) CountByStatus(ctx context.Context, communityID string, from, to time.Time) ([]StatusCount, error) {
	var results []StatusCount
	err := r.db.DB.WithContext(ctx).
		Model(&models.RequestRecord{}).
		Select("status, COUNT(*) as count").
		Where("community_id = ? AND created_at BETWEEN ? AND ?", communityID, from, to).
		Group("status").
		Scan(&results).Error

	return results, err
}

// Local rejections grouped by reason
func (r *AnalyticsRepository) CountRejections(ctx context.Context, communityID string, from, to time.Time) ([]ReasonCount, error) {
	var results []ReasonCount
	err := r.db.DB.WithContext(ctx).
		Model(&models.AuditEntry{}).
		Select("reason, COUNT(*) as count").
		Where("community_id = ? AND timestamp BETWEEN ? AND ?", communityID, from, to).
		Group("reason").
		Order("count DESC").
		Scan(&results).Error

	return results, err
}

func (r *AnalyticsRepository) SumTokens(ctx context.Context, communityID string, from, to time.Time) (TokenTotals, error) {
	var totals TokenTotals
	err := r.db.DB.WithContext(ctx).
		Model(&models.RequestRecord{}).
		Select("COALESCE(SUM(prompt_tokens), 0) as prompt_tokens, "+
			"COALESCE(SUM(completion_tokens), 0) as completion_tokens, "+
			"COALESCE(SUM(total_tokens), 0) as total_tokens").
		Where("community_id = ? AND created_at BETWEEN ? AND ?", communityID, from, to).
		Scan(&totals).Error

	return totals, err
}

// Per-record cost strings; summed with decimal arithmetic by the caller
func (r *AnalyticsRepository) Costs(ctx context.Context, communityID string, from, to time.Time) ([]string, error) {
	var costs []string
	err := r.db.DB.WithContext(ctx).
		Model(&models.RequestRecord{}).
		Where("community_id = ? AND created_at BETWEEN ? AND ? AND estimated_cost_usd IS NOT NULL", communityID, from, to).
		Pluck("estimated_cost_usd", &costs).Error

	return costs, err
}

// Returns the record count grouped by hour
func (r *AnalyticsRepository) Hourly(ctx context.Context, communityID string, from, to time.Time) ([]HourlyCount, error) {
	if r.db.DB.Dialector.Name() == "postgres" {
		var results []HourlyCount
		err := r.db.DB.WithContext(ctx).
			Model(&models.RequestRecord{}).
			Select("DATE_TRUNC('hour', created_at) as hour, COUNT(*) as count").
			Where("community_id = ? AND created_at BETWEEN ? AND ?", communityID, from, to).
			Group("hour").
			Order("hour ASC").
			Scan(&results).Error
		return results, err
	}

	// Bucketed here for dialects without DATE_TRUNC
	var stamps []time.Time
	err := r.db.DB.WithContext(ctx).
		Model(&models.RequestRecord{}).
		Where("community_id = ? AND created_at BETWEEN ? AND ?", communityID, from, to).
		Order("created_at ASC").
		Pluck("created_at", &stamps).Error
	if err != nil {
		return nil, err
	}

	var results []HourlyCount
	for _, ts := range stamps {
		hour := ts.UTC().Truncate(time.Hour)
		if n := len(results); n > 0 && results[n-1].Hour.Equal(hour) {
			results[n-1].Count++
			continue
		}
		results = append(results, HourlyCount{Hour: hour, Count: 1})
	}
	return results, nil
}
