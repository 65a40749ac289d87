package service

import (
	"context"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/ledger"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/pricing"
	"github.com/aman-churiwal/chat-admission/internal/records"
	"github.com/aman-churiwal/chat-admission/internal/repository"
)

type AnalyticsService struct {
	repository *repository.AnalyticsRepository
	usage      *repository.UsageRepository
	audit      *repository.AuditRepository
	records    records.Store
}

func NewAnalyticsService(repo *repository.AnalyticsRepository, usage *repository.UsageRepository, audit *repository.AuditRepository, store records.Store) *AnalyticsService {
	return &AnalyticsService{
		repository: repo,
		usage:      usage,
		audit:      audit,
		records:    store,
	}
}

// Holds analytics summary data for one community
type AnalyticsSummary struct {
	TotalRecords     int64            `json:"total_records"`
	ByStatus         map[string]int64 `json:"by_status"`
	LocalRejections  map[string]int64 `json:"local_rejections"`
	TotalRejections  int64            `json:"total_local_rejections"`
	PromptTokens     int64            `json:"prompt_tokens"`
	CompletionTokens int64            `json:"completion_tokens"`
	TotalTokens      int64            `json:"total_tokens"`
	EstimatedCostUSD string           `json:"estimated_cost_usd"`
	ApprovalRate     float64          `json:"approval_rate"`
}

// Holds time-series analytics data
type TimeSeriesData struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// Retrieves analytics summary for a time range
func (s *AnalyticsService) GetSummary(ctx context.Context, communityID string, from, to time.Time) (*AnalyticsSummary, error) {
	summary := &AnalyticsSummary{
		ByStatus:         map[string]int64{},
		LocalRejections:  map[string]int64{},
		EstimatedCostUSD: "0",
	}

	statuses, err := s.repository.CountByStatus(ctx, communityID, from, to)
	if err != nil {
		return nil, err
	}
	for _, sc := range statuses {
		summary.ByStatus[string(sc.Status)] = sc.Count
		summary.TotalRecords += sc.Count
	}

	rejections, err := s.repository.CountRejections(ctx, communityID, from, to)
	if err != nil {
		return nil, err
	}
	for _, rc := range rejections {
		summary.LocalRejections[rc.Reason] = rc.Count
		summary.TotalRejections += rc.Count
	}

	if summary.TotalRecords == 0 {
		return summary, nil
	}

	totals, err := s.repository.SumTokens(ctx, communityID, from, to)
	if err != nil {
		return nil, err
	}
	summary.PromptTokens = totals.PromptTokens
	summary.CompletionTokens = totals.CompletionTokens
	summary.TotalTokens = totals.TotalTokens

	costs, err := s.repository.Costs(ctx, communityID, from, to)
	if err != nil {
		return nil, err
	}
	summary.EstimatedCostUSD = pricing.Sum(costs)

	// Share of reviewed records that got an answer
	approved := summary.ByStatus[string(models.StatusApprovedBackend)] + summary.ByStatus[string(models.StatusApprovedManual)]
	if reviewed := approved + summary.ByStatus[string(models.StatusRejected)]; reviewed > 0 {
		summary.ApprovalRate = float64(approved) / float64(reviewed) * 100
	}

	return summary, nil
}

// Retrieves time-series data
func (s *AnalyticsService) GetTimeSeriesData(ctx context.Context, communityID string, from, to time.Time) ([]TimeSeriesData, error) {
	hourly, err := s.repository.Hourly(ctx, communityID, from, to)
	if err != nil {
		return nil, err
	}

	timeSeries := make([]TimeSeriesData, 0, len(hourly))
	for _, h := range hourly {
		timeSeries = append(timeSeries, TimeSeriesData{Hour: h.Hour, Count: h.Count})
	}
	return timeSeries, nil
}

// Heaviest users of a community on one day
func (s *AnalyticsService) TopUsers(ctx context.Context, communityID, day string, limit int) ([]models.UserDailyUsage, error) {
	if day == "" {
		day = ledger.Day(time.Now())
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.usage.TopUsers(ctx, communityID, day, limit)
}

// Retrieves request records with pagination and filtering
func (s *AnalyticsService) GetHistory(ctx context.Context, q records.Query) ([]models.RequestRecord, error) {
	return s.records.History(ctx, q)
}

func (s *AnalyticsService) GetRejections(ctx context.Context, communityID string, from, to time.Time, limit, offset int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.audit.FindByCommunity(ctx, communityID, from, to, limit, offset)
}

// Deletes audit entries older than the retention period
func (s *AnalyticsService) CleanupAudit(ctx context.Context, retentionDays int) (int64, error) {
	cutOff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	return s.audit.DeleteOlderThan(ctx, cutOff)
}
