package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/apperrors"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/repository"
	"github.com/aman-churiwal/chat-admission/internal/storage"
)

var ErrInvalidConfig = errors.New("invalid community configuration")

const configCacheTTL = 30 * time.Second

type CommunityService struct {
	repository *repository.CommunityRepository
	redis      *storage.RedisClient
	logger     *slog.Logger
}

func NewCommunityService(repo *repository.CommunityRepository, redis *storage.RedisClient, logger *slog.Logger) *CommunityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommunityService{
		repository: repo,
		redis:      redis,
		logger:     logger.With("component", "community"),
	}
}

// Snapshot returns a value copy of the community's configuration. A community
// seen for the first time is persisted with defaults. Any read failure is
// reported as apperrors.ErrConfigUnavailable.
func (s *CommunityService) Snapshot(ctx context.Context, communityID string) (models.CommunityConfig, error) {
	cacheKey := configCacheKey(communityID)

	cached, err := s.redis.Get(ctx, cacheKey)
	switch {
	case err == nil && cached != "":
		var cfg models.CommunityConfig
		if err := json.Unmarshal([]byte(cached), &cfg); err == nil {
			return cfg, nil
		}
	case err != nil && !storage.IsMiss(err):
		s.logger.Warn("config cache read failed", "community_id", communityID, "error", err)
	}

	cfg, err := s.load(ctx, communityID)
	if err != nil {
		return models.CommunityConfig{}, fmt.Errorf("%w: %v", apperrors.ErrConfigUnavailable, err)
	}

	if payload, err := json.Marshal(cfg); err == nil {
		s.redis.Set(ctx, cacheKey, payload, configCacheTTL)
	}
	return cfg, nil
}

func (s *CommunityService) load(ctx context.Context, communityID string) (models.CommunityConfig, error) {
	stored, err := s.repository.FindConfig(ctx, communityID)
	if err != nil {
		return models.CommunityConfig{}, err
	}
	if stored != nil {
		return *stored, nil
	}

	cfg := models.DefaultCommunityConfig(communityID)
	if err := s.repository.SaveConfig(ctx, &cfg); err != nil {
		return models.CommunityConfig{}, err
	}
	s.logger.Info("community configured with defaults", "community_id", communityID)
	return cfg, nil
}

func (s *CommunityService) List(ctx context.Context) ([]models.CommunityConfig, error) {
	return s.repository.ListConfigs(ctx)
}

// Partial update; nil fields keep their current value
type ConfigPatch struct {
	AutoApproveEnabled           *bool    `json:"auto_approve_enabled"`
	AdminBypassAutoApprove       *bool    `json:"admin_bypass_auto_approve"`
	AskWindowSeconds             *int     `json:"ask_window_seconds"`
	AskMaxPerWindow              *int     `json:"ask_max_per_window"`
	DuplicateWindowSeconds       *int     `json:"duplicate_window_seconds"`
	UserDailyChatTokenLimit      *int64   `json:"user_daily_chat_token_limit"`
	CommunityDailyChatTokenLimit *int64   `json:"community_daily_chat_token_limit"`
	SystemPrompt                 *string  `json:"system_prompt"`
	Temperature                  *float64 `json:"temperature"`
	MaxCompletionTokens          *int     `json:"max_completion_tokens"`
	MinPromptChars               *int     `json:"min_prompt_chars"`
	MaxPromptChars               *int     `json:"max_prompt_chars"`
}

func (p ConfigPatch) apply(cfg *models.CommunityConfig) {
	if p.AutoApproveEnabled != nil {
		cfg.AutoApproveEnabled = *p.AutoApproveEnabled
	}
	if p.AdminBypassAutoApprove != nil {
		cfg.AdminBypassAutoApprove = *p.AdminBypassAutoApprove
	}
	if p.AskWindowSeconds != nil {
		cfg.AskWindowSeconds = *p.AskWindowSeconds
	}
	if p.AskMaxPerWindow != nil {
		cfg.AskMaxPerWindow = *p.AskMaxPerWindow
	}
	if p.DuplicateWindowSeconds != nil {
		cfg.DuplicateWindowSeconds = *p.DuplicateWindowSeconds
	}
	if p.UserDailyChatTokenLimit != nil {
		cfg.UserDailyChatTokenLimit = *p.UserDailyChatTokenLimit
	}
	if p.CommunityDailyChatTokenLimit != nil {
		cfg.CommunityDailyChatTokenLimit = *p.CommunityDailyChatTokenLimit
	}
	if p.SystemPrompt != nil {
		cfg.SystemPrompt = *p.SystemPrompt
	}
	if p.Temperature != nil {
		cfg.Temperature = *p.Temperature
	}
	if p.MaxCompletionTokens != nil {
		cfg.MaxCompletionTokens = *p.MaxCompletionTokens
	}
	if p.MinPromptChars != nil {
		cfg.MinPromptChars = *p.MinPromptChars
	}
	if p.MaxPromptChars != nil {
		cfg.MaxPromptChars = *p.MaxPromptChars
	}
}

func validateConfig(cfg models.CommunityConfig) error {
	switch {
	case cfg.AskWindowSeconds < 1:
		return fmt.Errorf("%w: ask_window_seconds must be at least 1", ErrInvalidConfig)
	case cfg.AskMaxPerWindow < 1:
		return fmt.Errorf("%w: ask_max_per_window must be at least 1", ErrInvalidConfig)
	case cfg.DuplicateWindowSeconds < 0 || cfg.DuplicateWindowSeconds > models.MaxDuplicateWindowSeconds:
		return fmt.Errorf("%w: duplicate_window_seconds must be between 0 and %d", ErrInvalidConfig, models.MaxDuplicateWindowSeconds)
	case cfg.UserDailyChatTokenLimit < 0 || cfg.CommunityDailyChatTokenLimit < 0:
		return fmt.Errorf("%w: daily token limits must not be negative", ErrInvalidConfig)
	case cfg.Temperature < 0 || cfg.Temperature > 2:
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidConfig)
	case cfg.MaxCompletionTokens < 1:
		return fmt.Errorf("%w: max_completion_tokens must be at least 1", ErrInvalidConfig)
	case cfg.MinPromptChars < 1 || cfg.MaxPromptChars < cfg.MinPromptChars:
		return fmt.Errorf("%w: prompt length bounds are inconsistent", ErrInvalidConfig)
	}
	return nil
}

// Update applies patch and drops the cached snapshot. Requests already in
// flight keep the snapshot they started with.
func (s *CommunityService) Update(ctx context.Context, communityID string, patch ConfigPatch) (models.CommunityConfig, error) {
	cfg, err := s.load(ctx, communityID)
	if err != nil {
		return models.CommunityConfig{}, err
	}

	patch.apply(&cfg)
	if err := validateConfig(cfg); err != nil {
		return models.CommunityConfig{}, err
	}

	if err := s.repository.SaveConfig(ctx, &cfg); err != nil {
		return models.CommunityConfig{}, fmt.Errorf("failed to save community config: %w", err)
	}

	if err := s.redis.Del(ctx, configCacheKey(communityID)); err != nil {
		s.logger.Warn("config cache invalidation failed", "community_id", communityID, "error", err)
	}
	s.logger.Info("community config updated", "community_id", communityID)
	return cfg, nil
}

func (s *CommunityService) IsOperator(ctx context.Context, communityID, userID string) (bool, error) {
	return s.repository.IsOperator(ctx, communityID, userID)
}

func (s *CommunityService) ListOperators(ctx context.Context, communityID string) ([]models.CommunityOperator, error) {
	return s.repository.ListOperators(ctx, communityID)
}

func (s *CommunityService) AddOperator(ctx context.Context, communityID, userID, role string) (*models.CommunityOperator, error) {
	if role == "" {
		role = models.RoleAdmin
	}
	op := &models.CommunityOperator{CommunityID: communityID, UserID: userID, Role: role}
	if err := s.repository.AddOperator(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to add operator: %w", err)
	}
	return op, nil
}

func (s *CommunityService) RemoveOperator(ctx context.Context, communityID, userID string) error {
	removed, err := s.repository.RemoveOperator(ctx, communityID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return apperrors.ErrNotFound
	}
	return nil
}

func configCacheKey(communityID string) string {
	return fmt.Sprintf("community:config:%s", communityID)
}
