package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/repository"
	"github.com/aman-churiwal/chat-admission/internal/storage"
	"github.com/google/uuid"
)

const apiKeyCacheTTL = 5 * time.Minute

// Issues and validates the keys gateway adapters use to submit commands
type APIKeyService struct {
	repository *repository.APIKeyRepository
	redis      *storage.RedisClient
	logger     *slog.Logger
}

func NewAPIKeyService(repo *repository.APIKeyRepository, redis *storage.RedisClient, logger *slog.Logger) *APIKeyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyService{
		repository: repo,
		redis:      redis,
		logger:     logger.With("component", "apikeys"),
	}
}

// Create returns the plain key; only its hash is stored.
func (s *APIKeyService) Create(ctx context.Context, name, createdBy, communityID string) (string, *models.APIKey, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	key := "adm_" + base64.RawURLEncoding.EncodeToString(keyBytes)

	apiKey := &models.APIKey{
		KeyHash:     hashKey(key),
		Name:        name,
		CreatedBy:   createdBy,
		CommunityID: communityID,
		IsActive:    true,
	}
	if err := s.repository.Create(ctx, apiKey); err != nil {
		return "", nil, fmt.Errorf("failed to create API key: %w", err)
	}

	return key, apiKey, nil
}

// Validate returns nil, nil for unknown or revoked keys
func (s *APIKeyService) Validate(ctx context.Context, key string) (*models.APIKey, error) {
	keyHash := hashKey(key)
	cacheKey := apiKeyCacheKey(keyHash)

	cached, err := s.redis.Get(ctx, cacheKey)
	if err == nil && cached != "" {
		var apiKey models.APIKey
		if err := json.Unmarshal([]byte(cached), &apiKey); err == nil {
			return &apiKey, nil
		}
	} else if err != nil && !storage.IsMiss(err) {
		s.logger.Warn("api key cache read failed", "error", err)
	}

	apiKey, err := s.repository.FindActive(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	if apiKey == nil {
		return nil, nil
	}

	if payload, err := json.Marshal(apiKey); err == nil {
		s.redis.Set(ctx, cacheKey, payload, apiKeyCacheTTL)
	}

	return apiKey, nil
}

func (s *APIKeyService) Get(ctx context.Context, id string) (*models.APIKey, error) {
	return s.repository.Get(ctx, id)
}

func (s *APIKeyService) List(ctx context.Context, communityID string) ([]models.APIKey, error) {
	return s.repository.List(ctx, communityID)
}

// Revoke deactivates a key and drops it from the validation cache
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	apiKey, err := s.repository.Deactivate(ctx, id)
	if err != nil {
		return err
	}
	s.invalidateCache(ctx, apiKey)
	return nil
}

func (s *APIKeyService) Delete(ctx context.Context, id string) error {
	apiKey, err := s.repository.Remove(ctx, id)
	if err != nil {
		return err
	}
	s.invalidateCache(ctx, apiKey)
	return nil
}

func (s *APIKeyService) UpdateLastUsed(ctx context.Context, id uuid.UUID) {
	if err := s.repository.Touch(ctx, id, time.Now()); err != nil {
		s.logger.Debug("failed to record key usage", "key_id", id, "error", err)
	}
}

func (s *APIKeyService) invalidateCache(ctx context.Context, apiKey *models.APIKey) {
	if err := s.redis.Del(ctx, apiKeyCacheKey(apiKey.KeyHash)); err != nil {
		s.logger.Warn("api key cache invalidation failed", "key_id", apiKey.ID, "error", err)
	}
}

func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func apiKeyCacheKey(keyHash string) string {
	return fmt.Sprintf("apikey:cache:%s", keyHash)
}
