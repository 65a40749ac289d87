package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/service"
	"github.com/gin-gonic/gin"
)

const apiKeyContextKey = "api_key"

// APIKeyFrom returns the key APIKeyValidator attached, or nil
func APIKeyFrom(c *gin.Context) *models.APIKey {
	v, exists := c.Get(apiKeyContextKey)
	if !exists {
		return nil
	}
	key, _ := v.(*models.APIKey)
	return key
}

// Requires a valid X-API-Key; gateway adapters authenticate this way
func APIKeyValidator(apiKeyService *service.APIKeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKeyHeader := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if apiKeyHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "X-API-Key header required",
			})
			return
		}

		apiKey, err := apiKeyService.Validate(c.Request.Context(), apiKeyHeader)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "API key validation unavailable",
			})
			return
		}
		if apiKey == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			return
		}

		c.Set(apiKeyContextKey, apiKey)
		c.Set("api_key_id", apiKey.ID)

		// Detached so the update outlives the request
		go apiKeyService.UpdateLastUsed(context.WithoutCancel(c.Request.Context()), apiKey.ID)

		c.Next()
	}
}
