package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// Throttles HTTP callers, keyed by API key when one is present and by client
// IP otherwise. This guards the API itself; per-user command limits are
// applied by the admission pipeline.
func RateLimit(limiter ratelimit.Limiter, rule ratelimit.Rule, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "http:ip:" + c.ClientIP()
		if apiKey := APIKeyFrom(c); apiKey != nil {
			key = "http:key:" + apiKey.ID.String()
		}

		now := time.Now()
		result, err := limiter.Acquire(c.Request.Context(), key, rule, now)
		if err != nil {
			logger.Error("http rate limit check failed", "key", key, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Rate limit check failed",
			})
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", rule.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))

		if !result.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(rule.Window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
				"limit": rule.Limit,
			})
			return
		}

		c.Next()
	}
}
