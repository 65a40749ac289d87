package handler

import (
	"net/http"

	"github.com/aman-churiwal/chat-admission/internal/circuitbreaker"
	"github.com/aman-churiwal/chat-admission/internal/healthcheck"
	"github.com/gin-gonic/gin"
)

// Handles health and circuit breaker endpoints
type SystemHandler struct {
	checker  *healthcheck.Checker
	breakers map[string]*circuitbreaker.CircuitBreaker
}

func NewSystemHandler(checker *healthcheck.Checker, breakers map[string]*circuitbreaker.CircuitBreaker) *SystemHandler {
	return &SystemHandler{
		checker:  checker,
		breakers: breakers,
	}
}

// Handles GET /health. Only a failing critical dependency returns 503.
func (h *SystemHandler) Health(c *gin.Context) {
	overall := h.checker.OverallHealth()

	status := http.StatusOK
	if overall == healthcheck.Unhealthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":       overall.String(),
		"dependencies": h.checker.GetAllStatus(),
	})
}

// Returns the status of all circuit breakers
func (h *SystemHandler) CircuitBreakerStatus(c *gin.Context) {
	statuses := make(map[string]circuitbreaker.Metrics, len(h.breakers))
	for name, cb := range h.breakers {
		statuses[name] = cb.Metrics()
	}

	c.JSON(http.StatusOK, statuses)
}

// Manually resets a circuit breaker
func (h *SystemHandler) ResetCircuitBreaker(c *gin.Context) {
	name := c.Param("name")

	cb, exists := h.breakers[name]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Circuit breaker not found",
		})
		return
	}

	cb.Reset()

	c.JSON(http.StatusOK, gin.H{
		"message": "Circuit breaker reset successfully",
		"name":    name,
	})
}
