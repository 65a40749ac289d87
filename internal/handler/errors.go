package handler

import (
	"errors"
	"net/http"

	"github.com/aman-churiwal/chat-admission/internal/apperrors"
	"github.com/aman-churiwal/chat-admission/internal/messages"
	"github.com/aman-churiwal/chat-admission/internal/service"
	"github.com/gin-gonic/gin"
)

// Maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyDecided),
		errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidDecision),
		errors.Is(err, service.ErrInvalidConfig),
		errors.Is(err, messages.ErrUnknownKey):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrRateLimited),
		errors.Is(err, apperrors.ErrDuplicate),
		errors.Is(err, apperrors.ErrBudgetExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrRegistrationClosed):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrConfigUnavailable):
		return http.StatusServiceUnavailable
	case apperrors.IsBackend(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
