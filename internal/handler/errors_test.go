package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aman-churiwal/chat-admission/internal/apperrors"
	"github.com/aman-churiwal/chat-admission/internal/messages"
	"github.com/aman-churiwal/chat-admission/internal/service"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("record %s: %w", "x", apperrors.ErrNotFound), http.StatusNotFound},
		{apperrors.ErrAlreadyDecided, http.StatusConflict},
		{service.ErrEmailTaken, http.StatusConflict},
		{fmt.Errorf("%w: \"maybe\"", apperrors.ErrInvalidDecision), http.StatusBadRequest},
		{fmt.Errorf("%w: window", service.ErrInvalidConfig), http.StatusBadRequest},
		{fmt.Errorf("%w %q", messages.ErrUnknownKey, "nope"), http.StatusBadRequest},
		{apperrors.ErrBudgetExhausted, http.StatusTooManyRequests},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrRegistrationClosed, http.StatusForbidden},
		{apperrors.ErrConfigUnavailable, http.StatusServiceUnavailable},
		{&apperrors.BackendError{Cause: errors.New("timeout")}, http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
