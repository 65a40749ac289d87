package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when a requester exceeds the per-window request limit
	ErrRateLimited = errors.New("rate limited")

	// ErrBudgetExhausted is returned when a daily quota reservation cannot be granted
	ErrBudgetExhausted = errors.New("daily budget exhausted")

	// ErrDuplicate is returned when identical content was submitted within the duplicate window
	ErrDuplicate = errors.New("duplicate request")

	// ErrAlreadyDecided is returned when a reviewer acts on a record that is no longer pending
	ErrAlreadyDecided = errors.New("request already decided")

	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrConfigUnavailable is returned when a community configuration snapshot cannot be read
	ErrConfigUnavailable = errors.New("community configuration unavailable")

	// ErrInvalidDecision is returned for reviewer decisions outside the supported set
	ErrInvalidDecision = errors.New("invalid decision")
)

// Input was rejected by the validator
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation rejected: %s", e.Reason)
}

// The generative backend failed or timed out
type BackendError struct {
	Cause error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error: %v", e.Cause)
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}

// IsBackend reports whether err carries a BackendError
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
