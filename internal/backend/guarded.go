package backend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/apperrors"
	"github.com/aman-churiwal/chat-admission/internal/circuitbreaker"
	"github.com/aman-churiwal/chat-admission/internal/metrics"
)

// Guarded bounds every call with a timeout and a circuit breaker and reports
// all failures as *apperrors.BackendError.
type Guarded struct {
	next    Completer
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
	logger  *slog.Logger
}

func NewGuarded(next Completer, breaker *circuitbreaker.CircuitBreaker, timeout time.Duration, logger *slog.Logger) *Guarded {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{
		next:    next,
		breaker: breaker,
		timeout: timeout,
		logger:  logger.With("component", "backend"),
	}
}

func (g *Guarded) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var out Completion
	start := time.Now()
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		out, callErr = g.next.Complete(ctx, prompt)
		return callErr
	})
	metrics.BackendLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, circuitbreaker.ErrCircuitOpen):
			result = "circuit_open"
		case errors.Is(err, context.DeadlineExceeded):
			result = "timeout"
		}
		metrics.BackendCalls.WithLabelValues(result).Inc()
		g.logger.Warn("backend call failed", "result", result, "error", err)
		return Completion{}, &apperrors.BackendError{Cause: err}
	}

	metrics.BackendCalls.WithLabelValues("ok").Inc()
	return out, nil
}

func (g *Guarded) Breaker() *circuitbreaker.CircuitBreaker {
	return g.breaker
}
