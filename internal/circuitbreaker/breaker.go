package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling the generative backend after repeated
// failures and lets a single probe through once the cooldown has passed.
type CircuitBreaker struct {
	mu               sync.RWMutex
	name             string
	state            State
	failures         int
	probeSuccesses   int
	halfOpenInFlight bool
	lastFailure      time.Time
	lastStateChange  time.Time

	maxFailures    int
	cooldown       time.Duration
	probesToClose  int
	countsAsFailed func(error) bool
	now            func() time.Time
	onStateChange  func(name string, from, to State)
}

type Config struct {
	Name            string
	MaxFailures     int           // consecutive failures that open the circuit, default 5
	Timeout         time.Duration // cooldown while open, default 30s
	HalfOpenSuccess int           // probe successes needed to close, default 1

	// IsFailure decides which errors count against the circuit.
	// Default: every error except the caller's own cancellation.
	IsFailure func(error) bool

	// OnStateChange is called with the lock held; keep it cheap
	OnStateChange func(name string, from, to State)

	Clock func() time.Time
}

func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccess <= 0 {
		cfg.HalfOpenSuccess = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Name == "" {
		cfg.Name = "backend"
	}

	return &CircuitBreaker{
		name:            cfg.Name,
		state:           StateClosed,
		maxFailures:     cfg.MaxFailures,
		cooldown:        cfg.Timeout,
		probesToClose:   cfg.HalfOpenSuccess,
		countsAsFailed:  cfg.IsFailure,
		now:             cfg.Clock,
		onStateChange:   cfg.OnStateChange,
		lastStateChange: cfg.Clock(),
	}
}

// Call runs fn unless the circuit is open. While half-open only one probe
// call is let through at a time; the rest fail with ErrCircuitOpen.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.halfOpenInFlight = false
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.state.AcceptsCalls() {
		if cb.now().Sub(cb.lastFailure) <= cb.cooldown {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probeSuccesses = 0
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenInFlight {
			return ErrCircuitOpen
		}
		cb.halfOpenInFlight = true
	}
	return nil
}

// Caller holds mu
func (cb *CircuitBreaker) record(err error) {
	switch {
	case err != nil && !cb.countsAsFailed(err):
		return

	case err != nil:
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.setState(StateOpen)
			cb.probeSuccesses = 0
		}

	case cb.state == StateHalfOpen:
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.probesToClose {
			cb.setState(StateClosed)
			cb.failures = 0
		}

	default:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}

	from := cb.state
	cb.state = next
	cb.lastStateChange = cb.now()

	slog.Warn("circuit breaker state changed",
		"breaker", cb.name,
		"from", from,
		"to", next,
		"failures", cb.failures,
	)
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, next)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset closes the circuit regardless of its state, for operators who know
// the backend is back
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.failures = 0
	cb.probeSuccesses = 0
	cb.halfOpenInFlight = false
}

func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return Metrics{
		State:           cb.state.String(),
		FailureCount:    cb.failures,
		SuccessCount:    cb.probeSuccesses,
		LastFailureTime: cb.lastFailure,
		LastStateChange: cb.lastStateChange,
	}
}

// Snapshot for the health endpoint
type Metrics struct {
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time"`
	LastStateChange time.Time `json:"last_state_change"`
}
