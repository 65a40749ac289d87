package circuitbreaker

// State of the backend circuit. The numeric values are exported as the
// admission_circuit_breaker_state gauge, so their order is fixed.
type State int

const (
	StateClosed State = iota
	// Calls fail fast with ErrCircuitOpen until the cooldown elapses
	StateOpen
	// One probe call at a time decides whether to close or reopen
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half_open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Gauge is the value reported for s on the state metric
func (s State) Gauge() float64 {
	return float64(s)
}

// AcceptsCalls reports whether a call may at least be attempted in s
func (s State) AcceptsCalls() bool {
	return s != StateOpen
}
