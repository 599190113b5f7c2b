package retry

import (
	"fmt"
	"time"
)

// ── Circuit breaker state ────────────────────────────────────────────

// State represents the circuit breaker's operational state.
type State int

const (
	// StateClosed is normal operation.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down has passed.
	StateOpen
	// StateHalfOpen lets probes through to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the
	// circuit (default 5).
	MaxFailures int
	// CoolDown is how long the circuit stays open (default 1s).
	CoolDown time.Duration
	// OnStateChange, if set, is told about every transition.
	OnStateChange func(from, to State)
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// CircuitBreaker counts consecutive failures of a repeated operation
// and, once MaxFailures is reached, refuses further calls for CoolDown.
// After the cool-down one probe is allowed; success closes the
// circuit, failure re-opens it.
//
// The server uses it to stop hammering accept(2) while the process is
// out of descriptors.  It is not safe for concurrent use.
type CircuitBreaker struct {
	state       State
	failures    int
	maxFailures int
	coolDown    time.Duration
	openedAt    time.Time
	onChange    func(from, to State)
	now         func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.  A nil config
// uses the defaults.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = &CircuitBreakerConfig{}
	}
	cb := &CircuitBreaker{
		maxFailures: cfg.MaxFailures,
		coolDown:    cfg.CoolDown,
		onChange:    cfg.OnStateChange,
		now:         cfg.Now,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.coolDown <= 0 {
		cb.coolDown = time.Second
	}
	if cb.now == nil {
		cb.now = time.Now
	}
	return cb
}

// Allow reports whether the guarded operation may run now.  An open
// circuit whose cool-down has passed moves to half-open.
func (cb *CircuitBreaker) Allow() bool {
	if cb.state != StateOpen {
		return true
	}
	if cb.now().Sub(cb.openedAt) < cb.coolDown {
		return false
	}
	cb.transition(StateHalfOpen)
	return true
}

// Record feeds the outcome of one guarded call.
func (cb *CircuitBreaker) Record(err error) {
	if err == nil {
		cb.failures = 0
		cb.transition(StateClosed)
		return
	}
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
	}
}

// Execute runs fn if the circuit allows it and records the result.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return fmt.Errorf("circuit open after %d consecutive failures, retry in %v",
			cb.failures, cb.Remaining().Truncate(time.Millisecond))
	}
	err := fn()
	cb.Record(err)
	return err
}

// Remaining returns how long an open circuit will keep refusing calls.
func (cb *CircuitBreaker) Remaining() time.Duration {
	if cb.state != StateOpen {
		return 0
	}
	if left := cb.coolDown - cb.now().Sub(cb.openedAt); left > 0 {
		return left
	}
	return 0
}

// CurrentState returns the current state.
func (cb *CircuitBreaker) CurrentState() State { return cb.state }

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int { return cb.failures }

// Reset forces the circuit closed.
func (cb *CircuitBreaker) Reset() {
	cb.failures = 0
	cb.transition(StateClosed)
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}
