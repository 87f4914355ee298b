package resilience

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is rejecting all requests.
	StateOpen
	// StateHalfOpen means the circuit is letting a trial request through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening the circuit.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before admitting a trial.
	// Default: 60 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests caps the requests admitted while half-open.
	// Default: 0 (no cap; every request is admitted until an outcome is recorded)
	HalfOpenMaxRequests int

	// OnStateChange is called, with the lock held, when the circuit state changes.
	// It must not call back into the breaker.
	OnStateChange func(from, to State, failures int)

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// CircuitBreaker is a three-state failure gate.
//
// Admission is checked with CanExecute and outcomes are reported with
// RecordSuccess and RecordFailure. A single failure while half-open re-opens
// the circuit and restarts the reset timeout.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	nextAttempt   time.Time
	halfOpenCount int
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	// Apply defaults
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxRequests < 0 {
		config.HalfOpenMaxRequests = 0
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &CircuitBreaker{
		config:      config,
		state:       StateClosed,
		nextAttempt: config.Now(),
	}
}

// CanExecute reports whether a request may proceed. An open circuit whose
// reset timeout has elapsed moves to half-open and admits the caller.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.config.Now().Before(cb.nextAttempt) {
			return false
		}
		cb.setStateLocked(StateHalfOpen)
		cb.halfOpenCount = 1
		return true
	case StateHalfOpen:
		if cb.config.HalfOpenMaxRequests > 0 && cb.halfOpenCount >= cb.config.HalfOpenMaxRequests {
			return false
		}
		cb.halfOpenCount++
		return true
	default:
		return true
	}
}

// RecordSuccess resets the failure count and closes a half-open circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.setStateLocked(StateClosed)
	}
}

// RecordFailure counts a failure and opens the circuit once MaxFailures is
// reached, or immediately when half-open. Failures reported while already
// open are counted but do not extend the reset timeout.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.openLocked()
		}
	case StateHalfOpen:
		cb.openLocked()
	}
}

// Execute runs the operation through the circuit breaker, recording its outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if !cb.CanExecute() {
		return ErrCircuitOpen
	}

	if err := op(ctx); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// State returns the current circuit state without advancing it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns the current state and failure count.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap := Snapshot{
		State:    cb.state,
		Failures: cb.failures,
	}
	if cb.state == StateOpen {
		snap.NextAttempt = cb.nextAttempt
	}
	return snap
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.halfOpenCount = 0
	cb.setStateLocked(StateClosed)
}

func (cb *CircuitBreaker) openLocked() {
	cb.nextAttempt = cb.config.Now().Add(cb.config.ResetTimeout)
	cb.setStateLocked(StateOpen)
}

func (cb *CircuitBreaker) setStateLocked(state State) {
	oldState := cb.state
	cb.state = state
	if state != StateHalfOpen {
		cb.halfOpenCount = 0
	}

	if oldState != state && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, state, cb.failures)
	}
}

// Snapshot is a point-in-time view of the circuit breaker.
type Snapshot struct {
	State       State     `json:"state"`
	Failures    int       `json:"failureCount"`
	NextAttempt time.Time `json:"nextAttempt,omitzero"`
}
