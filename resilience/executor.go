package resilience

import (
	"context"
)

// Executor composes admission control in front of an operation.
type Executor struct {
	circuitBreaker *CircuitBreaker
	rateLimiter    *RateLimiter
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = rl
	}
}

// Admit runs the admission checks for identifier.
//
// The order is:
// 1. Rate Limiter (if configured) - returns ErrRateLimitExceeded
// 2. Circuit Breaker (if configured) - returns ErrCircuitOpen
//
// A request rejected by the rate limiter never reaches the circuit breaker,
// so it cannot move an open circuit to half-open.
func (e *Executor) Admit(identifier string) error {
	if e.rateLimiter != nil && !e.rateLimiter.Allow(identifier) {
		return ErrRateLimitExceeded
	}
	if e.circuitBreaker != nil && !e.circuitBreaker.CanExecute() {
		return ErrCircuitOpen
	}
	return nil
}

// Record reports the outcome of an admitted operation to the circuit breaker.
func (e *Executor) Record(err error) {
	if e.circuitBreaker == nil {
		return
	}
	if err != nil {
		e.circuitBreaker.RecordFailure()
		return
	}
	e.circuitBreaker.RecordSuccess()
}

// Execute admits identifier, runs op and records its outcome. Rejections are
// returned without running op and are not recorded as failures.
func (e *Executor) Execute(ctx context.Context, identifier string, op func(context.Context) error) error {
	if err := e.Admit(identifier); err != nil {
		return err
	}

	err := op(ctx)
	e.Record(err)
	return err
}

// CircuitBreaker returns the configured circuit breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker {
	return e.circuitBreaker
}

// RateLimiter returns the configured rate limiter, or nil.
func (e *Executor) RateLimiter() *RateLimiter {
	return e.rateLimiter
}
