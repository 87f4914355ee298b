package health

import (
	"context"

	"github.com/jonwraymond/sreguard/resilience"
)

// BreakerSource exposes a circuit breaker's current state.
type BreakerSource interface {
	Snapshot() resilience.Snapshot
}

// BreakerChecker reports healthy while the circuit is closed and degraded
// otherwise. It never reports unhealthy.
type BreakerChecker struct {
	source BreakerSource
}

// NewBreakerChecker creates a circuit breaker checker.
func NewBreakerChecker(source BreakerSource) *BreakerChecker {
	return &BreakerChecker{source: source}
}

// Name returns the name of this checker.
func (c *BreakerChecker) Name() string {
	return "circuitBreaker"
}

// Check performs the circuit breaker health check.
func (c *BreakerChecker) Check(ctx context.Context) Result {
	snap := c.source.Snapshot()
	details := map[string]any{
		"state":        snap.State.String(),
		"failureCount": snap.Failures,
	}
	if !snap.NextAttempt.IsZero() {
		details["nextAttempt"] = snap.NextAttempt
	}

	if snap.State == resilience.StateClosed {
		return Healthy("circuit closed").WithDetails(details)
	}
	return Degraded("circuit " + snap.State.String()).WithDetails(details)
}
