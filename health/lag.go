package health

import (
	"context"
	"time"
)

// LagSource reports the most recently measured scheduler lag.
type LagSource interface {
	Lag() time.Duration
}

// LagCheckerConfig configures the scheduler lag checker.
type LagCheckerConfig struct {
	// DegradedAfter is the lag at or above which the check reports degraded.
	// Default: 100ms
	DegradedAfter time.Duration

	// UnhealthyAfter is the lag at or above which the check reports unhealthy.
	// Default: 500ms
	UnhealthyAfter time.Duration
}

// LagChecker reports scheduler lag against fixed thresholds.
type LagChecker struct {
	source LagSource
	config LagCheckerConfig
}

// NewLagChecker creates a lag checker reading from source.
func NewLagChecker(source LagSource, config LagCheckerConfig) *LagChecker {
	if config.DegradedAfter <= 0 {
		config.DegradedAfter = 100 * time.Millisecond
	}
	if config.UnhealthyAfter <= 0 {
		config.UnhealthyAfter = 500 * time.Millisecond
	}
	if config.UnhealthyAfter < config.DegradedAfter {
		config.UnhealthyAfter = config.DegradedAfter
	}
	return &LagChecker{source: source, config: config}
}

// Name returns the name of this checker.
func (c *LagChecker) Name() string {
	return "eventLoop"
}

// Check performs the lag health check.
func (c *LagChecker) Check(ctx context.Context) Result {
	lag := c.source.Lag()
	details := map[string]any{
		"lagMs": float64(lag) / float64(time.Millisecond),
	}

	switch {
	case lag >= c.config.UnhealthyAfter:
		return Unhealthy("scheduler lag critical", nil).WithDetails(details)
	case lag >= c.config.DegradedAfter:
		return Degraded("scheduler lag high").WithDetails(details)
	default:
		return Healthy("scheduler lag normal").WithDetails(details)
	}
}
