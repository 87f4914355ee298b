package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Window is the trailing interval over which requests are counted.
	// Default: 1 minute
	Window time.Duration

	// MaxRequests is the number of requests admitted per identifier per window.
	// Default: 100
	MaxRequests int

	// CleanupInterval is how often RunJanitor sweeps idle identifiers.
	// Default: 1 minute
	CleanupInterval time.Duration

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// RateLimiter implements a per-identifier sliding window log.
//
// Each identifier keeps the timestamps of its admitted requests. A request is
// admitted while fewer than MaxRequests timestamps fall inside the trailing
// Window. Rejected requests are not recorded.
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.Mutex
	requests map[string][]time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	// Apply defaults
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 100
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &RateLimiter{
		config:   config,
		requests: make(map[string][]time.Time),
	}
}

// Allow reports whether a request from identifier is admitted, recording it
// when it is.
func (rl *RateLimiter) Allow(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.config.Now()
	valid := rl.validLocked(identifier, now)

	if len(valid) >= rl.config.MaxRequests {
		rl.requests[identifier] = valid
		return false
	}

	rl.requests[identifier] = append(valid, now)
	return true
}

// Execute runs the operation if identifier is within its window.
func (rl *RateLimiter) Execute(ctx context.Context, identifier string, op func(context.Context) error) error {
	if !rl.Allow(identifier) {
		return ErrRateLimitExceeded
	}
	return op(ctx)
}

// Remaining returns how many more requests identifier may make in the
// current window. It does not modify the limiter's state.
func (rl *RateLimiter) Remaining(identifier string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := rl.validLocked(identifier, rl.config.Now())
	remaining := rl.config.MaxRequests - len(valid)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RetryAfter returns how long until identifier's oldest request leaves the
// window. Zero means a request would be admitted now.
func (rl *RateLimiter) RetryAfter(identifier string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.config.Now()
	valid := rl.validLocked(identifier, now)
	if len(valid) < rl.config.MaxRequests {
		return 0
	}
	return valid[0].Add(rl.config.Window).Sub(now)
}

// Cleanup drops expired timestamps and forgets identifiers with none left.
// It is safe to call at any time and has no effect on admission decisions.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.config.Now()
	for identifier := range rl.requests {
		valid := rl.validLocked(identifier, now)
		if len(valid) == 0 {
			delete(rl.requests, identifier)
			continue
		}
		rl.requests[identifier] = valid
	}
}

// RunJanitor calls Cleanup every CleanupInterval until ctx is done.
func (rl *RateLimiter) RunJanitor(ctx context.Context) error {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// Len returns the number of identifiers currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.requests)
}

// Reset forgets every identifier.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.requests = make(map[string][]time.Time)
}

// Config returns the rate limiter configuration.
func (rl *RateLimiter) Config() RateLimiterConfig {
	return rl.config
}

// validLocked returns identifier's timestamps newer than now-Window. The
// result reuses the stored backing array.
func (rl *RateLimiter) validLocked(identifier string, now time.Time) []time.Time {
	timestamps := rl.requests[identifier]
	windowStart := now.Add(-rl.config.Window)

	// Timestamps are appended in order, so the expired ones form a prefix.
	i := 0
	for i < len(timestamps) && !timestamps[i].After(windowStart) {
		i++
	}
	if i == len(timestamps) {
		return nil
	}
	return timestamps[i:]
}
