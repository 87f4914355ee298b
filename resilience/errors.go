package resilience

import "errors"

// Sentinel errors for admission control. Both are rejections, not faults:
// callers surface them to the client and never retry internally.
var (
	// ErrCircuitOpen is returned when the circuit breaker refuses admission.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitExceeded is returned when an identifier has used its window.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")
)

// IsRejection reports whether err is an admission rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimitExceeded)
}
