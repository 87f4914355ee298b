// Package resilience provides request admission control for an HTTP service.
//
// # Patterns
//
//   - Rate Limiter: a per-identifier sliding window log. At most MaxRequests
//     requests per identifier are admitted within any trailing Window.
//     Rejected requests are not recorded.
//
//   - Circuit Breaker: a CLOSED / OPEN / HALF_OPEN failure gate. MaxFailures
//     consecutive failures open the circuit; after ResetTimeout the next
//     admission check moves it to half-open. A success while half-open closes
//     it, a failure re-opens it immediately.
//
// Neither pattern retries. Rejections are reported as ErrRateLimitExceeded
// and ErrCircuitOpen and are meant to be surfaced to the client.
//
// # Usage
//
//	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{
//	    Window:      time.Minute,
//	    MaxRequests: 100,
//	})
//	go rl.RunJanitor(ctx)
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    MaxFailures:  5,
//	    ResetTimeout: time.Minute,
//	})
//
//	executor := resilience.NewExecutor(
//	    resilience.WithRateLimiter(rl),
//	    resilience.WithCircuitBreaker(cb),
//	)
//
//	err := executor.Execute(ctx, clientIP, func(ctx context.Context) error {
//	    return handle(ctx)
//	})
package resilience
