// Package health runs health probes and aggregates their results.
//
// A Checker reports Healthy, Degraded or Unhealthy. An Aggregator runs every
// registered checker on each call, converting panics, errors and timeouts
// into unhealthy results, and combines them: healthy only if every check is
// healthy, unhealthy if any check is unhealthy, degraded otherwise.
//
// # Probes
//
//   - MemoryChecker: heap in use against heap obtained from the OS.
//   - LagChecker: scheduler lag, degraded from 100ms and unhealthy from 500ms.
//   - BreakerChecker: healthy while a circuit breaker is closed, degraded otherwise.
//
// # Usage
//
//	agg := health.NewAggregator()
//	agg.Register("memory", health.NewMemoryChecker(health.MemoryCheckerConfig{}))
//	agg.Register("eventLoop", health.NewLagChecker(lagMonitor, health.LagCheckerConfig{}))
//	agg.Register("circuitBreaker", health.NewBreakerChecker(breaker))
//
//	r.Get("/health", health.DetailedHandler(agg))
//	r.Get("/ready", health.ReadinessHandler(agg))
//	r.Get("/live", health.LivenessHandler())
package health
