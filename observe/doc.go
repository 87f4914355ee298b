// Package observe provides tracing, metrics and structured logging for HTTP
// request handling.
//
// NewObserver wires OpenTelemetry tracer and meter providers and a zap-backed
// JSON Logger from a Config. Middleware wraps an http.Handler with a server
// span, request instruments and an "Incoming request" / "Request completed"
// log pair. With the prometheus metrics exporter, MetricsHandler serves the
// OpenTelemetry instruments alongside Go runtime and process collectors.
package observe
