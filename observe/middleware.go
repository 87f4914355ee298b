package observe

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Middleware wraps HTTP handlers with observability (tracing, metrics, logging).
//
// Contract:
//   - Concurrency: Handler returns a handler safe for concurrent use.
//   - Context: the span is attached to the request context seen by next.
//   - Ownership: request and response bodies pass through untouched.
type Middleware struct {
	tracer    Tracer
	metrics   Metrics
	logger    Logger
	route     func(*http.Request) string
	requestID func(*http.Request) string
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithRouteFunc sets how the route label is derived. It is called after the
// wrapped handler returns, so router state is available.
// Default: the request path.
func WithRouteFunc(fn func(*http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.route = fn
	}
}

// WithRequestIDFunc sets how the request ID is read from the request.
func WithRequestIDFunc(fn func(*http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.requestID = fn
	}
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		tracer:    tracer,
		metrics:   metrics,
		logger:    logger,
		route:     func(r *http.Request) string { return r.URL.Path },
		requestID: func(*http.Request) string { return "" },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer, opts ...MiddlewareOption) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(newTracer(obs.Tracer()), metrics, obs.Logger(), opts...), nil
}

// Metrics returns the middleware's metrics recorder.
func (m *Middleware) Metrics() Metrics {
	return m.metrics
}

// Handler wraps next with a server span, request metrics and the
// "Incoming request" / "Request completed" log pair.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		meta := RequestMeta{
			Method:    r.Method,
			Path:      r.URL.Path,
			RequestID: m.requestID(r),
			ClientIP:  clientIP(r.RemoteAddr),
			UserAgent: r.UserAgent(),
		}

		ctx, span := m.tracer.StartSpan(r.Context(), meta)

		m.logger.Info(ctx, "Incoming request",
			Field{Key: "requestId", Value: meta.RequestID},
			Field{Key: "method", Value: meta.Method},
			Field{Key: "url", Value: r.URL.RequestURI()},
			Field{Key: "remoteAddress", Value: meta.ClientIP},
			Field{Key: "userAgent", Value: meta.UserAgent},
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		duration := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		meta.Route = m.route(r)

		m.tracer.EndSpan(span, meta, status, nil)
		m.metrics.RecordRequest(ctx, meta, status, duration)

		fields := []Field{
			{Key: "requestId", Value: meta.RequestID},
			{Key: "method", Value: meta.Method},
			{Key: "url", Value: r.URL.RequestURI()},
			{Key: "statusCode", Value: status},
			{Key: "duration", Value: strconv.FormatInt(duration.Milliseconds(), 10) + "ms"},
		}
		if status >= http.StatusInternalServerError {
			m.logger.Warn(ctx, "Request completed", fields...)
			return
		}
		m.logger.Info(ctx, "Request completed", fields...)
	})
}

// clientIP strips the port from a RemoteAddr value.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
