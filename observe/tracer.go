package observe

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RequestMeta describes an HTTP request for telemetry purposes.
type RequestMeta struct {
	Method    string // HTTP method
	Route     string // Route pattern, e.g. /health/{check}; low cardinality
	Path      string // Raw request path
	RequestID string
	ClientIP  string
	UserAgent string
}

// SpanName returns the span name for this request.
// Format: "<METHOD> <route>" or "<METHOD>" when the route is unknown.
func (m RequestMeta) SpanName() string {
	if m.Route == "" {
		return m.Method
	}
	return m.Method + " " + m.Route
}

// Tracer wraps OpenTelemetry tracing with request span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new server span for the request.
	StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording the final route, status code and any error.
	EndSpan(span trace.Span, meta RequestMeta, status int, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// newTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func newTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with request metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", meta.Method),
		attribute.String("url.path", meta.Path),
	}
	if meta.RequestID != "" {
		attrs = append(attrs, attribute.String("http.request.id", meta.RequestID))
	}
	if meta.ClientIP != "" {
		attrs = append(attrs, attribute.String("client.address", meta.ClientIP))
	}
	if meta.UserAgent != "" {
		attrs = append(attrs, attribute.String("user_agent.original", meta.UserAgent))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// EndSpan ends the span. The span status is Error for 5xx responses or when
// err is set; 4xx responses leave it unset.
func (t *tracerImpl) EndSpan(span trace.Span, meta RequestMeta, status int, err error) {
	if meta.Route != "" {
		span.SetName(meta.SpanName())
		span.SetAttributes(attribute.String("http.route", meta.Route))
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case status >= http.StatusInternalServerError:
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	span.End()
}
