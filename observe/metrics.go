package observe

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records request telemetry through OpenTelemetry instruments.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRequest records a completed request with its status and duration.
	RecordRequest(ctx context.Context, meta RequestMeta, status int, duration time.Duration)

	// RecordRejection records a request refused by admission control.
	// reason is a short, low-cardinality label such as "rate_limited".
	RecordRejection(ctx context.Context, reason string)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	requestCount   metric.Int64Counter
	errorCount     metric.Int64Counter
	rejectionCount metric.Int64Counter
	durationHist   metric.Float64Histogram
}

// NewMetrics creates request instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	requestCount, err := meter.Int64Counter(
		"http.server.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"http.server.errors",
		metric.WithDescription("Total number of HTTP responses with status >= 400"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	rejectionCount, err := meter.Int64Counter(
		"http.server.admission.rejections",
		metric.WithDescription("Requests rejected by rate limiting or the circuit breaker"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		requestCount:   requestCount,
		errorCount:     errorCount,
		rejectionCount: rejectionCount,
		durationHist:   durationHist,
	}, nil
}

// RecordRequest records metrics for a completed request.
func (m *metricsImpl) RecordRequest(ctx context.Context, meta RequestMeta, status int, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("http.request.method", meta.Method),
		attribute.String("http.route", meta.Route),
		attribute.String("http.response.status_code", strconv.Itoa(status)),
	)

	m.requestCount.Add(ctx, 1, opt)
	if status >= 400 {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, duration.Seconds(), opt)
}

// RecordRejection records an admission rejection.
func (m *metricsImpl) RecordRejection(ctx context.Context, reason string) {
	m.rejectionCount.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
