package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/sreguard/config"
	"github.com/jonwraymond/sreguard/health"
	"github.com/jonwraymond/sreguard/metrics"
	"github.com/jonwraymond/sreguard/observe"
	"github.com/jonwraymond/sreguard/resilience"
)

type testServer struct {
	*Server
	opts Options
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *testServer {
	t.Helper()

	cfg := config.Default()
	opts := Options{
		Config:    cfg,
		Limiter:   resilience.NewRateLimiter(resilience.RateLimiterConfig{Window: time.Minute, MaxRequests: 100}),
		Breaker:   resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: time.Minute}),
		Collector: metrics.NewCollector(metrics.Config{Lag: metrics.StaticLag(0)}),
		Health:    health.NewAggregator(),
	}
	for _, m := range mutate {
		m(&opts)
	}

	s, err := New(opts)
	require.NoError(t, err)
	return &testServer{Server: s, opts: opts}
}

func (ts *testServer) do(t *testing.T, method, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	return ts.doFrom(t, "192.0.2.1:1234", method, path, header...)
}

// doFrom sends the request from the given peer address.
func (ts *testServer) doFrom(t *testing.T, remoteAddr, method, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestRequestIDHeaders(t *testing.T) {
	ts := newTestServer(t)

	t.Run("Generated", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/live")
		require.Equal(t, http.StatusOK, rec.Code)

		id := rec.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, "2.0.0", rec.Header().Get(AppVersionHeader))

		body := decodeBody(t, rec)
		assert.Equal(t, "alive", body["status"])
		assert.Equal(t, id, body["requestId"])
	})

	t.Run("Propagated", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/live", RequestIDHeader, "req-123")
		assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-123", decodeBody(t, rec)["requestId"])
	})
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		ts := newTestServer(t)
		ts.opts.Health.Register("ok", health.NewCheckerFunc("ok", func(context.Context) health.Result {
			return health.Healthy("fine")
		}))

		rec := ts.do(t, http.MethodGet, "/health")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "healthy", body["status"])
		checks := body["checks"].(map[string]any)
		assert.Equal(t, "healthy", checks["ok"].(map[string]any)["status"])

		rec = ts.do(t, http.MethodGet, "/ready")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ready", decodeBody(t, rec)["status"])
	})

	t.Run("Degraded", func(t *testing.T) {
		ts := newTestServer(t)
		ts.opts.Health.Register("slow", health.NewCheckerFunc("slow", func(context.Context) health.Result {
			return health.Degraded("slow")
		}))

		rec := ts.do(t, http.MethodGet, "/health")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "degraded", decodeBody(t, rec)["status"])

		rec = ts.do(t, http.MethodGet, "/ready")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Unhealthy", func(t *testing.T) {
		ts := newTestServer(t)
		ts.opts.Health.Register("broken", health.NewCheckerFunc("broken", func(context.Context) health.Result {
			panic("probe exploded")
		}))

		rec := ts.do(t, http.MethodGet, "/health")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "unhealthy", body["status"])
		broken := body["checks"].(map[string]any)["broken"].(map[string]any)
		assert.Contains(t, broken["error"], "probe exploded")

		rec = ts.do(t, http.MethodGet, "/ready")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "not ready", decodeBody(t, rec)["status"])

		// Probe outcomes are not handler failures.
		assert.Equal(t, resilience.StateClosed, ts.opts.Breaker.State())
	})

	t.Run("SingleCheck", func(t *testing.T) {
		ts := newTestServer(t)
		ts.opts.Health.Register("ok", health.NewCheckerFunc("ok", func(context.Context) health.Result {
			return health.Healthy("fine")
		}))

		rec := ts.do(t, http.MethodGet, "/health/ok")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "healthy", decodeBody(t, rec)["status"])

		rec = ts.do(t, http.MethodGet, "/health/missing")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodGet, "/live")
	ts.do(t, http.MethodGet, "/live")
	ts.do(t, http.MethodGet, "/nope")

	rec := ts.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	out := rec.Body.String()
	assert.Contains(t, out, "# TYPE http_requests_total counter\nhttp_requests_total 3\n")
	assert.Contains(t, out, `http_requests_by_endpoint{endpoint="/live"} 2`)
	assert.Contains(t, out, `http_requests_by_endpoint{endpoint="/unknown"} 1`)
	assert.Contains(t, out, `http_requests_by_status{status="404"} 1`)
}

func TestRateLimiting(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.Limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{Window: time.Minute, MaxRequests: 2})
	})

	for range 2 {
		rec := ts.do(t, http.MethodGet, "/live")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/live")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody(t, rec)
	assert.Equal(t, "Too Many Requests", body["error"])
	assert.Equal(t, "Rate limit exceeded", body["message"])
	assert.Equal(t, rec.Header().Get(RequestIDHeader), body["requestId"])

	assert.Equal(t, "2", rec.Header().Get(RateLimitLimitHeader))
	assert.Equal(t, "0", rec.Header().Get(RateLimitRemainingHeader))

	// Another client has its own window.
	rec = ts.doFrom(t, "10.0.0.2:5555", http.MethodGet, "/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(RateLimitRemainingHeader))

	snap := ts.opts.Collector.Snapshot()
	assert.Equal(t, uint64(4), snap.Requests)
	assert.Equal(t, uint64(1), snap.StatusCodes[http.StatusTooManyRequests])
	assert.Equal(t, uint64(4), snap.Endpoints["/live"].Count)

	// Rejections are not breaker failures.
	assert.Equal(t, 0, ts.opts.Breaker.Snapshot().Failures)
}

func TestRateLimiting_IgnoresForwardedHeadersByDefault(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.Limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{Window: time.Minute, MaxRequests: 3})
	})

	admitted := 0
	for i := range 50 {
		rec := ts.doFrom(t, "198.51.100.7:4000", http.MethodGet, "/live",
			"X-Forwarded-For", fmt.Sprintf("10.1.%d.%d", i/250, i%250),
			"X-Real-IP", fmt.Sprintf("10.2.0.%d", i),
		)
		if rec.Code == http.StatusOK {
			admitted++
		}
	}

	assert.Equal(t, 3, admitted)
	assert.Equal(t, 1, ts.opts.Limiter.Len())
}

func TestRateLimiting_TrustProxyHeaders(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.Config.Server.TrustProxyHeaders = true
		o.Limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{Window: time.Minute, MaxRequests: 1})
	})

	rec := ts.doFrom(t, "198.51.100.7:4000", http.MethodGet, "/live", "X-Real-IP", "10.0.0.1")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.doFrom(t, "198.51.100.7:4000", http.MethodGet, "/live", "X-Real-IP", "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = ts.doFrom(t, "198.51.100.7:4000", http.MethodGet, "/live", "X-Real-IP", "10.0.0.2")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ts.opts.Limiter.Len())
}

func TestCircuitBreaking(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	ts := newTestServer(t, func(o *Options) {
		o.Breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: 30 * time.Second,
			Now:          clock,
		})
	})

	for range 2 {
		rec := ts.do(t, http.MethodGet, "/error")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	}
	require.Equal(t, resilience.StateOpen, ts.opts.Breaker.State())

	rec := ts.do(t, http.MethodGet, "/live")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Service Unavailable", body["error"])
	assert.Equal(t, "Circuit breaker is open", body["message"])

	// After the reset timeout a successful trial closes the circuit.
	now = now.Add(31 * time.Second)
	rec = ts.do(t, http.MethodGet, "/live")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resilience.StateClosed, ts.opts.Breaker.State())
}

func TestHandlerFailure(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantMessage string
	}{
		{"production hides error", "production", "An error occurred"},
		{"development shows error", config.EnvironmentDevelopment, ErrSimulated.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(o *Options) {
				o.Config.App.Environment = tt.environment
			})

			rec := ts.do(t, http.MethodGet, "/error")
			require.Equal(t, http.StatusInternalServerError, rec.Code)

			body := decodeBody(t, rec)
			assert.Equal(t, "Internal Server Error", body["error"])
			assert.Equal(t, tt.wantMessage, body["message"])
			assert.NotEmpty(t, body["requestId"])
			assert.Equal(t, 1, ts.opts.Breaker.Snapshot().Failures)
		})
	}
}

func TestHandlerPanic(t *testing.T) {
	var logs strings.Builder
	ts := newTestServer(t, func(o *Options) {
		o.Logger = observe.NewLoggerWithWriter("debug", &logs)
	})
	ts.router.Get("/panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := ts.do(t, http.MethodGet, "/panic")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An error occurred", decodeBody(t, rec)["message"])
	assert.Equal(t, 1, ts.opts.Breaker.Snapshot().Failures)
	assert.Equal(t, uint64(1), ts.opts.Collector.Snapshot().StatusCodes[http.StatusInternalServerError])

	assert.Contains(t, logs.String(), `"msg":"Request handler error"`)
	assert.Contains(t, logs.String(), "boom")
	assert.Contains(t, logs.String(), `"stack"`)
}

func TestSuccessResetsFailures(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodGet, "/error")
	require.Equal(t, 1, ts.opts.Breaker.Snapshot().Failures)

	ts.do(t, http.MethodGet, "/live")
	assert.Equal(t, 0, ts.opts.Breaker.Snapshot().Failures)
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/does/not/exist?x=1")
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Not Found", body["error"])
	assert.Equal(t, "/does/not/exist?x=1", body["path"])
	assert.NotEmpty(t, body["requestId"])

	snap := ts.opts.Collector.Snapshot()
	assert.Equal(t, uint64(1), snap.Endpoints[unmatchedRoute].Count)
	assert.Equal(t, uint64(1), snap.Errors)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/live")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method Not Allowed", decodeBody(t, rec)["error"])
}

func TestDebugEndpoint(t *testing.T) {
	t.Run("Production", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(t, http.MethodGet, "/debug")
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Debug endpoint disabled in production", decodeBody(t, rec)["error"])
	})

	t.Run("Development", func(t *testing.T) {
		ts := newTestServer(t, func(o *Options) {
			o.Config.App.Environment = config.EnvironmentDevelopment
		})
		ts.do(t, http.MethodGet, "/live")

		rec := ts.do(t, http.MethodGet, "/debug")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		cb := body["circuitBreaker"].(map[string]any)
		assert.Equal(t, "CLOSED", cb["state"])
		assert.EqualValues(t, 0, cb["failureCount"])

		m := body["metrics"].(map[string]any)
		assert.EqualValues(t, 1, m["requestCount"])

		rl := body["rateLimiter"].(map[string]any)
		assert.EqualValues(t, 1, rl["trackedClients"])
		assert.EqualValues(t, 100, rl["maxRequests"])

		cfg := body["config"].(map[string]any)
		assert.Equal(t, "development", cfg["environment"])
		assert.EqualValues(t, 3000, cfg["port"])
		assert.EqualValues(t, 30000, cfg["requestTimeoutMs"])
		assert.EqualValues(t, 60000, cfg["rateLimitWindowMs"])
		assert.EqualValues(t, 60000, cfg["circuitBreakerResetTimeoutMs"])
		assert.Equal(t, false, cfg["trustProxyHeaders"])
		assert.NotContains(t, cfg, "Server")
	})
}

func TestInfoEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/info")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "sreguard", body["app"])
	assert.Equal(t, "2.0.0", body["version"])
	assert.Equal(t, "production", body["environment"])
	assert.NotEmpty(t, body["goVersion"])
	assert.Contains(t, body, "memory")
}

func TestRequestTimeout(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.Config.Server.RequestTimeout = 20 * time.Millisecond
	})

	var deadline time.Time
	var ok bool
	ts.router.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
		<-r.Context().Done()
	})

	rec := ts.do(t, http.MethodGet, "/slow")
	require.True(t, ok)
	assert.False(t, deadline.IsZero())
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestObserverWiring(t *testing.T) {
	cfg := config.Default()
	obs, err := observe.NewObserver(context.Background(), cfg.Observe())
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Shutdown(context.Background()) })

	ts := newTestServer(t, func(o *Options) {
		o.Observer = obs
		o.Logger = observe.NopLogger()
	})

	ts.do(t, http.MethodGet, "/live")

	rec := ts.do(t, http.MethodGet, "/metrics/otel")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_server_requests")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServe_GracefulShutdown(t *testing.T) {
	ts := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/live")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "1"},
		{200 * time.Millisecond, "1"},
		{time.Second, "1"},
		{1500 * time.Millisecond, "2"},
		{time.Minute, "60"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryAfterSeconds(tt.in), tt.in.String())
	}
}

func TestHandle_WithoutAdmission(t *testing.T) {
	ts := newTestServer(t)
	h := ts.handle(func(http.ResponseWriter, *http.Request) error {
		return errors.New("direct")
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
