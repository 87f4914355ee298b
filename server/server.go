// Package server exposes the guarded HTTP service: health probes, metrics
// exposition and diagnostics behind rate limiting and a circuit breaker.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/jonwraymond/sreguard/config"
	"github.com/jonwraymond/sreguard/health"
	"github.com/jonwraymond/sreguard/metrics"
	"github.com/jonwraymond/sreguard/observe"
	"github.com/jonwraymond/sreguard/resilience"
)

// unmatchedRoute labels requests that match no route.
const unmatchedRoute = "/unknown"

// Options holds the components a Server is built from. Config, Limiter,
// Breaker, Collector and Health are required.
type Options struct {
	Config    *config.Config
	Limiter   *resilience.RateLimiter
	Breaker   *resilience.CircuitBreaker
	Collector *metrics.Collector
	Health    *health.Aggregator

	// Observer adds tracing, OpenTelemetry metrics and request logs, and
	// serves its Prometheus registry at /metrics/otel. Optional.
	Observer observe.Observer

	// Logger defaults to the Observer's logger, then to observe.NopLogger().
	Logger observe.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Server is the HTTP service.
type Server struct {
	cfg         *config.Config
	router      *chi.Mux
	server      *http.Server
	logger      observe.Logger
	executor    *resilience.Executor
	limiter     *resilience.RateLimiter
	breaker     *resilience.CircuitBreaker
	collector   *metrics.Collector
	health      *health.Aggregator
	observe     *observe.Middleware
	otelMetrics http.Handler
	now         func() time.Time
	startTime   time.Time

	// rejectLog throttles rejection logs under sustained overload.
	rejectLog rate.Sometimes
}

// New creates a new Server and registers its routes.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = observe.NopLogger()
		if opts.Observer != nil {
			opts.Logger = opts.Observer.Logger()
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		cfg:    opts.Config,
		router: chi.NewRouter(),
		logger: opts.Logger,
		executor: resilience.NewExecutor(
			resilience.WithRateLimiter(opts.Limiter),
			resilience.WithCircuitBreaker(opts.Breaker),
		),
		limiter:   opts.Limiter,
		breaker:   opts.Breaker,
		collector: opts.Collector,
		health:    opts.Health,
		now:       opts.Now,
		startTime: opts.Now(),
		rejectLog: rate.Sometimes{First: 10, Interval: 10 * time.Second},
	}

	if opts.Observer != nil {
		mw, err := observe.MiddlewareFromObserver(opts.Observer,
			observe.WithRouteFunc(s.routeLabel),
			observe.WithRequestIDFunc(requestIDOf),
		)
		if err != nil {
			return nil, fmt.Errorf("server: observe middleware: %w", err)
		}
		s.observe = mw
		s.otelMetrics = opts.Observer.MetricsHandler()
	}

	r := s.router
	if s.cfg.Server.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestID(s.cfg.App.Version))
	if s.observe != nil {
		r.Use(s.observe.Handler)
	}
	r.Use(s.admission)
	r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.methodNotAllowed)
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s, nil
}

func (s *Server) registerRoutes() {
	healthOpts := []health.HandlerOption{
		health.WithRequestID(requestIDOf),
		health.WithClock(s.now),
	}

	s.router.Get("/health", health.DetailedHandler(s.health, healthOpts...))
	s.router.Get("/health/{check}", func(w http.ResponseWriter, r *http.Request) {
		health.SingleCheckHandler(s.health, chi.URLParam(r, "check"), healthOpts...)(w, r)
	})
	s.router.Get("/ready", health.ReadinessHandler(s.health, healthOpts...))
	s.router.Get("/live", health.LivenessHandler(healthOpts...))

	s.router.Method(http.MethodGet, "/metrics", s.collector.Handler())
	if s.otelMetrics != nil {
		s.router.Method(http.MethodGet, "/metrics/otel", s.otelMetrics)
	}

	s.router.Get("/info", s.handle(s.infoHandler))
	s.router.Get("/debug", s.handle(s.debugHandler))
	s.router.Get("/error", s.handle(func(http.ResponseWriter, *http.Request) error {
		return ErrSimulated
	}))
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully within
// the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info(ctx, "Starting HTTP server",
		observe.Field{Key: "addr", Value: ln.Addr().String()},
		observe.Field{Key: "version", Value: s.cfg.App.Version},
		observe.Field{Key: "environment", Value: s.cfg.App.Environment},
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info(shutdownCtx, "Shutting down HTTP server")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	s.logger.Info(shutdownCtx, "Server closed successfully")
	return nil
}

// routeLabel returns the matched route pattern for r, or "/unknown".
func (s *Server) routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" && pattern != "/*" {
			return pattern
		}
	}

	// Rejected requests never reach the router.
	tctx := chi.NewRouteContext()
	if s.router.Match(tctx, r.Method, r.URL.Path) {
		if pattern := tctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}
