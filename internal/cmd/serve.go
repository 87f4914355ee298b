package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/sreguard/config"
	"github.com/jonwraymond/sreguard/health"
	"github.com/jonwraymond/sreguard/metrics"
	"github.com/jonwraymond/sreguard/observe"
	"github.com/jonwraymond/sreguard/resilience"
	"github.com/jonwraymond/sreguard/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server with graceful shutdown support.

SIGINT or SIGTERM stops accepting connections, waits for in-flight requests
up to server.shutdown_timeout, then flushes telemetry.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return a.run(ctx, nil)
		},
	}
}

// app wires every component of the service together.
type app struct {
	cfg       *config.Config
	observer  observe.Observer
	logger    observe.Logger
	limiter   *resilience.RateLimiter
	breaker   *resilience.CircuitBreaker
	lag       *metrics.LagMonitor
	collector *metrics.Collector
	health    *health.Aggregator
	server    *server.Server
}

func newApp(ctx context.Context, cfg *config.Config, logOutput io.Writer) (*app, error) {
	obsCfg := cfg.Observe()
	obsCfg.Logging.Output = logOutput

	obs, err := observe.NewObserver(ctx, obsCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	logger := obs.Logger()

	a := &app{
		cfg:      cfg,
		observer: obs,
		logger:   logger,
		limiter: resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Window:          cfg.RateLimit.Window,
			MaxRequests:     cfg.RateLimit.MaxRequests,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		}),
		lag: metrics.NewLagMonitor(metrics.LagMonitorConfig{
			Interval: cfg.Metrics.LagInterval,
		}),
		health: health.NewAggregator(health.AggregatorConfig{
			Timeout:  cfg.Health.Timeout,
			Parallel: true,
		}),
	}

	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:         cfg.CircuitBreaker.MaxFailures,
		ResetTimeout:        cfg.CircuitBreaker.ResetTimeout,
		HalfOpenMaxRequests: cfg.CircuitBreaker.HalfOpenMaxRequests,
		OnStateChange: func(from, to resilience.State, failures int) {
			fields := []observe.Field{
				{Key: "from", Value: from.String()},
				{Key: "to", Value: to.String()},
				{Key: "failures", Value: failures},
			}
			if to == resilience.StateOpen {
				logger.Warn(context.Background(), "Circuit breaker opened", fields...)
				return
			}
			logger.Info(context.Background(), "Circuit breaker state changed", fields...)
		},
	})

	a.collector = metrics.NewCollector(metrics.Config{
		Capacity:     cfg.Metrics.Capacity,
		MaxEndpoints: cfg.Metrics.MaxEndpoints,
		Lag:          a.lag,
	})

	memory := health.NewMemoryChecker(health.MemoryCheckerConfig{
		DegradedThreshold: cfg.Health.MemoryDegradedThreshold,
		CriticalThreshold: cfg.Health.MemoryCriticalThreshold,
	})
	eventLoop := health.NewLagChecker(a.lag, health.LagCheckerConfig{
		DegradedAfter:  cfg.Health.LagDegradedAfter,
		UnhealthyAfter: cfg.Health.LagUnhealthyAfter,
	})
	breaker := health.NewBreakerChecker(a.breaker)
	for _, c := range []health.Checker{memory, eventLoop, breaker} {
		a.health.Register(c.Name(), c)
	}

	a.server, err = server.New(server.Options{
		Config:    cfg,
		Limiter:   a.limiter,
		Breaker:   a.breaker,
		Collector: a.collector,
		Health:    a.health,
		Observer:  obs,
		Logger:    logger,
	})
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}
	return a, nil
}

// run serves until ctx is done or a component fails. A nil ln listens on
// the configured address.
func (a *app) run(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if ln != nil {
			return a.server.Serve(gctx, ln)
		}
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		return a.limiter.RunJanitor(gctx)
	})
	g.Go(func() error {
		return a.lag.Run(gctx)
	})

	runErr := g.Wait()
	if runErr != nil {
		a.logger.Error(ctx, "Server stopped with error", observe.Field{Key: "error", Value: runErr.Error()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.observer.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown telemetry: %w", err))
	}
	return runErr
}
