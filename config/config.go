// Package config loads sreguard's runtime configuration.
//
// Values come from three layers, later layers winning:
//   - built-in defaults
//   - an optional YAML file, with strict ${VAR} expansion
//   - environment variables (PORT, APP_VERSION, NODE_ENV, LOG_LEVEL,
//     REQUEST_TIMEOUT and SREGUARD_<SECTION>_<KEY>)
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/jonwraymond/sreguard/observe"
)

// EnvironmentDevelopment is the environment name that enables debug endpoints
// and detailed error messages.
const EnvironmentDevelopment = "development"

// Config is the complete application configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	App            AppConfig            `mapstructure:"app"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Health         HealthConfig         `mapstructure:"health"`
	Telemetry      TelemetryConfig      `mapstructure:"telemetry"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`

	// TrustProxyHeaders keys clients on X-Forwarded-For, X-Real-IP and
	// True-Client-IP instead of the peer address. Enable only behind a
	// proxy that overwrites them.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AppConfig identifies the running service.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// IsDevelopment reports whether the service runs in the development environment.
func (a AppConfig) IsDevelopment() bool {
	return a.Environment == EnvironmentDevelopment
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// RateLimitConfig configures the per-client sliding window.
type RateLimitConfig struct {
	Window          time.Duration `mapstructure:"window"`
	MaxRequests     int           `mapstructure:"max_requests"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// CircuitBreakerConfig configures the service-wide breaker.
type CircuitBreakerConfig struct {
	MaxFailures         int           `mapstructure:"max_failures"`
	ResetTimeout        time.Duration `mapstructure:"reset_timeout"`
	HalfOpenMaxRequests int           `mapstructure:"half_open_max_requests"`
}

// MetricsConfig configures the request metrics collector.
type MetricsConfig struct {
	Capacity     int           `mapstructure:"capacity"`
	MaxEndpoints int           `mapstructure:"max_endpoints"`
	LagInterval  time.Duration `mapstructure:"lag_interval"`
}

// HealthConfig configures the health checks.
type HealthConfig struct {
	Timeout                 time.Duration `mapstructure:"timeout"`
	MemoryDegradedThreshold float64       `mapstructure:"memory_degraded_threshold"`
	MemoryCriticalThreshold float64       `mapstructure:"memory_critical_threshold"`
	LagDegradedAfter        time.Duration `mapstructure:"lag_degraded_after"`
	LagUnhealthyAfter       time.Duration `mapstructure:"lag_unhealthy_after"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	Tracing TracingConfig        `mapstructure:"tracing"`
	Metrics TelemetryMetricsConf `mapstructure:"metrics"`
}

// TracingConfig selects the trace exporter.
type TracingConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Exporter  string  `mapstructure:"exporter"`
	SamplePct float64 `mapstructure:"sample_pct"`
}

// TelemetryMetricsConf selects the OpenTelemetry metrics reader.
type TelemetryMetricsConf struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
}

// Observe converts the configuration into an observe.Config.
func (c *Config) Observe() observe.Config {
	return observe.Config{
		ServiceName: c.App.Name,
		Version:     c.App.Version,
		Environment: c.App.Environment,
		Tracing: observe.TracingConfig{
			Enabled:   c.Telemetry.Tracing.Enabled,
			Exporter:  c.Telemetry.Tracing.Exporter,
			SamplePct: c.Telemetry.Tracing.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Telemetry.Metrics.Enabled,
			Exporter: c.Telemetry.Metrics.Exporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Logging.Level,
		},
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("%w: server.request_timeout", ErrNonPositiveDuration)
	}
	if c.App.Name == "" {
		return ErrMissingAppName
	}
	if !slices.Contains(observe.ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("%w: rate_limit.window", ErrNonPositiveDuration)
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("%w: rate_limit.max_requests", ErrNonPositiveLimit)
	}
	if c.CircuitBreaker.MaxFailures <= 0 {
		return fmt.Errorf("%w: circuit_breaker.max_failures", ErrNonPositiveLimit)
	}
	if c.CircuitBreaker.ResetTimeout <= 0 {
		return fmt.Errorf("%w: circuit_breaker.reset_timeout", ErrNonPositiveDuration)
	}
	if c.CircuitBreaker.HalfOpenMaxRequests < 0 {
		return fmt.Errorf("%w: circuit_breaker.half_open_max_requests", ErrNonPositiveLimit)
	}

	if t := c.Health.MemoryDegradedThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("%w: health.memory_degraded_threshold=%g", ErrInvalidThreshold, t)
	}
	if t := c.Health.MemoryCriticalThreshold; t != 0 && (t < c.Health.MemoryDegradedThreshold || t > 1) {
		return fmt.Errorf("%w: health.memory_critical_threshold=%g", ErrInvalidThreshold, t)
	}
	if c.Health.LagUnhealthyAfter < c.Health.LagDegradedAfter {
		return fmt.Errorf("%w: health.lag_unhealthy_after below lag_degraded_after", ErrInvalidThreshold)
	}

	obs := c.Observe()
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}
