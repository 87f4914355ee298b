package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable derived from a config key,
// e.g. SREGUARD_RATE_LIMIT_MAX_REQUESTS for rate_limit.max_requests.
const EnvPrefix = "SREGUARD"

// envAliases binds the conventional unprefixed variables. The prefixed form
// is listed first and wins when both are set.
var envAliases = map[string]string{
	"server.port":     "PORT",
	"app.version":     "APP_VERSION",
	"app.environment": "NODE_ENV",
	"logging.level":   "LOG_LEVEL",
}

// requestTimeoutEnv carries the request timeout in milliseconds.
const requestTimeoutEnv = "REQUEST_TIMEOUT"

// Load builds the configuration from defaults, the optional file at path and
// the environment, then validates it. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if err := readFile(v, path); err != nil {
			return nil, err
		}
	}

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with no file or environment applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("config: decode defaults: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.trust_proxy_headers", false)

	// App
	v.SetDefault("app.name", "sreguard")
	v.SetDefault("app.version", "2.0.0")
	v.SetDefault("app.environment", "production")

	v.SetDefault("logging.level", "info")

	// Admission control
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.max_requests", 100)
	v.SetDefault("rate_limit.cleanup_interval", "1m")
	v.SetDefault("circuit_breaker.max_failures", 5)
	v.SetDefault("circuit_breaker.reset_timeout", "60s")
	v.SetDefault("circuit_breaker.half_open_max_requests", 0)

	// Metrics
	v.SetDefault("metrics.capacity", 10000)
	v.SetDefault("metrics.max_endpoints", 100)
	v.SetDefault("metrics.lag_interval", "1s")

	// Health
	v.SetDefault("health.timeout", "10s")
	v.SetDefault("health.memory_degraded_threshold", 0.8)
	v.SetDefault("health.memory_critical_threshold", 0)
	v.SetDefault("health.lag_degraded_after", "100ms")
	v.SetDefault("health.lag_unhealthy_after", "500ms")

	// Telemetry
	v.SetDefault("telemetry.tracing.enabled", false)
	v.SetDefault("telemetry.tracing.exporter", "none")
	v.SetDefault("telemetry.tracing.sample_pct", 1.0)
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.exporter", "prometheus")
}

// readFile loads path after strict environment expansion.
func readFile(v *viper.Viper, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded, err := ExpandEnvStrict(string(raw))
	if err != nil {
		return fmt.Errorf("config: expand %s: %w", path, err)
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" || ext == "yml" {
		ext = "yaml"
	}
	v.SetConfigType(ext)
	if err := v.ReadConfig(strings.NewReader(expanded)); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, alias := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if raw := strings.TrimSpace(os.Getenv(requestTimeoutEnv)); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidRequestTimeout, raw)
		}
		v.Set("server.request_timeout", time.Duration(ms)*time.Millisecond)
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("config: create decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}
