package server

import (
	"net/http"
	"os"
	"runtime"

	"github.com/jonwraymond/sreguard/config"
	"github.com/jonwraymond/sreguard/metrics"
	"github.com/jonwraymond/sreguard/resilience"
)

// InfoResponse is the JSON body of /info.
type InfoResponse struct {
	App         string               `json:"app"`
	Version     string               `json:"version"`
	Environment string               `json:"environment"`
	Hostname    string               `json:"hostname"`
	Platform    string               `json:"platform"`
	Arch        string               `json:"arch"`
	GoVersion   string               `json:"goVersion"`
	Uptime      float64              `json:"uptime"`
	Memory      metrics.ProcessStats `json:"memory"`
	CPUs        int                  `json:"cpus"`
	RequestID   string               `json:"requestId"`
}

func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) error {
	hostname, _ := os.Hostname()
	writeIndentedJSON(w, http.StatusOK, InfoResponse{
		App:         s.cfg.App.Name,
		Version:     s.cfg.App.Version,
		Environment: s.cfg.App.Environment,
		Hostname:    hostname,
		Platform:    runtime.GOOS,
		Arch:        runtime.GOARCH,
		GoVersion:   runtime.Version(),
		Uptime:      s.now().Sub(s.startTime).Seconds(),
		Memory:      metrics.ReadProcessStats(),
		CPUs:        runtime.NumCPU(),
		RequestID:   requestIDOf(r),
	})
	return nil
}

// DebugResponse is the JSON body of /debug.
type DebugResponse struct {
	Metrics        metrics.Snapshot    `json:"metrics"`
	Percentiles    map[string]float64  `json:"percentilesMs"`
	CircuitBreaker resilience.Snapshot `json:"circuitBreaker"`
	RateLimiter    RateLimiterDebug    `json:"rateLimiter"`
	Config         ConfigDebug         `json:"config"`
	RequestID      string              `json:"requestId"`
}

// ConfigDebug is the subset of the running configuration shown by /debug.
// Durations are in milliseconds.
type ConfigDebug struct {
	Environment       string `json:"environment"`
	Port              int    `json:"port"`
	LogLevel          string `json:"logLevel"`
	RequestTimeoutMs  int64  `json:"requestTimeoutMs"`
	TrustProxyHeaders bool   `json:"trustProxyHeaders"`

	RateLimitWindowMs            int64 `json:"rateLimitWindowMs"`
	RateLimitMaxRequests         int   `json:"rateLimitMaxRequests"`
	CircuitBreakerMaxFailures    int   `json:"circuitBreakerMaxFailures"`
	CircuitBreakerResetTimeoutMs int64 `json:"circuitBreakerResetTimeoutMs"`
	CircuitBreakerHalfOpenMax    int   `json:"circuitBreakerHalfOpenMaxRequests"`
}

func newConfigDebug(cfg *config.Config) ConfigDebug {
	return ConfigDebug{
		Environment:       cfg.App.Environment,
		Port:              cfg.Server.Port,
		LogLevel:          cfg.Logging.Level,
		RequestTimeoutMs:  cfg.Server.RequestTimeout.Milliseconds(),
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,

		RateLimitWindowMs:            cfg.RateLimit.Window.Milliseconds(),
		RateLimitMaxRequests:         cfg.RateLimit.MaxRequests,
		CircuitBreakerMaxFailures:    cfg.CircuitBreaker.MaxFailures,
		CircuitBreakerResetTimeoutMs: cfg.CircuitBreaker.ResetTimeout.Milliseconds(),
		CircuitBreakerHalfOpenMax:    cfg.CircuitBreaker.HalfOpenMaxRequests,
	}
}

// RateLimiterDebug summarizes the rate limiter for /debug.
type RateLimiterDebug struct {
	TrackedClients int `json:"trackedClients"`
	MaxRequests    int `json:"maxRequests"`
	WindowSeconds  int `json:"windowSeconds"`
}

// debugHandler dumps internal state. It is only served in development.
func (s *Server) debugHandler(w http.ResponseWriter, r *http.Request) error {
	if !s.cfg.App.IsDevelopment() {
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error: "Debug endpoint disabled in production",
		})
		return nil
	}

	ps := s.collector.Percentiles(50, 95, 99)
	limiterCfg := s.limiter.Config()
	writeIndentedJSON(w, http.StatusOK, DebugResponse{
		Metrics: s.collector.Snapshot(),
		Percentiles: map[string]float64{
			"p50": ps[0],
			"p95": ps[1],
			"p99": ps[2],
		},
		CircuitBreaker: s.breaker.Snapshot(),
		RateLimiter: RateLimiterDebug{
			TrackedClients: s.limiter.Len(),
			MaxRequests:    limiterCfg.MaxRequests,
			WindowSeconds:  int(limiterCfg.Window.Seconds()),
		},
		Config:    newConfigDebug(s.cfg),
		RequestID: requestIDOf(r),
	})
	return nil
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error:     "Not Found",
		Path:      r.URL.RequestURI(),
		RequestID: requestIDOf(r),
	})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error:     "Method Not Allowed",
		Path:      r.URL.RequestURI(),
		RequestID: requestIDOf(r),
	})
}
