package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OverflowEndpoint is the label used for endpoints recorded after
// Config.MaxEndpoints distinct endpoints have been seen.
const OverflowEndpoint = "/other"

// Config configures a Collector.
type Config struct {
	// Capacity is the number of recent durations kept for percentiles.
	// Default: 10000
	Capacity int

	// MaxEndpoints caps the number of distinct endpoint labels.
	// Default: 100
	MaxEndpoints int

	// Lag supplies the scheduler lag gauge. Optional.
	Lag LagSource

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time

	// Process samples process memory and CPU at scrape time.
	// Default: ReadProcessStats
	Process func() ProcessStats
}

// LagSource reports the most recently measured scheduler lag.
type LagSource interface {
	Lag() time.Duration
}

// EndpointStats holds the counters for a single endpoint.
type EndpointStats struct {
	Count         uint64        `json:"count"`
	Errors        uint64        `json:"errors"`
	TotalDuration time.Duration `json:"totalDuration"`
}

// AverageDuration returns TotalDuration / Count, or zero.
func (s EndpointStats) AverageDuration() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Count)
}

// Collector records completed requests.
//
// Contract:
// - Concurrency: safe for concurrent use; every Record is counted exactly once.
// - Memory: bounded by Capacity durations and MaxEndpoints endpoint entries.
type Collector struct {
	config Config

	mu          sync.Mutex
	requests    uint64
	errors      uint64
	durations   *ring
	statusCodes map[int]uint64
	endpoints   map[string]*EndpointStats
	startTime   time.Time

	registry *prometheus.Registry
}

// NewCollector creates a new metrics collector.
func NewCollector(config Config) *Collector {
	if config.Capacity <= 0 {
		config.Capacity = 10000
	}
	if config.MaxEndpoints <= 0 {
		config.MaxEndpoints = 100
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Process == nil {
		config.Process = ReadProcessStats
	}

	c := &Collector{
		config:      config,
		durations:   newRing(config.Capacity),
		statusCodes: make(map[int]uint64),
		endpoints:   make(map[string]*EndpointStats),
		startTime:   config.Now(),
		registry:    prometheus.NewRegistry(),
	}
	c.registry.MustRegister(exporter{c: c})
	return c
}

// Record records one completed request. Status codes of 400 and above count
// as errors.
func (c *Collector) Record(duration time.Duration, status int, endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests++
	c.durations.push(toMillis(duration))
	c.statusCodes[status]++

	stats, ok := c.endpoints[endpoint]
	if !ok {
		if len(c.endpoints) >= c.config.MaxEndpoints {
			endpoint = OverflowEndpoint
			stats = c.endpoints[endpoint]
		}
		if stats == nil {
			stats = &EndpointStats{}
			c.endpoints[endpoint] = stats
		}
	}
	stats.Count++
	stats.TotalDuration += duration

	if status >= 400 {
		c.errors++
		stats.Errors++
	}
}

// Percentile returns the nearest-rank p-th percentile of the recent request
// durations, in milliseconds. p is clamped to [0, 100]; an empty collector
// returns 0.
func (c *Collector) Percentile(p float64) float64 {
	c.mu.Lock()
	sorted := c.durations.values()
	c.mu.Unlock()

	sort.Float64s(sorted)
	return percentile(sorted, p)
}

// Percentiles returns several percentiles from a single sorted snapshot.
func (c *Collector) Percentiles(ps ...float64) []float64 {
	c.mu.Lock()
	sorted := c.durations.values()
	c.mu.Unlock()

	sort.Float64s(sorted)
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = percentile(sorted, p)
	}
	return out
}

// Durations returns a copy of the recent durations in milliseconds, oldest first.
func (c *Collector) Durations() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durations.values()
}

// Snapshot returns a copy of the collector's counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Requests:    c.requests,
		Errors:      c.errors,
		Samples:     c.durations.len(),
		StatusCodes: make(map[int]uint64, len(c.statusCodes)),
		Endpoints:   make(map[string]EndpointStats, len(c.endpoints)),
		StartTime:   c.startTime,
		Uptime:      c.config.Now().Sub(c.startTime),
	}
	for code, n := range c.statusCodes {
		snap.StatusCodes[code] = n
	}
	for endpoint, stats := range c.endpoints {
		snap.Endpoints[endpoint] = *stats
	}
	return snap
}

// Snapshot is a point-in-time copy of a Collector's counters.
type Snapshot struct {
	Requests    uint64                   `json:"requestCount"`
	Errors      uint64                   `json:"errorCount"`
	Samples     int                      `json:"durationSamples"`
	StatusCodes map[int]uint64           `json:"statusCodes"`
	Endpoints   map[string]EndpointStats `json:"endpoints"`
	StartTime   time.Time                `json:"startTime"`
	Uptime      time.Duration            `json:"uptime"`
}

// percentile applies the nearest-rank method to an ascending slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}

	idx := int(math.Ceil(p*float64(n)/100)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
