package metrics

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// summaryQuantiles are the quantiles reported by the duration summary, as
// percentiles.
var summaryQuantiles = []float64{50, 90, 95, 99}

var (
	requestsDesc = prometheus.NewDesc("http_requests_total",
		"Total number of HTTP requests", nil, nil)
	errorsDesc = prometheus.NewDesc("http_errors_total",
		"Total number of HTTP errors", nil, nil)
	uptimeDesc = prometheus.NewDesc("app_uptime_seconds",
		"Application uptime in seconds", nil, nil)
	durationDesc = prometheus.NewDesc("http_request_duration_seconds",
		"HTTP request duration in seconds", nil, nil)
	memoryDesc = prometheus.NewDesc("nodejs_memory_usage_bytes",
		"Process memory usage in bytes", []string{"type"}, nil)
	cpuDesc = prometheus.NewDesc("nodejs_cpu_usage_seconds",
		"Process CPU time in seconds", []string{"type"}, nil)
	lagDesc = prometheus.NewDesc("nodejs_eventloop_lag_seconds",
		"Scheduler lag in seconds", nil, nil)
	goroutinesDesc = prometheus.NewDesc("go_goroutines",
		"Number of goroutines", nil, nil)
	byStatusDesc = prometheus.NewDesc("http_requests_by_status",
		"HTTP requests by status code", []string{"status"}, nil)
	byEndpointDesc = prometheus.NewDesc("http_requests_by_endpoint",
		"HTTP requests by endpoint", []string{"endpoint"}, nil)
	errorsByEndpointDesc = prometheus.NewDesc("http_errors_by_endpoint",
		"HTTP errors by endpoint", []string{"endpoint"}, nil)
	avgByEndpointDesc = prometheus.NewDesc("http_request_duration_by_endpoint",
		"Average HTTP request duration by endpoint in seconds", []string{"endpoint"}, nil)
)

// exporter adapts a Collector to prometheus.Collector. Every scrape takes a
// fresh snapshot and process sample.
type exporter struct {
	c *Collector
}

func (e exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		requestsDesc, errorsDesc, uptimeDesc, durationDesc,
		memoryDesc, cpuDesc, lagDesc, goroutinesDesc,
		byStatusDesc, byEndpointDesc, errorsByEndpointDesc, avgByEndpointDesc,
	} {
		ch <- d
	}
}

func (e exporter) Collect(ch chan<- prometheus.Metric) {
	c := e.c
	snap := c.Snapshot()
	proc := c.config.Process()

	ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, float64(snap.Requests))
	ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(snap.Errors))
	ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.GaugeValue, snap.Uptime.Seconds())

	// Quantiles come from the nearest-rank percentiles of the recent window,
	// count and sum from the same window.
	durations := c.Durations()
	sort.Float64s(durations)
	var sumMillis float64
	for _, d := range durations {
		sumMillis += d
	}
	quantiles := make(map[float64]float64, len(summaryQuantiles))
	for _, p := range summaryQuantiles {
		quantiles[p/100] = percentile(durations, p) / 1000
	}
	ch <- prometheus.MustNewConstSummary(durationDesc, uint64(len(durations)), sumMillis/1000, quantiles)

	ch <- prometheus.MustNewConstMetric(memoryDesc, prometheus.GaugeValue, float64(proc.RSS), "rss")
	ch <- prometheus.MustNewConstMetric(memoryDesc, prometheus.GaugeValue, float64(proc.HeapTotal), "heapTotal")
	ch <- prometheus.MustNewConstMetric(memoryDesc, prometheus.GaugeValue, float64(proc.HeapUsed), "heapUsed")
	ch <- prometheus.MustNewConstMetric(memoryDesc, prometheus.GaugeValue, float64(proc.External), "external")

	ch <- prometheus.MustNewConstMetric(cpuDesc, prometheus.CounterValue, proc.CPUUser.Seconds(), "user")
	ch <- prometheus.MustNewConstMetric(cpuDesc, prometheus.CounterValue, proc.CPUSystem.Seconds(), "system")

	var lag float64
	if c.config.Lag != nil {
		lag = c.config.Lag.Lag().Seconds()
	}
	ch <- prometheus.MustNewConstMetric(lagDesc, prometheus.GaugeValue, lag)
	ch <- prometheus.MustNewConstMetric(goroutinesDesc, prometheus.GaugeValue, float64(proc.Goroutines))

	for code, n := range snap.StatusCodes {
		ch <- prometheus.MustNewConstMetric(byStatusDesc, prometheus.CounterValue, float64(n), strconv.Itoa(code))
	}
	for endpoint, stats := range snap.Endpoints {
		ch <- prometheus.MustNewConstMetric(byEndpointDesc, prometheus.CounterValue, float64(stats.Count), endpoint)
		ch <- prometheus.MustNewConstMetric(errorsByEndpointDesc, prometheus.CounterValue, float64(stats.Errors), endpoint)
		ch <- prometheus.MustNewConstMetric(avgByEndpointDesc, prometheus.GaugeValue, stats.AverageDuration().Seconds(), endpoint)
	}
}

// Registry returns the registry holding the collector's metric families.
// Gather on it yields families sorted by name and samples sorted by label.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's families in the Prometheus exposition
// format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
