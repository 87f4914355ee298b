// Package metrics records completed HTTP requests and exposes them as
// Prometheus metric families.
//
// A Collector keeps request and error counters, per-status and per-endpoint
// breakdowns, and a bounded FIFO of the most recent request durations from
// which nearest-rank percentiles are computed on demand. A LagMonitor samples
// scheduler latency in the background so that scrapes never block on it.
//
//	lag := metrics.NewLagMonitor(metrics.LagMonitorConfig{})
//	go lag.Run(ctx)
//
//	collector := metrics.NewCollector(metrics.Config{Lag: lag})
//	collector.Record(12*time.Millisecond, http.StatusOK, "/info")
//
//	mux.Handle("/metrics", collector.Handler())
package metrics
