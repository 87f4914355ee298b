package metrics

import (
	"context"
	"sync/atomic"
	"time"
)

// LagMonitorConfig configures a LagMonitor.
type LagMonitorConfig struct {
	// Interval is how often Run takes a measurement.
	// Default: 1 second
	Interval time.Duration
}

// LagMonitor measures scheduler lag: the delay between asking the runtime to
// run a timer callback immediately and that callback starting. The delay
// grows when the process is CPU saturated.
//
// Measurements are cached; Lag never blocks.
type LagMonitor struct {
	config LagMonitorConfig

	lag          atomic.Int64
	measurements atomic.Uint64
	inFlight     atomic.Bool
}

// NewLagMonitor creates a new lag monitor.
func NewLagMonitor(config LagMonitorConfig) *LagMonitor {
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	return &LagMonitor{config: config}
}

// Lag returns the most recent measurement, or zero before the first one.
// It also starts a background measurement unless one is already running, so
// the next caller sees a fresher value.
func (m *LagMonitor) Lag() time.Duration {
	lag := time.Duration(m.lag.Load())
	if m.inFlight.CompareAndSwap(false, true) {
		go func() {
			defer m.inFlight.Store(false)
			m.Measure()
		}()
	}
	return lag
}

// Measurements returns how many measurements have completed.
func (m *LagMonitor) Measurements() uint64 {
	return m.measurements.Load()
}

// Measure schedules a zero-delay timer callback, waits for it to run, caches
// the observed delay and returns it.
func (m *LagMonitor) Measure() time.Duration {
	start := time.Now()
	started := make(chan time.Time, 1)
	time.AfterFunc(0, func() {
		started <- time.Now()
	})

	lag := (<-started).Sub(start)
	m.store(lag)
	return lag
}

// Run measures every Interval until ctx is done.
func (m *LagMonitor) Run(ctx context.Context) error {
	m.Measure()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Measure()
		}
	}
}

func (m *LagMonitor) store(lag time.Duration) {
	m.lag.Store(int64(lag))
	m.measurements.Add(1)
}

// StaticLag is a LagSource that always reports the same value.
type StaticLag time.Duration

// Lag returns the fixed value.
func (s StaticLag) Lag() time.Duration {
	return time.Duration(s)
}
