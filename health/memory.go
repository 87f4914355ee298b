package health

import (
	"context"
	"fmt"
	"runtime"
)

// MemoryCheckerConfig configures the memory health checker.
type MemoryCheckerConfig struct {
	// DegradedThreshold is the heap usage ratio (heapUsed / heapTotal) at or
	// above which the check reports degraded. Value should be between 0 and 1.
	// Default: 0.8 (80%)
	DegradedThreshold float64

	// CriticalThreshold is the heap usage ratio at or above which the check
	// reports unhealthy. Zero disables the unhealthy state.
	// Default: 0 (disabled)
	CriticalThreshold float64

	// ReadStats reads the heap figures. Default: runtime.ReadMemStats.
	ReadStats func() (heapUsed, heapTotal uint64)
}

// MemoryChecker reports heap usage relative to the heap obtained from the OS.
type MemoryChecker struct {
	config MemoryCheckerConfig
}

// NewMemoryChecker creates a new memory health checker.
func NewMemoryChecker(config MemoryCheckerConfig) *MemoryChecker {
	if config.DegradedThreshold <= 0 || config.DegradedThreshold > 1 {
		config.DegradedThreshold = 0.8
	}
	if config.CriticalThreshold < 0 || config.CriticalThreshold > 1 {
		config.CriticalThreshold = 0
	}
	if config.CriticalThreshold > 0 && config.CriticalThreshold < config.DegradedThreshold {
		config.CriticalThreshold = config.DegradedThreshold
	}
	if config.ReadStats == nil {
		config.ReadStats = readHeapStats
	}

	return &MemoryChecker{config: config}
}

// Name returns the name of this checker.
func (m *MemoryChecker) Name() string {
	return "memory"
}

// Check performs the memory health check.
func (m *MemoryChecker) Check(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	heapUsed, heapTotal := m.config.ReadStats()
	if heapTotal == 0 {
		return Healthy("memory stats unavailable").WithDetails(map[string]any{
			"heapUsed":  heapUsed,
			"heapTotal": heapTotal,
		})
	}

	ratio := float64(heapUsed) / float64(heapTotal)
	details := map[string]any{
		"heapUsed":    heapUsed,
		"heapTotal":   heapTotal,
		"percentUsed": fmt.Sprintf("%.2f%%", ratio*100),
	}

	if m.config.CriticalThreshold > 0 && ratio >= m.config.CriticalThreshold {
		return Unhealthy(
			fmt.Sprintf("memory usage critical: %.1f%%", ratio*100),
			nil,
		).WithDetails(details)
	}

	if ratio >= m.config.DegradedThreshold {
		return Degraded(
			fmt.Sprintf("memory usage high: %.1f%%", ratio*100),
		).WithDetails(details)
	}

	return Healthy(
		fmt.Sprintf("memory usage normal: %.1f%%", ratio*100),
	).WithDetails(details)
}

func readHeapStats() (heapUsed, heapTotal uint64) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc, stats.HeapSys
}
