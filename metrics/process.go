package metrics

import (
	"runtime"
	"time"
)

// ProcessStats is a sample of the process's memory and CPU usage.
type ProcessStats struct {
	// RSS approximates resident memory as the bytes obtained from the OS.
	RSS uint64 `json:"rss"`
	// HeapTotal is the heap memory obtained from the OS.
	HeapTotal uint64 `json:"heapTotal"`
	// HeapUsed is the bytes of allocated heap objects.
	HeapUsed uint64 `json:"heapUsed"`
	// External is runtime memory outside the heap (stacks, GC metadata, buffers).
	External uint64 `json:"external"`

	CPUUser    time.Duration `json:"cpuUser"`
	CPUSystem  time.Duration `json:"cpuSystem"`
	Goroutines int           `json:"goroutines"`
}

// ReadProcessStats samples the current process. It briefly stops the world
// to read memory statistics.
func ReadProcessStats() ProcessStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	user, system := cpuTimes()

	return ProcessStats{
		RSS:        mem.Sys,
		HeapTotal:  mem.HeapSys,
		HeapUsed:   mem.HeapAlloc,
		External:   mem.Sys - mem.HeapSys,
		CPUUser:    user,
		CPUSystem:  system,
		Goroutines: runtime.NumGoroutine(),
	}
}
