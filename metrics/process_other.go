//go:build !unix

package metrics

import "time"

// cpuTimes is not implemented on this platform.
func cpuTimes() (user, system time.Duration) {
	return 0, 0
}
