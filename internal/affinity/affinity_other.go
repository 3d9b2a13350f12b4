//go:build !linux

package affinity

import "fmt"

// setAffinity is a no-op on platforms without sched_setaffinity.
// Pin still locks the OS thread; only the core restriction is
// unavailable.
func setAffinity(core int) error {
	return fmt.Errorf("affinity: CPU pinning not supported on this platform")
}
