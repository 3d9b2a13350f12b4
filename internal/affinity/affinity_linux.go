//go:build linux

package affinity

import "golang.org/x/sys/unix"

// setAffinity restricts the calling thread to a single CPU using
// sched_setaffinity, grounded on the reference's cpu_set_t/
// sched_setaffinity startup pinning and wired through
// golang.org/x/sys/unix's CPUSet helper instead of raw syscall
// numbers.
func setAffinity(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}
