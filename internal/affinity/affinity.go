// Package affinity pins the calling goroutine's OS thread to a
// preferred CPU core. Pinning is advisory: a failure is logged by the
// caller and never treated as fatal, since correctness never depends
// on which core a goroutine runs on, only on the queue-transfer
// discipline in spscqueue and framepool.
package affinity

import "runtime"

// Pin locks the current goroutine to its OS thread and attempts to
// restrict that thread to the given core. On platforms where setting
// affinity isn't supported, Pin still locks the OS thread (so the
// goroutine at least stops migrating) and returns the platform's
// no-op error, which callers should log at WARN and otherwise ignore.
func Pin(core int) error {
	runtime.LockOSThread()
	return setAffinity(core)
}

// Unpin releases the calling goroutine's OS thread lock. Callers that
// Pin a long-lived worker goroutine typically never call Unpin; it
// exists for tests and short-lived pinned sections.
func Unpin() {
	runtime.UnlockOSThread()
}

// PreferredCore mirrors the reference implementation's pinning
// rationale: a process-level coordinator (the synchronizer) is kept
// off the cores that workers will use below saturation, by pinning it
// to camCount mod coresPerComplex; worker i is pinned to i mod
// coresPerComplex. coresPerComplex is the core count of the cache
// domain the caller wants to stay within (reference value 8).
func PreferredCore(index, coresPerComplex int) int {
	if coresPerComplex <= 0 {
		return 0
	}
	return index % coresPerComplex
}
