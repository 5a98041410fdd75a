// Package bootstrap implements the process-level bring-up sequence:
// CPU claiming and pinning, the pool-config command-line mini-grammar,
// application library loading, the SIGINT listener, and the
// non-graceful-exit recovery file.
package bootstrap

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/forkcore/platform/internal/logging"
)

// ClaimAllCores reports how many physical cores are available and
// clears any inherited CPU-affinity restriction so later per-core
// pinning calls (dispatch.Loop.Pin) aren't constrained by it.
func ClaimAllCores() int {
	cores := runtime.NumCPU()
	var mask unix.CPUSet
	for i := 0; i < cores; i++ {
		mask.Set(i)
	}
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		logging.Warn("bootstrap: failed to claim all cores", "error", err)
	}
	return cores
}

// PinToCore pins the calling OS thread to core. dispatch.Loop.Pin calls
// this after runtime.LockOSThread; it is exported separately so
// bootstrap's own goroutines (e.g. core 0's global-init path) can pin
// without depending on internal/dispatch.
func PinToCore(core int) error {
	var mask unix.CPUSet
	mask.Set(core)
	return unix.SchedSetaffinity(0, &mask)
}
