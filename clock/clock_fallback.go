//go:build !amd64

package clock

import "time"

// nowCycles on non-amd64 builds has no native TSC equivalent wired up; it
// falls back to a monotonic nanosecond clock (time elapsed since package
// initialization) treated as a 1GHz cycle count.
// This is a portability shim for running the test suite and tooling on
// non-x86 development machines — it is never what a real deployment target
// (which is always an Intel server CPU per cpuarch's registry) runs on.
var fallbackStart = time.Now()

func nowCycles() uint64 {
	return uint64(time.Since(fallbackStart).Nanoseconds())
}

const haveCycleCounter = false
