//go:build amd64

package clock

// rdtscp is implemented in clock_amd64.s. RDTSCP is a serializing read: it
// waits for all prior instructions to retire before the counter is sampled,
// which is what lets a single thread's successive NowCycles() calls be
// treated as monotonic without an explicit fence.
func rdtscp() uint64

func nowCycles() uint64 {
	return rdtscp()
}

// haveCycleCounter reports whether this build has a native cycle-counter
// read. Always true on amd64.
const haveCycleCounter = true
