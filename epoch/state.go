// Package epoch implements the per-thread epoch-closing routine: the
// re-entrancy-guarded routine that reads PMC deltas, applies the
// latency model's analytic formula, derives and caps an injection
// delay, and spins for it.
package epoch

// State is one thread's epoch bookkeeping, created when the thread
// enrolls and destroyed on exit. Owned exclusively by the thread that
// calls CloseEpoch on it; the hot path shares no mutable state.
type State struct {
	ThreadID int

	// DRAMNodeID/NVRAMNodeID identify the virtual node halves this
	// thread is bound to; DRAMNodeID == NVRAMNodeID means the thread
	// runs "local".
	DRAMNodeID, NVRAMNodeID int

	HwLocalLatencyNs  uint64
	HwRemoteLatencyNs uint64

	OverheadCycles       uint64
	LastEpochTimestampUs uint64
	CPUSpeedMHz          uint32

	// Signaled is the re-entrancy flag; cleared unconditionally at the
	// end of every CloseEpoch call.
	Signaled bool

	// Stats accumulates the optional per-thread accounting fields;
	// left zero-valued when stats collection is disabled.
	Stats Stats
}

// Stats is the optional per-thread accounting block.
type Stats struct {
	Enabled bool

	EpochCount       uint64
	StallCyclesTotal uint64
	ShortestEpochUs  uint64
	LongestEpochUs   uint64
	OverallEpochUs   uint64
	RemoteDRAMBytes  uint64
	LocalDRAMBytes   uint64
}

// IsRemote reports whether this thread's DRAM and NVRAM halves differ,
// i.e. it runs against a genuinely remote virtual node.
func (s *State) IsRemote() bool {
	return s.DRAMNodeID != s.NVRAMNodeID
}
