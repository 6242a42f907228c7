package cpuarch

import (
	"fmt"
	"strings"
)

// EventSet names the four PMC programmable events a Descriptor needs,
// in the slot order Deltas expects. The strings are the symbolic event
// names the pmc backends resolve against their own encoding tables; the
// registry never touches raw MSR/perf encodings itself.
type EventSet [4]string

const (
	slotL2Stall = iota
	slotLLCHit
	slotRemoteDRAM
	slotLocalDRAM
)

// Descriptor is the immutable, per-microarch bundle the rest of the
// daemon consumes: identification keys, the event set to program,
// the stall estimator, and descriptive metadata filled in from the live
// CPUInfo at selection time.
type Descriptor struct {
	Name         string
	FamilyID     int
	ModelID      int
	IsXeon       bool
	EventSet     EventSet
	Estimator    Estimator
	LLCSizeBytes uint64
	CounterCount int
	SPRExperimental bool
}

// entry is the static, read-only table row. Select never mutates an
// entry in place; it always returns a freshly built Descriptor value
// copied out of the matching entry, so concurrent callers can never
// observe each other's labeling.
type entry struct {
	familyID, modelID int
	name              string
	isXeon            bool
	sprExperimental   bool
	events            EventSet
	l3Factor          float64
}

// registry holds every supported microarchitecture. Family/model IDs
// are the standard Intel CPUID leaf-1 values for each generation; each
// (family, model) pair appears exactly once.
var registry = []entry{
	{
		familyID: 6, modelID: 0x2A, name: "Sandy Bridge", isXeon: false,
		events: EventSet{
			slotL2Stall:    "CYCLE_ACTIVITY:STALLS_L2_PENDING",
			slotLLCHit:     "MEM_LOAD_UOPS_RETIRED:LLC_HIT",
			slotRemoteDRAM: "OFFCORE_RESPONSE:DEMAND_DATA_RD:REMOTE_DRAM",
			slotLocalDRAM:  "OFFCORE_RESPONSE:DEMAND_DATA_RD:LOCAL_DRAM",
		},
		l3Factor: 1.0,
	},
	{
		familyID: 6, modelID: 0x2D, name: "Sandy Bridge Xeon", isXeon: true,
		events: EventSet{
			slotL2Stall:    "CYCLE_ACTIVITY:STALLS_L2_PENDING",
			slotLLCHit:     "MEM_LOAD_UOPS_RETIRED:LLC_HIT",
			slotRemoteDRAM: "OFFCORE_RESPONSE:DEMAND_DATA_RD:REMOTE_DRAM",
			slotLocalDRAM:  "OFFCORE_RESPONSE:DEMAND_DATA_RD:LOCAL_DRAM",
		},
		l3Factor: 1.0,
	},
	{
		familyID: 6, modelID: 0x3A, name: "Ivy Bridge", isXeon: false,
		events: EventSet{
			slotL2Stall:    "CYCLE_ACTIVITY:STALLS_L2_PENDING",
			slotLLCHit:     "MEM_LOAD_UOPS_RETIRED:LLC_HIT",
			slotRemoteDRAM: "OFFCORE_RESPONSE:DEMAND_DATA_RD:REMOTE_DRAM",
			slotLocalDRAM:  "OFFCORE_RESPONSE:DEMAND_DATA_RD:LOCAL_DRAM",
		},
		l3Factor: 1.0,
	},
	{
		familyID: 6, modelID: 0x3E, name: "Ivy Bridge Xeon", isXeon: true,
		events: EventSet{
			slotL2Stall:    "CYCLE_ACTIVITY:STALLS_L2_PENDING",
			slotLLCHit:     "MEM_LOAD_UOPS_RETIRED:LLC_HIT",
			slotRemoteDRAM: "OFFCORE_RESPONSE:DEMAND_DATA_RD:REMOTE_DRAM",
			slotLocalDRAM:  "OFFCORE_RESPONSE:DEMAND_DATA_RD:LOCAL_DRAM",
		},
		l3Factor: 1.0,
	},
	{
		familyID: 6, modelID: 0x3C, name: "Haswell", isXeon: false,
		events: EventSet{
			slotL2Stall:    "CYCLE_ACTIVITY:STALLS_L2_MISS",
			slotLLCHit:     "MEM_LOAD_L3_HIT_RETIRED:XSNP_NONE",
			slotRemoteDRAM: "MEM_LOAD_L3_MISS_RETIRED:REMOTE_DRAM",
			slotLocalDRAM:  "MEM_LOAD_L3_MISS_RETIRED:LOCAL_DRAM",
		},
		l3Factor: 1.0,
	},
	{
		// family=6 model=63 (0x3F): Haswell-EP/EX Xeon.
		familyID: 6, modelID: 0x3F, name: "Haswell Xeon", isXeon: true,
		events: EventSet{
			slotL2Stall:    "CYCLE_ACTIVITY:STALLS_L2_MISS",
			slotLLCHit:     "MEM_LOAD_L3_HIT_RETIRED:XSNP_NONE",
			slotRemoteDRAM: "MEM_LOAD_L3_MISS_RETIRED:REMOTE_DRAM",
			slotLocalDRAM:  "MEM_LOAD_L3_MISS_RETIRED:LOCAL_DRAM",
		},
		l3Factor: 1.0,
	},
	{
		// family=6 model=143 (0x8F): Sapphire Rapids Xeon. The
		// L3Factor=7.0 weighting and the event encodings behind it
		// are placeholders pending vendor documentation, so the
		// descriptor stays gated behind an explicit opt-in.
		familyID: 6, modelID: 0x8F, name: "Sapphire Rapids Xeon", isXeon: true,
		sprExperimental: true,
		events: EventSet{
			slotL2Stall:    "CYCLE_ACTIVITY:STALLS_L2_MISS",
			slotLLCHit:     "MEM_LOAD_L3_HIT_RETIRED:XSNP_NONE",
			slotRemoteDRAM: "MEM_LOAD_L3_MISS_RETIRED:REMOTE_DRAM",
			slotLocalDRAM:  "MEM_LOAD_L3_MISS_RETIRED:LOCAL_DRAM",
		},
		l3Factor: 7.0,
	},
}

// ErrUnsupportedCPU is returned by Select when the running CPU is not
// Intel or not present in the registry.
type ErrUnsupportedCPU struct {
	Vendor           string
	FamilyID, ModelID int
}

func (e *ErrUnsupportedCPU) Error() string {
	return fmt.Sprintf("cpuarch: unsupported CPU vendor=%q family=%d model=%d", e.Vendor, e.FamilyID, e.ModelID)
}

// SelectOptions lets callers opt in to experimental descriptors.
type SelectOptions struct {
	AllowSPRExperimental bool
}

// Select rejects non-Intel vendors, scans the static registry for an
// exact (family, model)
// match, and returns a freshly constructed Descriptor with
// llc_size_bytes filled in from the live CPUInfo. It never returns a
// pointer into the shared registry table.
func Select(info *CPUInfo, family, model int, opts SelectOptions) (*Descriptor, error) {
	if !strings.Contains(info.VendorID, "GenuineIntel") && !strings.Contains(info.ModelName, "Intel") {
		return nil, &ErrUnsupportedCPU{Vendor: info.VendorID, FamilyID: family, ModelID: model}
	}

	for _, e := range registry {
		if e.familyID != family || e.modelID != model {
			continue
		}
		if e.sprExperimental && !opts.AllowSPRExperimental {
			return nil, fmt.Errorf("cpuarch: %s descriptor carries placeholder event encodings; set AllowSPRExperimental to use it", e.name)
		}

		isXeon := e.isXeon
		if wantXeon := strings.Contains(info.ModelName, "Xeon"); wantXeon != isXeon {
			// The brand string disagrees with the registry's
			// expectation for this model number; the brand
			// string decides Descriptor.IsXeon, while Name and
			// the event set stay those of the registry entry.
			isXeon = wantXeon
		}

		return &Descriptor{
			Name:            e.name,
			FamilyID:        e.familyID,
			ModelID:         e.modelID,
			IsXeon:          isXeon,
			EventSet:        e.events,
			Estimator:       Estimator{L3Factor: e.l3Factor},
			LLCSizeBytes:    info.LLCSizeBytes,
			CounterCount:    4,
			SPRExperimental: e.sprExperimental,
		}, nil
	}

	return nil, &ErrUnsupportedCPU{Vendor: info.VendorID, FamilyID: family, ModelID: model}
}
