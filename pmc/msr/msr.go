// Package msr implements pmc.Bank by programming Intel's architectural
// performance-monitoring MSRs directly through /dev/cpu/N/msr, the
// "direct" counterpart to the perf_event_open path (pmc/perfopen).
// RDMSR/WRMSR are privileged instructions, so access goes through the
// kernel's msr character device rather than inline assembly.
package msr

import (
	"fmt"
	"os"

	"github.com/sarchlab/memlat/pmc"
)

const (
	// IA32_PERFEVTSELx and IA32_PMCx base addresses for the four
	// general-purpose counters (architectural MSR layout, Intel SDM
	// vol. 3B ch. 18).
	perfEvtSelBase = 0x186
	pmcBase        = 0x0C1

	// IA32_PERF_GLOBAL_CTRL enables/disables the whole bank at once.
	globalCtrl = 0x38F

	evtSelEnableBit = 1 << 22
)

// encoding maps symbolic event names to the (event_select, umask) pair
// IA32_PERFEVTSELx expects. Placeholder encodings in the same spirit as
// pmc/perfopen's rawEncoding table.
var encoding = map[string]uint64{
	"CYCLE_ACTIVITY:STALLS_L2_PENDING":            0x015a3,
	"CYCLE_ACTIVITY:STALLS_L2_MISS":               0x055a3,
	"MEM_LOAD_UOPS_RETIRED:LLC_HIT":               0x014d1,
	"MEM_LOAD_L3_HIT_RETIRED:XSNP_NONE":           0x044d2,
	"OFFCORE_RESPONSE:DEMAND_DATA_RD:REMOTE_DRAM": 0x1b7,
	"OFFCORE_RESPONSE:DEMAND_DATA_RD:LOCAL_DRAM":  0x2b7,
	"MEM_LOAD_L3_MISS_RETIRED:REMOTE_DRAM":        0x044d3,
	"MEM_LOAD_L3_MISS_RETIRED:LOCAL_DRAM":         0x014d3,
}

// Bank is a pmc.Bank backed by one OS thread's /dev/cpu/N/msr device
// file. Callers must pin the calling goroutine to an OS thread with
// runtime.LockOSThread before Open, since MSR reads/writes are
// per-core.
type Bank struct {
	f       *os.File
	cpu     int
	names   [pmc.NumSlots]string
	base    [pmc.NumSlots]uint64
	nSlots  int
}

// SupportsEvent reports whether this backend has a raw MSR encoding for
// the given symbolic event name.
func SupportsEvent(name string) bool {
	_, ok := encoding[name]
	return ok
}

// Open opens the MSR device file for the given logical CPU number.
// Requires CAP_SYS_RAWIO and the msr kernel module loaded.
func Open(cpu int) (*Bank, error) {
	f, err := os.OpenFile(fmt.Sprintf("/dev/cpu/%d/msr", cpu), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("msr: open cpu %d: %w", cpu, err)
	}
	return &Bank{f: f, cpu: cpu}, nil
}

func (b *Bank) Program(events [pmc.NumSlots]string) error {
	b.nSlots = 0
	for i, name := range events {
		if name == "" {
			continue
		}
		cfg, ok := encoding[name]
		if !ok {
			return fmt.Errorf("%w: %q", pmc.ErrNoSuchEvent, name)
		}
		if err := b.wrmsr(uint32(perfEvtSelBase+i), cfg); err != nil {
			return fmt.Errorf("msr: program slot %d (%q): %w", i, name, err)
		}
		b.names[i] = name
	}
	b.nSlots = len(events)
	return nil
}

func (b *Bank) Enable() error {
	var mask uint64
	for i, name := range b.names {
		if name == "" {
			continue
		}
		cfg, _ := encoding[name]
		// Zero the counter and its baseline so the first ReadDelta
		// counts from Enable.
		if err := b.wrmsr(uint32(pmcBase+i), 0); err != nil {
			return err
		}
		b.base[i] = 0
		if err := b.wrmsr(uint32(perfEvtSelBase+i), cfg|evtSelEnableBit); err != nil {
			return err
		}
		mask |= 1 << uint(i)
	}
	return b.wrmsr(globalCtrl, mask)
}

func (b *Bank) Disable() error {
	return b.wrmsr(globalCtrl, 0)
}

func (b *Bank) ReadAll() ([pmc.NumSlots]uint64, error) {
	var out [pmc.NumSlots]uint64
	for i, name := range b.names {
		if name == "" {
			continue
		}
		v, err := b.rdmsr(uint32(pmcBase + i))
		if err != nil {
			return out, fmt.Errorf("msr: read slot %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (b *Bank) ReadDelta() ([pmc.NumSlots]uint64, error) {
	cur, err := b.ReadAll()
	if err != nil {
		return cur, err
	}
	var delta [pmc.NumSlots]uint64
	for i := range cur {
		delta[i] = cur[i] - b.base[i]
		b.base[i] = cur[i]
	}
	return delta, nil
}

func (b *Bank) Close() error {
	return b.f.Close()
}

func (b *Bank) rdmsr(reg uint32) (uint64, error) {
	buf := make([]byte, 8)
	n, err := b.f.ReadAt(buf, int64(reg))
	if err != nil {
		return 0, err
	}
	if n != 8 {
		return 0, fmt.Errorf("msr: short read (%d bytes) at 0x%x", n, reg)
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

func (b *Bank) wrmsr(reg uint32, value uint64) error {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(value >> (8 * i))
	}
	_, err := b.f.WriteAt(buf, int64(reg))
	return err
}
