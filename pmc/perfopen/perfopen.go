//go:build linux

// Package perfopen implements pmc.Bank on top of the Linux
// perf_event_open(2) syscall: one event fd per slot, read as plain
// 64-bit values.
package perfopen

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sarchlab/memlat/pmc"
)

// rawEncoding maps the symbolic event names a cpuarch.EventSet carries
// to a PERF_TYPE_RAW config value (umask<<8 | event_select). These are
// placeholder encodings; a production build would instead resolve them
// against the running kernel's /sys/bus/event_source/devices/cpu/events
// listing.
var rawEncoding = map[string]uint64{
	"CYCLE_ACTIVITY:STALLS_L2_PENDING":             0x015a3,
	"CYCLE_ACTIVITY:STALLS_L2_MISS":                0x055a3,
	"MEM_LOAD_UOPS_RETIRED:LLC_HIT":                0x014d1,
	"MEM_LOAD_L3_HIT_RETIRED:XSNP_NONE":            0x044d2,
	"OFFCORE_RESPONSE:DEMAND_DATA_RD:REMOTE_DRAM":  0x1b7,
	"OFFCORE_RESPONSE:DEMAND_DATA_RD:LOCAL_DRAM":   0x2b7,
	"MEM_LOAD_L3_MISS_RETIRED:REMOTE_DRAM":         0x044d3,
	"MEM_LOAD_L3_MISS_RETIRED:LOCAL_DRAM":          0x014d3,
}

// SupportsEvent reports whether this backend has a raw perf_event_open
// encoding for the given symbolic event name.
func SupportsEvent(name string) bool {
	_, ok := rawEncoding[name]
	return ok
}

type slot struct {
	name string
	f    *os.File
	base uint64
}

// Bank is a pmc.Bank backed by one independent perf_event_open file
// descriptor per slot; Enable/Disable toggle them one slot at a time.
type Bank struct {
	slots   [pmc.NumSlots]*slot
	nSlots  int
	enabled bool
}

// Open creates an unprogrammed Bank. Program must be called before
// Enable.
func Open() (*Bank, error) {
	return &Bank{}, nil
}

func (b *Bank) Program(events [pmc.NumSlots]string) error {
	b.Close()
	b.nSlots = 0

	// Each slot is its own independent perf_event_open file descriptor
	// (no PERF_FORMAT_GROUP): grouping would change the read(2) layout
	// to a leading count plus one value per group member, which this
	// bank's per-slot plain-value reads don't parse.
	for i, name := range events {
		if name == "" {
			continue
		}
		config, ok := rawEncoding[name]
		if !ok {
			return fmt.Errorf("%w: %q", pmc.ErrNoSuchEvent, name)
		}

		attr := unix.PerfEventAttr{
			Type:   unix.PERF_TYPE_RAW,
			Config: config,
			Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
			Bits:   unix.PerfBitDisabled,
		}

		fd, err := unix.PerfEventOpen(&attr, 0, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			b.Close()
			return fmt.Errorf("perfopen: PerfEventOpen(%q): %w", name, err)
		}

		b.slots[i] = &slot{name: name, f: os.NewFile(uintptr(fd), "<perf-event:"+name+">")}
		b.nSlots = i + 1
	}
	return nil
}

func (b *Bank) Enable() error {
	for _, s := range b.slots {
		if s == nil {
			continue
		}
		if _, err := unix.IoctlGetInt(int(s.f.Fd()), unix.PERF_EVENT_IOC_ENABLE); err != nil {
			return fmt.Errorf("perfopen: enable %q: %w", s.name, err)
		}
	}
	b.enabled = true
	return nil
}

func (b *Bank) Disable() error {
	for _, s := range b.slots {
		if s == nil {
			continue
		}
		if _, err := unix.IoctlGetInt(int(s.f.Fd()), unix.PERF_EVENT_IOC_DISABLE); err != nil {
			return fmt.Errorf("perfopen: disable %q: %w", s.name, err)
		}
	}
	b.enabled = false
	return nil
}

func (b *Bank) ReadAll() ([pmc.NumSlots]uint64, error) {
	var out [pmc.NumSlots]uint64
	for i, s := range b.slots {
		if s == nil {
			continue
		}
		v, err := readOne(s.f)
		if err != nil {
			return out, fmt.Errorf("perfopen: read %q: %w", s.name, err)
		}
		out[i] = v
	}
	return out, nil
}

func (b *Bank) ReadDelta() ([pmc.NumSlots]uint64, error) {
	var out [pmc.NumSlots]uint64
	for i, s := range b.slots {
		if s == nil {
			continue
		}
		v, err := readOne(s.f)
		if err != nil {
			return out, fmt.Errorf("perfopen: read %q: %w", s.name, err)
		}
		out[i] = v - s.base
		s.base = v
	}
	return out, nil
}

func (b *Bank) Close() error {
	var firstErr error
	for i, s := range b.slots {
		if s == nil {
			continue
		}
		if err := s.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.slots[i] = nil
	}
	return firstErr
}

func readOne(f *os.File) (uint64, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return 0, err
	}
	var rec [8]byte
	if _, err := f.Read(rec[:]); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(rec[:]), nil
}
