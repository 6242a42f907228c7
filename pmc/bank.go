// Package pmc abstracts a fixed four-slot hardware performance counter
// bank behind a single Bank interface with two backends: a direct
// model-specific-register backend (pmc/msr) and a library-based
// perf_event_open backend (pmc/perfopen).
package pmc

import "errors"

// NumSlots is the fixed bank width: L2 stall, LLC hit, remote-DRAM
// miss, local-DRAM miss.
const NumSlots = 4

// ErrNoSuchEvent is returned by Program when a backend does not know how
// to encode the requested symbolic event name for the running
// microarch.
var ErrNoSuchEvent = errors.New("pmc: no encoding for requested event on this microarch")

// ErrCountersExhausted is returned by Program when more events are
// requested than NumSlots.
var ErrCountersExhausted = errors.New("pmc: counter bank has only NumSlots programmable events")

// ErrSlotNotProgrammed names the error for reading a slot that was
// never successfully programmed. The msr and perfopen backends do not
// return it: their ReadDelta/ReadAll report 0 for such slots.
var ErrSlotNotProgrammed = errors.New("pmc: slot not programmed")

// Bank is the counter-bank abstraction both backends implement. A Bank
// is bound to one OS thread and must not be shared across goroutines
// without external synchronization.
type Bank interface {
	// Program assigns symbolic event names to the bank's fixed slots,
	// in the order the caller's microarch Descriptor defines them
	// (cpuarch.EventSet). len(events) must be <= NumSlots.
	Program(events [NumSlots]string) error

	// Enable starts all programmed counters counting.
	Enable() error

	// Disable stops all programmed counters from counting, without
	// losing their accumulated values.
	Disable() error

	// ReadAll returns the current raw counter values for every slot,
	// in programmed order.
	ReadAll() ([NumSlots]uint64, error)

	// ReadDelta returns the counter values accumulated since the
	// previous call to ReadDelta (or since Enable, for the first
	// call), and resets the baseline. This is the primitive
	// epoch.Engine uses every epoch close.
	ReadDelta() ([NumSlots]uint64, error)

	// Close releases any OS resources (file descriptors, mappings)
	// held by the bank.
	Close() error
}
