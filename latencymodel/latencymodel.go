// Package latencymodel implements the process-wide latency model:
// target read/write latencies, the injection and calibration toggles,
// and the PMC event set the epoch engine samples every epoch close.
package latencymodel

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sarchlab/memlat/config"
	"github.com/sarchlab/memlat/cpuarch"
	"github.com/sarchlab/memlat/internal/logging"
	"github.com/sarchlab/memlat/pmc"
)

// ErrInvalidConfig wraps a topology validation failure from Init.
type ErrInvalidConfig struct {
	Cause error
}

func (e *ErrInvalidConfig) Error() string { return fmt.Sprintf("latencymodel: invalid config: %v", e.Cause) }
func (e *ErrInvalidConfig) Unwrap() error { return e.Cause }

// Model is the latency model one epoch.Engine reads: initialized once
// by Init, with Enabled/InjectDelay toggled without synchronization but
// the calibration factor updated concurrently by an out-of-core
// calibration loop (hence the atomic storage below). It is not a
// process-wide singleton: Init also programs the PMC bank it is given,
// so cmd/memlatd calls Init once per virtual node and holds one Model
// per node, all built from the same configuration.
type Model struct {
	Enabled     bool
	InjectDelay bool

	ReadLatencyNs      uint64
	WriteLatencyNs     uint64
	MinEpochDurationUs uint64

	// Estimator is the descriptor's stall-estimation formula, carried
	// here so the epoch engine doesn't need a separate cpuarch
	// dependency.
	Estimator cpuarch.Estimator

	// HasRemoteSlot reports whether the descriptor's event set
	// programmed a distinct remote-DRAM counter.
	HasRemoteSlot bool

	CalibrationEnabled bool
	calibrationFactor  atomic.Uint64 // math.Float64bits
}

// Init builds the process-wide model from configuration: it validates
// the topology against the target latencies, programs and enables the
// PMC bank, and seeds the calibration factor.
func Init(cfg *config.Config, desc *cpuarch.Descriptor, bank pmc.Bank) (*Model, error) {
	m := &Model{} // step 1: zero the structure

	// step 2
	m.ReadLatencyNs = cfg.Latency.ReadLatencyNs
	m.WriteLatencyNs = cfg.Latency.WriteLatencyNs
	m.MinEpochDurationUs = cfg.Latency.MinEpochDurationUs

	// step 3
	topo := cfg.Topology()
	if err := topo.Validate(m.ReadLatencyNs, m.WriteLatencyNs); err != nil {
		return nil, &ErrInvalidConfig{Cause: err}
	}

	// step 4
	m.InjectDelay = cfg.Latency.InjectDelay
	if cfg.Latency.Enabled && !m.InjectDelay {
		logging.Warnf("latencymodel: model enabled but inject_delay is false; epochs will measure stalls without injecting delay")
	}
	m.Enabled = cfg.Latency.Enabled

	// step 5. The remote-DRAM counter is the one optional event in the
	// set: if the full set cannot be programmed, retry without it and
	// run with the generic stall estimator only. A failure without the
	// remote slot means the stall counter itself is unavailable, which
	// is fatal.
	events := desc.EventSet
	hasRemote := events[2] != ""
	if err := bank.Program(events); err != nil {
		if !hasRemote {
			return nil, fmt.Errorf("latencymodel: program PMC events: %w", err)
		}
		logging.Warnf("latencymodel: programming full event set failed (%v); disabling the remote-DRAM path", err)
		events[2] = ""
		hasRemote = false
		if err := bank.Program(events); err != nil {
			return nil, fmt.Errorf("latencymodel: program PMC events: %w", err)
		}
	}
	if err := bank.Enable(); err != nil {
		return nil, fmt.Errorf("latencymodel: enable PMC bank: %w", err)
	}
	m.Estimator = desc.Estimator
	m.HasRemoteSlot = hasRemote

	// step 6
	m.CalibrationEnabled = cfg.Latency.Calibration
	m.SetCalibrationFactor(1.0)

	// step 7
	if desc.EventSet[0] == "" {
		return nil, fmt.Errorf("latencymodel: descriptor %q programs no stall-cycles counter", desc.Name)
	}

	return m, nil
}

// CalibrationFactor returns the current multiplier applied to raw
// stall cycles (default 1.0).
func (m *Model) CalibrationFactor() float64 {
	return math.Float64frombits(m.calibrationFactor.Load())
}

// SetCalibrationFactor is safe to call concurrently with
// CalibrationFactor from the epoch-closing hot path; it is the single
// mutation point an out-of-core calibration loop uses.
func (m *Model) SetCalibrationFactor(f float64) {
	m.calibrationFactor.Store(math.Float64bits(f))
}
