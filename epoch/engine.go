package epoch

import (
	"math"

	"github.com/sarchlab/memlat/clock"
	"github.com/sarchlab/memlat/cpuarch"
	"github.com/sarchlab/memlat/internal/logging"
	"github.com/sarchlab/memlat/latencymodel"
	"github.com/sarchlab/memlat/pmc"
)

// SignalGate masks and unmasks the external "new epoch" signal source
// for the duration of CloseEpoch's body. Implemented by threadmgr.
type SignalGate interface {
	Block()
	Unblock()
}

// MinDurationChecker reports whether enough wall-clock time has passed
// since a thread's last epoch close; implemented by threadmgr.
type MinDurationChecker interface {
	ReachedMinEpochDuration(ts *State) bool
}

// Clock abstracts monotonic_time_us() so tests can control the wall
// clock deterministically.
type Clock interface {
	NowMicros() uint64
}

// Engine is the epoch-closing routine, bound to one latency model, PMC
// bank, signal gate and min-duration predicate.
// Engine itself holds no per-thread state; every call takes the
// target thread's *State explicitly, since Go has no goroutine-local
// storage to hang it off.
type Engine struct {
	Model       *latencymodel.Model
	Bank        pmc.Bank
	Gate        SignalGate
	MinDuration MinDurationChecker
	Clock       Clock
}

const maxDelayFallbackCycles = 4_000_000_000

// CloseEpoch ends the current epoch for ts: it reads the counter
// deltas, estimates stall cycles, derives and caps the injection
// delay, and spins for whatever survives. It never returns an error;
// all failure modes degrade to zero stall cycles or zero delay, and
// the terminal step (clear Signaled, unblock the signal) runs on every
// path.
func (e *Engine) CloseEpoch(ts *State) {
	engineEntry := clock.NowCycles()

	e.Gate.Block()

	if e.MinDuration != nil && !e.MinDuration.ReachedMinEpochDuration(ts) {
		ts.Signaled = false
		e.Gate.Unblock()
		return
	}

	deltas, err := e.readDeltas(ts)
	if err != nil {
		logging.Debugf("epoch: read_delta failed for thread %d: %v", ts.ThreadID, err)
		deltas = cpuarch.Deltas{}
	}

	stallCycles := e.stallCycles(ts, deltas)

	delayCycles := e.deriveDelay(ts, stallCycles)

	elapsed := clock.NowCycles() - engineEntry
	ts.OverheadCycles, delayCycles = discountOverhead(ts.OverheadCycles, delayCycles, elapsed)

	delayCycles = e.applyCap(ts, delayCycles)

	if delayCycles > 0 && e.Model.InjectDelay {
		clock.Spin(delayCycles)
	}

	nowUs := e.nowMicros()
	if ts.Stats.Enabled {
		updateStats(&ts.Stats, stallCycles, deltas, ts.LastEpochTimestampUs, nowUs)
	}

	ts.LastEpochTimestampUs = nowUs
	ts.Signaled = false
	e.Gate.Unblock()
}

func (e *Engine) nowMicros() uint64 {
	if e.Clock != nil {
		return e.Clock.NowMicros()
	}
	return 0
}

// readDeltas reads the fixed four-slot counter bank. A read failure is
// returned to CloseEpoch, which degrades it to all-zero deltas.
func (e *Engine) readDeltas(ts *State) (cpuarch.Deltas, error) {
	raw, err := e.Bank.ReadDelta()
	if err != nil {
		return cpuarch.Deltas{}, err
	}
	return cpuarch.Deltas(raw), nil
}

// stallCycles picks the remote-only estimator iff this thread's DRAM
// and NVRAM halves differ and a remote counter was programmed, else
// the generic total estimator, then applies the calibration factor.
func (e *Engine) stallCycles(ts *State, deltas cpuarch.Deltas) uint64 {
	var raw uint64
	if ts.IsRemote() && e.Model.HasRemoteSlot {
		raw = e.Model.Estimator.StallsRemote(deltas, ts.HwRemoteLatencyNs, ts.HwLocalLatencyNs)
	} else {
		raw = e.Model.Estimator.StallsTotal(deltas)
	}

	if e.Model.CalibrationEnabled {
		raw = uint64(float64(raw) * e.Model.CalibrationFactor())
	}
	return raw
}

// deriveDelay converts stall cycles into the extra cycles needed to
// stretch the observed hardware latency out to the configured target.
func (e *Engine) deriveDelay(ts *State, stallCycles uint64) uint64 {
	hwLat := ts.HwRemoteLatencyNs // the slower of the two: the NVRAM/remote side
	target := e.Model.ReadLatencyNs

	var ratio float64
	if hwLat > 0 && target > hwLat {
		ratio = float64(target-hwLat) / float64(hwLat)
	}

	if stallCycles == 0 || ratio <= 0 {
		return 0
	}

	if float64(stallCycles) > float64(math.MaxUint64)/ratio {
		logging.Warnf("epoch: overflow in delay calculation for thread %d, capping delay_cycles", ts.ThreadID)
		return math.MaxUint64
	}
	return uint64(float64(stallCycles) * ratio)
}

// applyCap discards (not clamps) any delay exceeding 5x the minimum
// epoch duration; deltas that large indicate counter wrap or a
// first-epoch transient, not real stalls.
func (e *Engine) applyCap(ts *State, delayCycles uint64) uint64 {
	if delayCycles == 0 {
		return 0
	}

	maxDelayNs := 5 * e.Model.MinEpochDurationUs * 1000
	var maxAllowed uint64
	if ts.CPUSpeedMHz > 0 {
		maxAllowed = uint64(ts.CPUSpeedMHz) * maxDelayNs / 1000
	} else {
		maxAllowed = maxDelayFallbackCycles
		logging.Warnf("epoch: cpu_speed_mhz is 0 for thread %d, using fallback cap", ts.ThreadID)
	}

	if delayCycles > maxAllowed {
		logging.Warnf("epoch: delay_cycles %d for thread %d exceeds max allowed %d, discarding", delayCycles, ts.ThreadID, maxAllowed)
		return 0
	}
	return delayCycles
}

// discountOverhead adds the engine's own elapsed runtime to the
// thread's overhead debt, then repays as much of that debt as possible
// out of the computed delay before any actual spin happens. Returns
// the new overhead and delay values; by construction
// overheadBefore+elapsed == overheadAfter + (delayBefore-delayAfter).
func discountOverhead(overheadBefore, delayBefore, elapsed uint64) (overheadAfter, delayAfter uint64) {
	accrued := overheadBefore + elapsed
	if delayBefore > accrued {
		return 0, delayBefore - accrued
	}
	return accrued - delayBefore, 0
}

// cacheLineBytes converts the remote/local DRAM-serviced load counts
// in slots 2/3 into byte totals; each counted event is one line fill.
const cacheLineBytes = 64

func updateStats(s *Stats, stallCycles uint64, deltas cpuarch.Deltas, lastUs, nowUs uint64) {
	s.EpochCount++
	s.StallCyclesTotal += stallCycles
	s.RemoteDRAMBytes += deltas[2] * cacheLineBytes
	s.LocalDRAMBytes += deltas[3] * cacheLineBytes

	var diff uint64
	if nowUs > lastUs {
		diff = nowUs - lastUs
	}

	if s.EpochCount == 1 || diff < s.ShortestEpochUs {
		s.ShortestEpochUs = diff
	}
	if diff > s.LongestEpochUs {
		s.LongestEpochUs = diff
	}
	s.OverallEpochUs += diff
}
