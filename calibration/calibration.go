// Package calibration implements the out-of-core calibration loop
// that tunes the latency model's calibration factor. It is never
// imported by epoch.Engine; it runs offline, replaying a recorded or
// synthetic access trace through an akita/v4 cache directory to
// estimate how far off the emulation's effective latency is from the
// configured target, and nudges the factor toward convergence.
package calibration

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/memlat/clock"
)

// Config parameterizes one calibration run: the cache shape used to
// replay the trace, and the target the emulation is trying to reach.
type Config struct {
	NumSets       int
	Associativity int
	BlockSize     int

	TargetLatencyNs uint64
	HwLatencyNs     uint64
	CPUSpeedMHz     uint32

	MaxRounds            int
	ConvergenceTolerance float64
	StepSize             float64
}

// Trace is a recorded or synthetically generated sequence of memory
// touches from one or more epochs: the addresses accessed and the raw
// L2-stall-cycle counts observed alongside them.
type Trace struct {
	Addresses      []uint64
	StallCyclesRaw []uint64
}

// Result is the outcome of a calibration run.
type Result struct {
	CalibrationFactor float64
	Rounds            int
	Converged         bool
	FinalErrorRatio   float64
}

// Run replays trace through a fresh akita cache directory once per
// round, uses the resulting miss ratio to weight the trace's raw
// stall cycles into an estimated injected latency, compares that
// against cfg's target, and adjusts the calibration factor by a
// proportional step until the error falls within
// cfg.ConvergenceTolerance or cfg.MaxRounds is exhausted.
func Run(cfg Config, trace Trace) *Result {
	factor := 1.0
	res := &Result{CalibrationFactor: factor}

	if len(trace.Addresses) == 0 || cfg.MaxRounds <= 0 {
		return res
	}

	targetDeltaNs := deltaNs(cfg.TargetLatencyNs, cfg.HwLatencyNs)

	for round := 0; round < cfg.MaxRounds; round++ {
		missRatio := replayMissRatio(cfg, trace)
		rawStalls := sum(trace.StallCyclesRaw)
		estimatedStallCycles := float64(rawStalls) * missRatio * factor
		estimatedDelayNs := cyclesToNs(cfg.CPUSpeedMHz, estimatedStallCycles)

		errorRatio := relativeError(estimatedDelayNs, float64(targetDeltaNs))

		res.Rounds = round + 1
		res.FinalErrorRatio = errorRatio

		if abs(errorRatio) <= cfg.ConvergenceTolerance {
			res.Converged = true
			break
		}

		factor = nextFactor(factor, errorRatio, cfg.StepSize)
	}

	res.CalibrationFactor = factor
	return res
}

// replayMissRatio walks trace.Addresses through a fresh directory with
// cfg's cache shape, mirroring timing/cache.Cache's Lookup/FindVictim/
// Visit sequence, and returns the fraction of accesses that missed.
func replayMissRatio(cfg Config, trace Trace) float64 {
	dir := akitacache.NewDirectory(cfg.NumSets, cfg.Associativity, cfg.BlockSize, akitacache.NewLRUVictimFinder())

	var misses int
	for _, addr := range trace.Addresses {
		blockAddr := (addr / uint64(cfg.BlockSize)) * uint64(cfg.BlockSize)

		block := dir.Lookup(0, blockAddr)
		if block != nil && block.IsValid {
			dir.Visit(block)
			continue
		}

		misses++
		victim := dir.FindVictim(blockAddr)
		if victim == nil {
			continue
		}
		victim.Tag = blockAddr
		victim.IsValid = true
		victim.IsDirty = false
		dir.Visit(victim)
	}

	if len(trace.Addresses) == 0 {
		return 0
	}
	return float64(misses) / float64(len(trace.Addresses))
}

func deltaNs(targetNs, hwNs uint64) uint64 {
	if targetNs <= hwNs {
		return 0
	}
	return targetNs - hwNs
}

func cyclesToNs(speedMHz uint32, cycles float64) float64 {
	if speedMHz == 0 {
		return 0
	}
	// speed_mhz cycles/us == cycles/1000ns, so ns = cycles * 1000 / speed_mhz.
	return cycles * 1000 / float64(speedMHz)
}

func relativeError(estimated, target float64) float64 {
	if target == 0 {
		if estimated == 0 {
			return 0
		}
		return 1
	}
	return (target - estimated) / target
}

func nextFactor(factor, errorRatio, step float64) float64 {
	next := factor + step*errorRatio
	if next < 0 {
		return 0
	}
	return next
}

func sum(vs []uint64) uint64 {
	var total uint64
	for _, v := range vs {
		total += v
	}
	return total
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// BenchSpinOverhead measures the clock package's own spin overhead at
// n=0, useful for sanity-checking a calibration run's CPUSpeedMHz
// input against the live machine before trusting its output.
func BenchSpinOverhead() uint64 {
	start := clock.NowCycles()
	clock.Spin(0)
	return clock.NowCycles() - start
}
