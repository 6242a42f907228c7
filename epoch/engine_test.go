package epoch

import (
	"testing"

	"github.com/sarchlab/memlat/cpuarch"
	"github.com/sarchlab/memlat/latencymodel"
	"github.com/sarchlab/memlat/pmc"
)

type fakeGate struct {
	blocked, blockedCalls, unblockedCalls int
}

func (g *fakeGate) Block()   { g.blocked++; g.blockedCalls++ }
func (g *fakeGate) Unblock() { g.blocked--; g.unblockedCalls++ }

type fakeMinDuration struct{ reached bool }

func (m *fakeMinDuration) ReachedMinEpochDuration(*State) bool { return m.reached }

type fakeClock struct{ us uint64 }

func (c *fakeClock) NowMicros() uint64 { return c.us }

type fakeBank struct {
	delta [pmc.NumSlots]uint64
	err   error
}

func (b *fakeBank) Program([pmc.NumSlots]string) error           { return nil }
func (b *fakeBank) Enable() error                                { return nil }
func (b *fakeBank) Disable() error                                { return nil }
func (b *fakeBank) ReadAll() ([pmc.NumSlots]uint64, error)        { return b.delta, b.err }
func (b *fakeBank) ReadDelta() ([pmc.NumSlots]uint64, error)      { return b.delta, b.err }
func (b *fakeBank) Close() error                                  { return nil }

func testModel(readLatencyNs uint64, inject bool) *latencymodel.Model {
	return &latencymodel.Model{
		ReadLatencyNs:      readLatencyNs,
		WriteLatencyNs:     readLatencyNs,
		MinEpochDurationUs: 100,
		InjectDelay:        inject,
		Estimator:          cpuarch.Estimator{L3Factor: 1.0},
		HasRemoteSlot:      true,
	}
}

func TestCloseEpochClearsSignaledOnMinDurationGate(t *testing.T) {
	gate := &fakeGate{}
	e := &Engine{
		Model:       testModel(300, true),
		Bank:        &fakeBank{},
		Gate:        gate,
		MinDuration: &fakeMinDuration{reached: false},
		Clock:       &fakeClock{},
	}
	ts := &State{Signaled: true}

	e.CloseEpoch(ts)

	if ts.Signaled {
		t.Error("Signaled should be cleared even on the min-duration early-return path")
	}
	if gate.blocked != 0 {
		t.Errorf("gate left in blocked state: %d", gate.blocked)
	}
}

func TestCloseEpochClearsSignaledOnFullPath(t *testing.T) {
	gate := &fakeGate{}
	e := &Engine{
		Model:       testModel(300, true),
		Bank:        &fakeBank{delta: [pmc.NumSlots]uint64{1000, 0, 10, 10}},
		Gate:        gate,
		MinDuration: &fakeMinDuration{reached: true},
		Clock:       &fakeClock{us: 500},
	}
	ts := &State{Signaled: true, HwLocalLatencyNs: 80, HwRemoteLatencyNs: 100, CPUSpeedMHz: 2000}

	e.CloseEpoch(ts)

	if ts.Signaled {
		t.Error("Signaled should be cleared on the full path")
	}
	if gate.blocked != 0 {
		t.Errorf("gate left in blocked state: %d", gate.blocked)
	}
	if ts.LastEpochTimestampUs != 500 {
		t.Errorf("LastEpochTimestampUs = %d, want 500", ts.LastEpochTimestampUs)
	}
}

func TestDeriveDelayStretchesStallsByRatio(t *testing.T) {
	e := &Engine{Model: testModel(300, true)}
	ts := &State{HwRemoteLatencyNs: 100}
	got := e.deriveDelay(ts, 600)
	if got != 1200 {
		t.Errorf("deriveDelay = %d, want 1200", got)
	}
}

func TestDeriveDelayZeroRatioWhenEqual(t *testing.T) {
	e := &Engine{Model: testModel(100, true)}
	ts := &State{HwRemoteLatencyNs: 100}
	if got := e.deriveDelay(ts, 600); got != 0 {
		t.Errorf("deriveDelay = %d, want 0 when target == hw latency", got)
	}
}

func TestDeriveDelayOverflowCapsToMax(t *testing.T) {
	e := &Engine{Model: testModel(1_100, true)}
	ts := &State{HwRemoteLatencyNs: 100}
	// ratio ~= 10, stall_cycles = 10^19 forces overflow.
	got := e.deriveDelay(ts, 10_000_000_000_000_000_000)
	if got != ^uint64(0) {
		t.Errorf("deriveDelay overflow = %d, want MaxUint64", got)
	}
}

func TestApplyCapDiscardsExcessiveDelay(t *testing.T) {
	e := &Engine{Model: testModel(300, true)}
	ts := &State{CPUSpeedMHz: 2000}
	// cap = 2000 * (5 * 100 * 1000) / 1000 = 1e6
	if got := e.applyCap(ts, 10_000_000_000); got != 0 {
		t.Errorf("applyCap = %d, want 0 (discarded, not clamped)", got)
	}
	if got := e.applyCap(ts, 999_999); got != 999_999 {
		t.Errorf("applyCap under the cap should pass through unchanged, got %d", got)
	}
}

func TestApplyCapFallsBackWhenSpeedUnknown(t *testing.T) {
	e := &Engine{Model: testModel(300, true)}
	ts := &State{CPUSpeedMHz: 0}
	if got := e.applyCap(ts, maxDelayFallbackCycles+1); got != 0 {
		t.Errorf("applyCap = %d, want 0 above fallback cap", got)
	}
	if got := e.applyCap(ts, maxDelayFallbackCycles-1); got != maxDelayFallbackCycles-1 {
		t.Errorf("applyCap below fallback cap should pass through, got %d", got)
	}
}

func TestCloseEpochAccumulatesStats(t *testing.T) {
	clk := &fakeClock{us: 1000}
	e := &Engine{
		Model:       testModel(300, false),
		Bank:        &fakeBank{delta: [pmc.NumSlots]uint64{1000, 0, 10, 30}},
		Gate:        &fakeGate{},
		MinDuration: &fakeMinDuration{reached: true},
		Clock:       clk,
	}
	ts := &State{
		HwLocalLatencyNs:  80,
		HwRemoteLatencyNs: 100,
		CPUSpeedMHz:       2000,
		Stats:             Stats{Enabled: true},
	}

	e.CloseEpoch(ts)
	clk.us = 1500
	e.CloseEpoch(ts)

	if ts.Stats.EpochCount != 2 {
		t.Errorf("EpochCount = %d, want 2", ts.Stats.EpochCount)
	}
	if ts.Stats.RemoteDRAMBytes != 2*10*cacheLineBytes {
		t.Errorf("RemoteDRAMBytes = %d, want %d", ts.Stats.RemoteDRAMBytes, 2*10*cacheLineBytes)
	}
	if ts.Stats.LocalDRAMBytes != 2*30*cacheLineBytes {
		t.Errorf("LocalDRAMBytes = %d, want %d", ts.Stats.LocalDRAMBytes, 2*30*cacheLineBytes)
	}
	if ts.Stats.LongestEpochUs != 1000 || ts.Stats.ShortestEpochUs != 500 {
		t.Errorf("epoch durations = shortest %d longest %d, want 500/1000",
			ts.Stats.ShortestEpochUs, ts.Stats.LongestEpochUs)
	}
	if ts.Stats.OverallEpochUs != 1500 {
		t.Errorf("OverallEpochUs = %d, want 1500", ts.Stats.OverallEpochUs)
	}
}

func TestDiscountOverheadConservesBudget(t *testing.T) {
	cases := []struct{ overheadBefore, delayBefore, elapsed uint64 }{
		{0, 1000, 50},
		{500, 1000, 50},
		{2000, 100, 50},
		{0, 0, 10},
		{100, 100, 0},
	}
	for _, c := range cases {
		overheadAfter, delayAfter := discountOverhead(c.overheadBefore, c.delayBefore, c.elapsed)

		consumed := c.delayBefore - delayAfter
		if c.overheadBefore+c.elapsed != overheadAfter+consumed {
			t.Errorf("discountOverhead(%d,%d,%d): overheadBefore+elapsed=%d != overheadAfter(%d)+consumed(%d)",
				c.overheadBefore, c.delayBefore, c.elapsed,
				c.overheadBefore+c.elapsed, overheadAfter, consumed)
		}
		if overheadAfter > 0 && delayAfter > 0 {
			t.Errorf("discountOverhead(%d,%d,%d): both overheadAfter and delayAfter nonzero (%d,%d)",
				c.overheadBefore, c.delayBefore, c.elapsed, overheadAfter, delayAfter)
		}
	}
}
