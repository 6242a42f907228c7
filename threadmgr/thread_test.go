package threadmgr

import (
	"testing"
	"time"

	"github.com/sarchlab/memlat/cpuarch"
	"github.com/sarchlab/memlat/epoch"
	"github.com/sarchlab/memlat/latencymodel"
	"github.com/sarchlab/memlat/pmc"
)

type noopBank struct{}

func (noopBank) Program([pmc.NumSlots]string) error         { return nil }
func (noopBank) Enable() error                               { return nil }
func (noopBank) Disable() error                               { return nil }
func (noopBank) ReadAll() ([pmc.NumSlots]uint64, error)       { return [pmc.NumSlots]uint64{}, nil }
func (noopBank) ReadDelta() ([pmc.NumSlots]uint64, error)     { return [pmc.NumSlots]uint64{}, nil }
func (noopBank) Close() error                                 { return nil }

func testEngine() *epoch.Engine {
	return &epoch.Engine{
		Model: &latencymodel.Model{
			ReadLatencyNs:      300,
			MinEpochDurationUs: 100,
			Estimator:          cpuarch.Estimator{L3Factor: 1.0},
		},
		Bank: noopBank{},
	}
}

func TestTriggerDiscardedWhileMasked(t *testing.T) {
	ts := &epoch.State{ThreadID: 1, LastEpochTimestampUs: 0}
	th := Enroll(ts, testEngine(), 100)
	th.Engine.Gate = th
	th.Engine.MinDuration = th

	th.masked.Store(true)
	before := ts.Signaled
	th.Trigger()
	if ts.Signaled != before {
		t.Error("Trigger should be a no-op while masked")
	}
}

func TestTriggerClosesEpochWhenUnmasked(t *testing.T) {
	NowMicros = func() uint64 { return 1_000_000 }
	defer func() { NowMicros = defaultNowMicros }()

	ts := &epoch.State{ThreadID: 1, LastEpochTimestampUs: 0}
	th := Enroll(ts, testEngine(), 100)
	th.Engine.Gate = th
	th.Engine.MinDuration = th

	th.Trigger()

	if ts.Signaled {
		t.Error("Signaled should be cleared after CloseEpoch completes")
	}
	if th.masked.Load() {
		t.Error("thread should not be left masked after Trigger")
	}
}

func TestRunTickerStopsCleanly(t *testing.T) {
	ts := &epoch.State{ThreadID: 2}
	th := Enroll(ts, testEngine(), 100)
	th.Engine.Gate = th
	th.Engine.MinDuration = th

	th.RunTicker(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	th.Stop()
	// Calling Stop twice must not panic (double-close guard).
	th.Stop()
}

func TestManagerAddRemoveStopAll(t *testing.T) {
	m := NewManager()
	ts1 := &epoch.State{ThreadID: 1}
	ts2 := &epoch.State{ThreadID: 2}
	m.Add(Enroll(ts1, testEngine(), 100))
	m.Add(Enroll(ts2, testEngine(), 100))

	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	m.Remove(1)
	if m.Len() != 1 {
		t.Fatalf("Len() after Remove = %d, want 1", m.Len())
	}
	m.StopAll()
	if m.Len() != 0 {
		t.Fatalf("Len() after StopAll = %d, want 0", m.Len())
	}
}
