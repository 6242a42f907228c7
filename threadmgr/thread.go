// Package threadmgr is the thread scheduler around the epoch engine:
// it enrolls per-thread epoch state, drives the periodic and on-demand
// (synchronization point) epoch triggers, and implements the
// epoch.SignalGate / epoch.MinDurationChecker interfaces the engine
// depends on.
//
// Go has no primitive that can safely re-enter arbitrary user code
// from a true asynchronous signal, the way a POSIX timer handler
// would, so each enrolled thread instead gets a dedicated,
// OS-thread-pinned goroutine running a cooperative ticker/select loop
// that calls CloseEpoch synchronously.
package threadmgr

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sarchlab/memlat/epoch"
)

var clockStart = time.Now()

func defaultNowMicros() uint64 {
	return uint64(time.Since(clockStart).Microseconds())
}

// NowMicros is overridable in tests; defaults to a monotonic clock
// read (microseconds elapsed since package initialization).
var NowMicros = defaultNowMicros

// Thread binds one epoch.State to a running trigger loop. It
// implements epoch.SignalGate (Block/Unblock) and
// epoch.MinDurationChecker (ReachedMinEpochDuration), so a *Thread is
// normally handed straight to an epoch.Engine as both.
type Thread struct {
	State *epoch.State
	Engine *epoch.Engine

	minEpochDurationUs uint64
	masked             atomic.Bool
	stopCh             chan struct{}
	stopped            atomic.Bool
}

// Enroll binds per-thread state to engine and returns the handle the
// trigger paths and the engine's gate both go through.
func Enroll(ts *epoch.State, engine *epoch.Engine, minEpochDurationUs uint64) *Thread {
	return &Thread{
		State:              ts,
		Engine:             engine,
		minEpochDurationUs: minEpochDurationUs,
		stopCh:             make(chan struct{}),
	}
}

// Block implements epoch.SignalGate: called by Engine.CloseEpoch at
// entry. While masked, further trigger attempts are discarded.
func (t *Thread) Block() { t.masked.Store(true) }

// Unblock implements epoch.SignalGate: called by Engine.CloseEpoch at
// exit, always after State.Signaled has been cleared; unmasking first
// would let a second trigger race the tail of the routine.
func (t *Thread) Unblock() { t.masked.Store(false) }

// ReachedMinEpochDuration implements epoch.MinDurationChecker.
func (t *Thread) ReachedMinEpochDuration(ts *epoch.State) bool {
	return NowMicros()-ts.LastEpochTimestampUs >= t.minEpochDurationUs
}

// Trigger attempts to close an epoch now. If the thread is currently
// inside an epoch (masked), the attempt is silently discarded — this
// is both the periodic timer path and the on-demand sync-point path's
// single entry point.
func (t *Thread) Trigger() {
	if t.masked.Load() {
		return
	}
	t.State.Signaled = true
	t.Engine.CloseEpoch(t.State)
}

// RunTicker starts a goroutine that calls Trigger every interval,
// pinned to an OS thread so its TSC reads stay comparable across
// epochs. Stop ends the loop.
func (t *Thread) RunTicker(interval time.Duration) {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.Trigger()
			case <-t.stopCh:
				return
			}
		}
	}()
}

// Stop ends the thread's ticker loop and marks it exited; callers are
// still responsible for releasing the thread's PMC bank
// (pmc.Bank.Close).
func (t *Thread) Stop() {
	if t.stopped.CompareAndSwap(false, true) {
		close(t.stopCh)
	}
}
