package eclock

import (
	"sync/atomic"
	"time"
)

// timerState values for timerHandle.state, a compare-and-swap guarded
// state machine modelling spec.md §9's "did the scheduler acknowledge
// my cancel before the slot was consumed" race: Cancel and the timer
// firing both try to CAS the state from pending to their own outcome,
// and only one wins.
const (
	timerPending int32 = iota
	timerCancelled
	timerFired
)

// timerHandle is the delayed-release timer attached to a Lock
// (spec.md §3 "timer: Option<TimerHandle>"). It is a message sent to a
// scheduler, not a bare callback reaching back into lock internals
// (spec.md §9 design note): firing only ever calls the fire func
// supplied at scheduling time, and Cancel only ever flips the shared
// atomic state.
type timerHandle struct {
	state   int32
	fire    func()
	stopped func() bool
}

// scheduleUnlockTimer schedules fn to run after d, guarded so that at
// most one of {Cancel, fn} ever proceeds.
func scheduleUnlockTimer(d time.Duration, fn func()) *timerHandle {
	h := &timerHandle{}
	t := time.AfterFunc(d, func() {
		if atomic.CompareAndSwapInt32(&h.state, timerPending, timerFired) {
			fn()
		}
	})
	h.stopped = t.Stop
	return h
}

// Cancel attempts to stop the timer before it fires. It returns true
// if the caller won the race (the fire callback will never run), false
// if the timer had already fired or is in the process of firing — in
// that case the caller leaves a marker by clearing Lock.timer under the
// lock's mutex; the fire callback installed by unlockTimerAdd checks
// Lock.timer under the same mutex and returns without releasing when it
// no longer points at this handle, matching spec.md §4.2 step 3's
// "leave a marker so the timer callback is a no-op".
func (h *timerHandle) Cancel() bool {
	if atomic.CompareAndSwapInt32(&h.state, timerPending, timerCancelled) {
		h.stopped()
		return true
	}
	return false
}
