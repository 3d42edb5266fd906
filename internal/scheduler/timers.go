// Package scheduler contains the two dispatch paths of the engine: short
// horizon in-process timers armed at creation time, and the periodic
// recovery sweep that re-reads the store and picks up anything the timers
// missed. Timers are a latency optimization; the sweep is the authority.
package scheduler

import (
	"sync"
	"time"
)

// Timers holds non-durable in-process callbacks keyed by task id. Callbacks
// must re-check store state (claim) before doing any work: the same task can
// also be reached by the sweep, and a cancelled task may still have an armed
// timer.
type Timers struct {
	horizon time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimers(horizon time.Duration) *Timers {
	return &Timers{
		horizon: horizon,
		timers:  make(map[string]*time.Timer),
	}
}

// Arm schedules fn to run once at the given instant (immediately when at is
// in the past) and reports whether a timer was set. Tasks beyond the horizon
// are not armed: in-process timers do not survive a restart, so long-range
// work belongs to the sweep alone. Re-arming an id replaces its timer.
func (t *Timers) Arm(id string, at time.Time, fn func()) bool {
	d := time.Until(at)
	if d > t.horizon {
		return false
	}
	if d < 0 {
		d = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[id]; ok {
		old.Stop()
	}
	t.timers[id] = time.AfterFunc(d, func() {
		t.forget(id)
		fn()
	})
	return true
}

// Cancel stops and removes the timer for id, if any. The task itself is
// untouched; cancellation of stored state is the caller's job.
func (t *Timers) Cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.timers[id]; ok {
		tm.Stop()
		delete(t.timers, id)
	}
}

// StopAll stops every armed timer. Used on shutdown; pending work is
// recovered by the startup sweep of the next process.
func (t *Timers) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tm := range t.timers {
		tm.Stop()
		delete(t.timers, id)
	}
}

// Len returns the number of armed timers.
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

func (t *Timers) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.timers, id)
}
