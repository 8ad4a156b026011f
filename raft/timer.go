package raft

import (
	"sync"
	"time"
)

// timerRegistry is a named-timer facility: at most one timer per name is
// ever pending. Callers schedule with set, inspect with active, reset an
// already-scheduled timer's duration with adjust, and release everything
// with clear/end.
//
// The registry itself does not serialize callback execution against the
// node's state mutation; that guarantee (§5 of the spec) is provided by
// the node, which takes its own mutex at the top of every timer callback
// before touching any shared state.
type timerRegistry struct {
	mu     sync.Mutex
	clock  Clock
	timers map[string]Timer
}

func newTimerRegistry(clock Clock) *timerRegistry {
	if clock == nil {
		clock = SystemClock
	}
	return &timerRegistry{
		clock:  clock,
		timers: make(map[string]Timer),
	}
}

// set schedules callback to fire once after duration. It returns
// ErrTimerExists if a timer of this name is already pending; callers
// should check active and use adjust instead.
func (r *timerRegistry) set(name string, d time.Duration, callback func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.timers[name]; ok {
		return ErrTimerExists
	}
	r.timers[name] = r.clock.AfterFunc(d, callback)
	return nil
}

// active reports whether a timer of this name is currently pending.
func (r *timerRegistry) active(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[name]
	return ok
}

// adjust resets an already-scheduled timer to a new duration without
// invoking its callback. It returns ErrTimerNotFound if no such timer is
// pending.
func (r *timerRegistry) adjust(name string, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[name]
	if !ok {
		return ErrTimerNotFound
	}
	t.Reset(d)
	return nil
}

// clear cancels and forgets every timer owned by this registry. A timer
// whose callback is already executing cannot be preempted, but it will
// not be tracked any further, so any of its own follow-on scheduling
// starts from a clean map.
func (r *timerRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
}

// end is clear plus release; the registry is left usable but empty.
func (r *timerRegistry) end() {
	r.clear()
}
