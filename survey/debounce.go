package survey

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules deferred callbacks. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock schedules on the runtime timers.
var RealClock Clock = realClock{}

// debouncer runs the last armed callback once the wait has passed without a
// new Arm. Every Arm or Cancel bumps a generation so that a timer which
// already fired but has not yet run its callback becomes a no-op.
type debouncer struct {
	clock Clock
	wait  time.Duration

	mu    sync.Mutex
	timer Timer
	gen   uint64
}

func newDebouncer(clock Clock, wait time.Duration) *debouncer {
	return &debouncer{clock: clock, wait: wait}
}

func (d *debouncer) Arm(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.wait, func() {
		d.mu.Lock()
		if d.gen != gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.gen++
		d.mu.Unlock()
		f()
	})
}

// Cancel drops the pending callback, if any. It reports whether one was pending.
func (d *debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked()
}

func (d *debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *debouncer) stopLocked() bool {
	d.gen++
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	return true
}
