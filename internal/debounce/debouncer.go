// Package debounce runs a function once a burst of triggers has gone quiet.
package debounce

import (
	"sync"
	"time"

	"github.com/raulk/clock"
)

// Debouncer owns a single cancellable timer. Each Trigger cancels the
// pending timer and schedules a new one, so only the last trigger in a
// burst fires fn.
type Debouncer struct {
	clock    clock.Clock
	interval time.Duration
	fn       func()

	mu    sync.Mutex
	timer *clock.Timer
	gen   uint64
}

// New creates a debouncer that calls fn after interval without triggers.
func New(c clock.Clock, interval time.Duration, fn func()) *Debouncer {
	if c == nil {
		c = clock.New()
	}
	return &Debouncer{
		clock:    c,
		interval: interval,
		fn:       fn,
	}
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.interval, func() {
		d.fire(gen)
	})
}

// Cancel drops the pending call. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	return true
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// A timer stopped too late to prevent its callback still lands here.
	if gen != d.gen || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}
