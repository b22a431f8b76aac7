// Package debounce coalesces bursts of updates into one call after a quiet period.
package debounce

import (
	"sync"
	"time"
)

const DefaultDelay = 100 * time.Millisecond

// Debouncer runs only the most recent function passed to Trigger, once no
// newer Trigger arrived for the delay.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func New(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay}
}

// SetDelay affects timers started after the call.
func (d *Debouncer) SetDelay(delay time.Duration) {
	if delay <= 0 {
		delay = DefaultDelay
	}
	d.mu.Lock()
	d.delay = delay
	d.mu.Unlock()
}

// Trigger replaces any pending call with fn. It is a no-op after Stop.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A timer that fired while being replaced must not run stale work.
		if d.stopped || gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels pending work and disables further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
