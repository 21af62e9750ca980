// Package debounce coalesces bursts of input into a single committed value.
package debounce

import (
	"sync"
	"time"
)

// Debouncer commits the last value pushed once no new value has arrived
// for the configured delay. Safe for concurrent use.
type Debouncer[T any] struct {
	mu      sync.Mutex
	delay   time.Duration
	commit  func(T)
	timer   *time.Timer
	pending T
	armed   bool
	stopped bool
	// seq identifies the current timer so a superseded one does not commit.
	seq uint64
}

// New creates a Debouncer that calls commit with the settled value.
// commit runs on a timer goroutine; it must not call back into the Debouncer
// synchronously with Stop.
func New[T any](delay time.Duration, commit func(T)) *Debouncer[T] {
	return &Debouncer[T]{
		delay:  delay,
		commit: commit,
	}
}

// Push records v as the latest value and restarts the quiet window.
// Pushing after Stop is a no-op.
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.pending = v
	d.armed = true
	d.seq++
	seq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
}

// fire commits the pending value if no newer Push superseded this timer.
func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	if d.stopped || !d.armed || seq != d.seq {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.armed = false
	d.timer = nil
	d.mu.Unlock()

	d.commit(v)
}

// Flush commits the pending value immediately, if there is one.
// It returns false when nothing was pending.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if d.stopped || !d.armed {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	v := d.pending
	d.armed = false
	d.seq++
	d.mu.Unlock()

	d.commit(v)
	return true
}

// Stop drops any pending value and disables the Debouncer.
// Safe to call multiple times.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.armed = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
