// Package debounce delays an action until its input stops changing.
package debounce

import (
	"sync"
	"time"
)

const (
	// KeystrokeDelay gates searches triggered by live typing.
	KeystrokeDelay = 500 * time.Millisecond
	// NavigationDelay gates fetches triggered by route or page changes.
	NavigationDelay = 300 * time.Millisecond
)

// Debouncer emits a value only after delay has elapsed with no newer Push.
// Each Push restarts the delay and discards the pending emission.
type Debouncer[T any] struct {
	delay time.Duration
	fire  func(T)

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	pending    bool
	value      T
	stopped    bool
}

func New[T any](delay time.Duration, fire func(T)) *Debouncer[T] {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer[T]{delay: delay, fire: fire}
}

func (d *Debouncer[T]) Push(value T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.generation++
	generation := d.generation
	d.value = value
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.emit(generation)
	})
}

func (d *Debouncer[T]) emit(generation uint64) {
	d.mu.Lock()
	if d.stopped || !d.pending || generation != d.generation {
		d.mu.Unlock()
		return
	}
	value := d.value
	d.pending = false
	d.mu.Unlock()

	d.fire(value)
}

// Flush emits the pending value immediately, if there is one.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	generation := d.generation
	d.mu.Unlock()
	d.emit(generation)
}

// Cancel discards the pending emission without stopping the debouncer.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
}

// Pending reports whether an emission is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop discards the pending emission; later pushes are ignored.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
}
