package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Debouncer coalesces save requests into a single pending write. Scheduling
// while a write is pending replaces the pending state and pushes the
// deadline out; there is never more than one timer armed at a time.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending State
	save    func(State) error
	log     *zerolog.Logger
}

// NewDebouncer builds a debouncer that calls save once per quiet period.
func NewDebouncer(delay time.Duration, save func(State) error, logger *zerolog.Logger) *Debouncer {
	return &Debouncer{
		delay: delay,
		save:  save,
		log:   logger,
	}
}

// Schedule records state as the next write and arms (or re-arms) the timer.
func (d *Debouncer) Schedule(state State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = state
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
		return
	}
	d.timer.Reset(d.delay)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	state := d.pending
	d.pending = nil
	d.mu.Unlock()

	if state == nil {
		return
	}
	if err := d.save(state); err != nil {
		d.log.Error().Err(err).Msg("debounced save failed")
	}
}

// Flush stops the timer and writes any pending state immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	state := d.pending
	d.pending = nil
	d.mu.Unlock()

	if state == nil {
		return
	}
	if err := d.save(state); err != nil {
		d.log.Error().Err(err).Msg("flush save failed")
	}
}
