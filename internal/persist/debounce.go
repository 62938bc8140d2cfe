// Package persist provides debounced persistence for write-heavy state.
// Consumers call MarkDirty after mutating their state; the actual save runs
// once the quiet window elapses, or at the max-wait bound under sustained
// writes. Flush forces an immediate save and is called on shutdown.
package persist

import (
	"sync"
	"time"
)

// SaveFunc performs the actual write. Errors are the consumer's to log; the
// debouncer never retries within a tick.
type SaveFunc func() error

// Debouncer coalesces rapid MarkDirty calls into periodic saves.
type Debouncer struct {
	mu         sync.Mutex
	save       SaveFunc
	delay      time.Duration
	maxDelay   time.Duration
	timer      *time.Timer
	dirtySince time.Time
	onError    func(error)
}

// New creates a debouncer. delay is the quiet window, maxDelay the upper
// bound a dirty state may wait under continuous writes.
func New(save SaveFunc, delay, maxDelay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = 5 * time.Second
	}
	if maxDelay < delay {
		maxDelay = 6 * delay
	}
	return &Debouncer{
		save:     save,
		delay:    delay,
		maxDelay: maxDelay,
	}
}

// OnError installs an error callback invoked when a scheduled save fails.
func (d *Debouncer) OnError(fn func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onError = fn
}

// MarkDirty schedules a save. Rapid successive calls reset the quiet window
// but never push the save past maxDelay from the first dirty mark.
func (d *Debouncer) MarkDirty() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if d.dirtySince.IsZero() {
		d.dirtySince = now
	}

	wait := d.delay
	if deadline := d.dirtySince.Add(d.maxDelay); now.Add(wait).After(deadline) {
		wait = deadline.Sub(now)
		if wait < 0 {
			wait = 0
		}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(wait, d.fire)
}

// fire runs the save and clears dirty tracking.
func (d *Debouncer) fire() {
	d.mu.Lock()
	d.dirtySince = time.Time{}
	d.timer = nil
	save := d.save
	onError := d.onError
	d.mu.Unlock()

	if save == nil {
		return
	}
	if err := save(); err != nil && onError != nil {
		onError(err)
	}
}

// Flush cancels any pending timer and saves immediately.
func (d *Debouncer) Flush() error {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	wasDirty := !d.dirtySince.IsZero()
	d.dirtySince = time.Time{}
	save := d.save
	d.mu.Unlock()

	if save == nil || !wasDirty {
		return nil
	}
	return save()
}

// Stop cancels any pending save without writing.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.dirtySince = time.Time{}
}
