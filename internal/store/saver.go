package store

import (
	"sync"
	"time"

	"roomcraft/internal/logging"
)

// SaveFunc produces the current scene snapshot and persists it.
type SaveFunc func() error

// DebouncedSaver coalesces bursts of scene mutations into a single save.
// Each Notify restarts the window; the save fires on the trailing edge, once
// the scene has been quiet for the full debounce duration. Save failures are
// logged and swallowed so a flaky disk never breaks a session.
type DebouncedSaver struct {
	mu      sync.Mutex
	save    SaveFunc
	window  time.Duration
	timer   *time.Timer
	closed  bool
	pending bool
}

// NewDebouncedSaver creates a saver with the given quiet window.
func NewDebouncedSaver(window time.Duration, save SaveFunc) *DebouncedSaver {
	if window <= 0 {
		window = 1500 * time.Millisecond
	}
	return &DebouncedSaver{
		save:   save,
		window: window,
	}
}

// Notify records that the scene changed and (re)starts the debounce window.
func (d *DebouncedSaver) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *DebouncedSaver) fire() {
	d.mu.Lock()
	if d.closed || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()

	if err := d.save(); err != nil {
		logging.StoreError("debounced save failed: %v", err)
	} else {
		logging.StoreDebug("debounced save completed")
	}
}

// Flush saves immediately if a notification is pending. Used on shutdown.
func (d *DebouncedSaver) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	pending := d.pending
	d.pending = false
	d.mu.Unlock()

	if !pending {
		return
	}
	if err := d.save(); err != nil {
		logging.StoreError("flush save failed: %v", err)
	}
}

// Close stops the saver after flushing any pending save.
func (d *DebouncedSaver) Close() {
	d.Flush()
	d.mu.Lock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
}
