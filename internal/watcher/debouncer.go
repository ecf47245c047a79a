package watcher

import (
	"sort"
	"sync"
	"time"
)

// PendingChange is a path with unsettled activity.
type PendingChange struct {
	Path      string
	FirstSeen time.Time
	LastSeen  time.Time

	// Count is the number of raw events folded into this change.
	Count int
}

// Debouncer coalesces rapid events per path. A path is flushed once no event
// for it has arrived for the whole window. Paths that become due together are
// emitted as one batch ordered by FirstSeen, oldest first, ties broken by
// path.
type Debouncer struct {
	window time.Duration
	emit   func([]PendingChange)
	now    func() time.Time

	// emitMu serializes flushes so batches reach emit in order and Stop can
	// wait for one in flight.
	emitMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]*PendingChange
	timer    *time.Timer
	deadline time.Time // when timer fires; zero when disarmed
	stopped  bool
}

// DebouncerOption configures a Debouncer.
type DebouncerOption func(*Debouncer)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) DebouncerOption {
	return func(d *Debouncer) { d.now = now }
}

// NewDebouncer creates a debouncer that calls emit with each settled batch.
// emit runs on a timer goroutine and must not call Stop.
func NewDebouncer(window time.Duration, emit func([]PendingChange), opts ...DebouncerOption) *Debouncer {
	d := &Debouncer{
		window:  window,
		emit:    emit,
		now:     time.Now,
		pending: make(map[string]*PendingChange),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Observe records an event for path at ts.
func (d *Debouncer) Observe(path string, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	pc, ok := d.pending[path]
	if !ok {
		pc = &PendingChange{Path: path, FirstSeen: ts, LastSeen: ts}
		d.pending[path] = pc
	} else {
		if ts.Before(pc.FirstSeen) {
			pc.FirstSeen = ts
		}
		if ts.After(pc.LastSeen) {
			pc.LastSeen = ts
		}
	}
	pc.Count++

	// A later event only moves this path's deadline out, so the armed timer
	// stays valid unless this deadline is earlier.
	due := pc.LastSeen.Add(d.window)
	if d.deadline.IsZero() || due.Before(d.deadline) {
		d.armLocked(due)
	}
}

// Pending returns the number of unsettled paths.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop discards pending changes and returns how many were dropped. No emit
// call runs after Stop returns. Safe to call multiple times.
func (d *Debouncer) Stop() int {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return 0
	}

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	discarded := len(d.pending)
	d.pending = nil
	return discarded
}

// flush emits every due entry and re-arms the timer for the rest.
func (d *Debouncer) flush() {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.deadline = time.Time{}
	batch, next := d.collectDueLocked(d.now())
	if !next.IsZero() {
		d.armLocked(next)
	}
	d.mu.Unlock()

	if len(batch) > 0 {
		d.emit(batch)
	}
}

// collectDueLocked removes and returns entries quiet for the whole window,
// plus the earliest deadline among those left. Must be called with mu held.
func (d *Debouncer) collectDueLocked(now time.Time) ([]PendingChange, time.Time) {
	var (
		batch []PendingChange
		next  time.Time
	)
	for path, pc := range d.pending {
		if now.Sub(pc.LastSeen) >= d.window {
			batch = append(batch, *pc)
			delete(d.pending, path)
			continue
		}
		due := pc.LastSeen.Add(d.window)
		if next.IsZero() || due.Before(next) {
			next = due
		}
	}

	sort.Slice(batch, func(i, j int) bool {
		if !batch[i].FirstSeen.Equal(batch[j].FirstSeen) {
			return batch[i].FirstSeen.Before(batch[j].FirstSeen)
		}
		return batch[i].Path < batch[j].Path
	})
	return batch, next
}

// armLocked schedules a flush at due. Must be called with mu held.
func (d *Debouncer) armLocked(due time.Time) {
	delay := due.Sub(d.now())
	if delay < 0 {
		delay = 0
	}
	d.deadline = due
	if d.timer == nil {
		d.timer = time.AfterFunc(delay, d.flush)
		return
	}
	d.timer.Reset(delay)
}
