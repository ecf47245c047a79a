// Package telemetry counts what a watch session does and exposes the counts
// to Prometheus. Nothing leaves the process unless a metrics address is
// served.
package telemetry

import (
	"sync/atomic"
	"time"
)

// recentErrorsCapacity bounds the error messages kept for Snapshot.
const recentErrorsCapacity = 16

// Stats holds the counters of one watch session. Safe for concurrent use.
type Stats struct {
	rawEvents   atomic.Uint64
	settled     atomic.Uint64
	ignored     atomic.Uint64
	delivered   atomic.Uint64
	reactErrors atomic.Uint64
	overflows   atomic.Uint64
	rescans     atomic.Uint64
	discarded   atomic.Uint64

	recentErrors *CircularBuffer[string]
	since        time.Time
}

// NewStats creates zeroed counters starting now.
func NewStats() *Stats {
	return &Stats{
		recentErrors: NewCircularBuffer[string](recentErrorsCapacity),
		since:        time.Now(),
	}
}

// RecordRaw counts one raw event from the watcher.
func (s *Stats) RecordRaw() { s.rawEvents.Add(1) }

// RecordSettled counts paths flushed by the debouncer.
func (s *Stats) RecordSettled(n int) { s.settled.Add(uint64(n)) }

// RecordIgnored counts a settled path rejected by the ignore rules.
func (s *Stats) RecordIgnored() { s.ignored.Add(1) }

// RecordDelivered counts a completed reaction call.
func (s *Stats) RecordDelivered() { s.delivered.Add(1) }

// RecordReactError counts a failed reaction and keeps its message.
func (s *Stats) RecordReactError(err error) {
	s.reactErrors.Add(1)
	if err != nil {
		s.recentErrors.Add(err.Error())
	}
}

// RecordOverflow counts a watcher overflow.
func (s *Stats) RecordOverflow() { s.overflows.Add(1) }

// RecordRescan counts a completed rescan.
func (s *Stats) RecordRescan() { s.rescans.Add(1) }

// RecordDiscarded counts changes dropped by cancellation.
func (s *Stats) RecordDiscarded(n int) { s.discarded.Add(uint64(n)) }

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	RawEvents    uint64    `json:"raw_events"`
	Settled      uint64    `json:"settled"`
	Ignored      uint64    `json:"ignored"`
	Delivered    uint64    `json:"delivered"`
	ReactErrors  uint64    `json:"react_errors"`
	Overflows    uint64    `json:"overflows"`
	Rescans      uint64    `json:"rescans"`
	Discarded    uint64    `json:"discarded"`
	RecentErrors []string  `json:"recent_errors,omitempty"`
	Since        time.Time `json:"since"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		RawEvents:    s.rawEvents.Load(),
		Settled:      s.settled.Load(),
		Ignored:      s.ignored.Load(),
		Delivered:    s.delivered.Load(),
		ReactErrors:  s.reactErrors.Load(),
		Overflows:    s.overflows.Load(),
		Rescans:      s.rescans.Load(),
		Discarded:    s.discarded.Load(),
		RecentErrors: s.recentErrors.Items(),
		Since:        s.since,
	}
}

// Uptime returns how long the counters have been running.
func (s Snapshot) Uptime() time.Duration {
	return time.Since(s.Since)
}
