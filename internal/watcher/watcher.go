package watcher

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed away from Path.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// RawEvent is a single change reported by a backend, before debouncing.
type RawEvent struct {
	// Path is the absolute path of the changed file or directory.
	Path string

	// Root is the watch root Path belongs to (the longest containing root).
	Root string

	// Op is the type of file system operation.
	Op Operation

	// IsDir indicates if the event is for a directory.
	IsDir bool

	// Timestamp is when the change happened or was detected.
	Timestamp time.Time
}

// Sink receives the output of a running watcher.
//
// Calls are made while the watcher holds its read lock, so implementations
// must return quickly and must not call Stop.
type Sink interface {
	// Observe receives one raw change.
	Observe(ev RawEvent)

	// Fail receives a runtime error. Fatal errors (see errors.IsFatal) end
	// the watch; nothing is delivered after one.
	Fail(err error)
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the quiet period before a path is considered settled.
	// Default: 300ms
	DebounceWindow time.Duration

	// Lookback drops events older than session start minus this duration.
	// Default: 10s
	Lookback time.Duration

	// PollInterval is the interval for polling mode (fallback).
	// Default: 1s
	PollInterval time.Duration

	// ForcePolling skips fsnotify entirely.
	ForcePolling bool

	// ReplayRecent reports files modified inside the lookback window at start.
	ReplayRecent bool

	// SkipDir reports whether a directory, relative to its root, is excluded
	// from watching together with its subtree. Nil watches everything.
	SkipDir func(rel string) bool

	// Fs is the filesystem used for scans. Default: the OS filesystem.
	Fs afero.Fs

	// Logger receives diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 300 * time.Millisecond,
		Lookback:       10 * time.Second,
		PollInterval:   time.Second,
	}
}

// Validate validates the options and returns an error if invalid.
func (o Options) Validate() error {
	if o.DebounceWindow < 0 {
		return twerrors.ValidationError(fmt.Sprintf("debounce window must not be negative, got %s", o.DebounceWindow), nil)
	}
	if o.Lookback < 0 {
		return twerrors.ValidationError(fmt.Sprintf("lookback must not be negative, got %s", o.Lookback), nil)
	}
	if o.PollInterval < 0 {
		return twerrors.ValidationError(fmt.Sprintf("poll interval must not be negative, got %s", o.PollInterval), nil)
	}
	return nil
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.Lookback == 0 {
		o.Lookback = defaults.Lookback
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.SkipDir == nil {
		o.SkipDir = func(string) bool { return false }
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
