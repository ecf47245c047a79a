package treewatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
	"github.com/Aman-CERP/treewatch/internal/session"
	"github.com/Aman-CERP/treewatch/internal/telemetry"
	"github.com/Aman-CERP/treewatch/internal/watcher"
)

// Errors reported by Watch, OnChange and Handle.Errors. Match with
// errors.Is.
var (
	ErrInvalidPattern   = twerrors.ErrInvalidPattern
	ErrRootNotFound     = twerrors.ErrRootNotFound
	ErrPermission       = twerrors.ErrPermission
	ErrRootNotDirectory = twerrors.ErrRootNotDirectory
	ErrNoRoots          = twerrors.ErrNoRoots
	ErrWatcherOverflow  = twerrors.ErrWatcherOverflow
	ErrWatcherFailed    = twerrors.ErrWatcherFailed
	ErrReactFailed      = twerrors.ErrReactFailed
	ErrRootRemoved      = twerrors.ErrRootRemoved
)

// ReactFunc is called once per settled, accepted change.
type ReactFunc = session.ReactFunc

// Handle controls a running watch.
type Handle = session.Handle

// Stats is a snapshot of a watch's counters.
type Stats = telemetry.Snapshot

// Option configures Watch.
type Option func(*session.Config)

// WithDebounce sets the quiet period before a path counts as settled.
func WithDebounce(d time.Duration) Option {
	return func(c *session.Config) { c.Options.DebounceWindow = d }
}

// WithLookback sets how far before the start of the watch events are still
// accepted.
func WithLookback(d time.Duration) Option {
	return func(c *session.Config) { c.Options.Lookback = d }
}

// WithPolling forces the polling backend with the given interval. Zero
// keeps the default interval.
func WithPolling(interval time.Duration) Option {
	return func(c *session.Config) {
		c.Options.ForcePolling = true
		c.Options.PollInterval = interval
	}
}

// WithReplayRecent reports files modified within the lookback window when
// the watch starts.
func WithReplayRecent() Option {
	return func(c *session.Config) { c.Options.ReplayRecent = true }
}

// WithIgnoreFile adds the patterns of an ignore file.
func WithIgnoreFile(path string) Option {
	return func(c *session.Config) { c.IgnoreFiles = append(c.IgnoreFiles, path) }
}

// WithCaseInsensitive matches ignore patterns ignoring case.
func WithCaseInsensitive() Option {
	return func(c *session.Config) { c.CaseInsensitive = true }
}

// WithRescanInterval sets the minimum spacing of rescans after overflows.
func WithRescanInterval(d time.Duration) Option {
	return func(c *session.Config) { c.RescanInterval = d }
}

// WithLogger sets the logger for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *session.Config) { c.Logger = logger }
}

// WithFs watches an afero filesystem instead of the OS one. Only polling is
// available on non-OS filesystems.
func WithFs(fsys afero.Fs) Option {
	return func(c *session.Config) {
		c.Options.Fs = fsys
		if _, ok := fsys.(*afero.OsFs); !ok {
			c.Options.ForcePolling = true
		}
	}
}

// WithStats records counters into stats, e.g. to export them.
func WithStats(stats *telemetry.Stats) Option {
	return func(c *session.Config) { c.Stats = stats }
}

// Watcher is a validated, not yet started watch.
type Watcher struct {
	session *session.Session
}

// Watch validates roots and compiles ignorePatterns. It fails with the
// first invalid root (ErrRootNotFound, ErrPermission, ErrRootNotDirectory)
// or pattern (ErrInvalidPattern) without subscribing to anything.
func Watch(roots, ignorePatterns []string, opts ...Option) (*Watcher, error) {
	cfg := session.Config{
		Roots:   roots,
		Ignore:  ignorePatterns,
		Options: watcher.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s, err := session.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Watcher{session: s}, nil
}

// OnChange starts the watch, calling fn for every settled, accepted change
// until the Handle is cancelled, ctx is done or a root is removed. It can be
// called once per Watcher.
func (w *Watcher) OnChange(ctx context.Context, fn ReactFunc) (*Handle, error) {
	return w.session.Start(ctx, fn)
}

// Roots returns the validated absolute roots.
func (w *Watcher) Roots() []string {
	return w.session.Roots()
}

// Ignored reports whether an absolute path would be filtered out.
func (w *Watcher) Ignored(path string) bool {
	return w.session.Ignored(path)
}
