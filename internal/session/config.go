package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/treewatch/internal/telemetry"
	"github.com/Aman-CERP/treewatch/internal/watcher"
)

// DefaultRescanInterval is the minimum spacing between overflow rescans.
const DefaultRescanInterval = 2 * time.Second

// errorBufferSize is the capacity of Handle.Errors.
const errorBufferSize = 64

// ReactFunc is called once per settled, accepted change with the absolute
// path. Calls never overlap within a session. ctx is cancelled when the
// session ends.
type ReactFunc func(ctx context.Context, path string) error

// Config configures a Session.
type Config struct {
	// Roots are the directories to watch recursively. Relative paths are
	// resolved against the working directory.
	Roots []string

	// Ignore holds glob patterns; matching paths never reach the ReactFunc.
	Ignore []string

	// IgnoreFiles are read with matcher.LoadFile and appended to Ignore.
	IgnoreFiles []string

	// CaseInsensitive folds case when matching ignore patterns.
	CaseInsensitive bool

	// Options tunes the watcher and debouncer. Zero fields take defaults.
	Options watcher.Options

	// RescanInterval paces rescans triggered by overflows.
	// Default: DefaultRescanInterval
	RescanInterval time.Duration

	// Logger receives diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// Stats collects counters. Default: a fresh telemetry.Stats.
	Stats *telemetry.Stats
}
