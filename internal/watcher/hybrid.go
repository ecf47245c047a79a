package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("watcher already started")

// ErrStopped is returned when Start is called after Stop.
var ErrStopped = errors.New("watcher stopped")

// HybridWatcher watches a fixed set of roots recursively, using fsnotify as
// the primary mechanism with polling as a fallback.
type HybridWatcher struct {
	opts   Options
	fs     afero.Fs
	logger *slog.Logger

	// Set by Start, read-only afterwards.
	roots   []string // longest first
	created time.Time
	sink    Sink

	// mu guards the lifecycle. Sink calls hold it for reading so Stop, which
	// takes it for writing, waits for them.
	mu          sync.RWMutex
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	fsw         *fsnotify.Watcher
	useFsnotify bool

	terminal atomic.Bool
	stale    atomic.Uint64
	wg       sync.WaitGroup

	// scanMu serializes polls and rescans.
	scanMu sync.Mutex

	// stateMu guards snap and watched.
	stateMu sync.Mutex
	snap    snapshot
	watched map[string]struct{}
}

// NewHybridWatcher creates a new hybrid watcher with the given options.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	return &HybridWatcher{
		opts:    opts,
		fs:      opts.Fs,
		logger:  opts.Logger,
		watched: make(map[string]struct{}),
	}, nil
}

// ValidateRoots resolves roots to absolute, cleaned, de-duplicated
// directories on the OS filesystem. It fails with the first root that does
// not exist, cannot be read or is not a directory.
func ValidateRoots(roots []string) ([]string, error) {
	return validateRoots(afero.NewOsFs(), roots)
}

// ValidateRootsFs is ValidateRoots over fsys.
func ValidateRootsFs(fsys afero.Fs, roots []string) ([]string, error) {
	return validateRoots(fsys, roots)
}

func validateRoots(fsys afero.Fs, roots []string) ([]string, error) {
	if len(roots) == 0 {
		return nil, twerrors.New(twerrors.ErrCodeNoRoots, "no watch roots given", nil)
	}

	seen := make(map[string]struct{}, len(roots))
	out := make([]string, 0, len(roots))

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, twerrors.RootNotFound(root, err)
		}
		abs = filepath.Clean(abs)
		if _, dup := seen[abs]; dup {
			continue
		}

		info, err := fsys.Stat(abs)
		switch {
		case errors.Is(err, os.ErrPermission):
			return nil, twerrors.PermissionDenied(abs, err)
		case err != nil:
			return nil, twerrors.RootNotFound(abs, err)
		case !info.IsDir():
			return nil, twerrors.RootNotDirectory(abs)
		}

		if err := checkReadable(fsys, abs); err != nil {
			return nil, twerrors.PermissionDenied(abs, err)
		}

		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out, nil
}

// checkReadable lists one entry of dir to prove read access.
func checkReadable(fsys afero.Fs, dir string) error {
	f, err := fsys.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Start validates roots and begins watching them, reporting to sink. It
// returns once every watch is in place; events are delivered from
// background goroutines until Stop is called, ctx is cancelled or a fatal
// error is reported.
func (h *HybridWatcher) Start(ctx context.Context, roots []string, sink Sink) error {
	if sink == nil {
		return twerrors.ValidationError("watcher sink must not be nil", nil)
	}

	validated, err := validateRoots(h.fs, roots)
	if err != nil {
		return err
	}
	// Longest first so rootFor finds the innermost root.
	sort.Slice(validated, func(i, j int) bool { return len(validated[i]) > len(validated[j]) })

	h.mu.Lock()
	switch {
	case h.stopped:
		h.mu.Unlock()
		return ErrStopped
	case h.started:
		h.mu.Unlock()
		return ErrAlreadyStarted
	}
	h.started = true
	h.roots = validated
	h.sink = sink
	h.created = time.Now()
	h.mu.Unlock()

	snap, err := snapshotRoots(ctx, h.fs, h.roots, h.opts.SkipDir)
	if err != nil {
		return twerrors.WatcherFailed("initial scan failed", err)
	}
	h.stateMu.Lock()
	h.snap = snap
	h.stateMu.Unlock()

	var fsw *fsnotify.Watcher
	var overflow error
	if !h.opts.ForcePolling {
		fsw, err = h.openFsnotify(snap)
		switch {
		case fsw == nil:
			h.logger.Warn("fsnotify unavailable, falling back to polling",
				slog.String("error", err.Error()),
				slog.Duration("interval", h.opts.PollInterval))
		case err != nil:
			overflow = err
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		cancel()
		if fsw != nil {
			_ = fsw.Close()
		}
		return ErrStopped
	}
	h.cancel = cancel
	h.fsw = fsw
	h.useFsnotify = fsw != nil
	h.wg.Add(1)
	if h.useFsnotify {
		go h.runFsnotify(runCtx)
	} else {
		go h.runPolling(runCtx)
	}
	h.mu.Unlock()

	h.logger.Debug("watcher started",
		slog.String("backend", h.Backend()),
		slog.Any("roots", h.roots),
		slog.Int("entries", len(snap)))

	if overflow != nil {
		h.fail(overflow)
	}
	if h.opts.ReplayRecent {
		for _, ev := range recent(snap, h.created.Add(-h.opts.Lookback)) {
			h.emit(ev)
		}
	}

	context.AfterFunc(ctx, func() { _ = h.Stop() })
	return nil
}

// Rescan walks the roots again, re-adds missing directory watches and
// reports every difference from the last scan. Used to recover from
// overflow; paths already delivered may be reported again.
func (h *HybridWatcher) Rescan(ctx context.Context) error {
	h.mu.RLock()
	running := h.started && !h.stopped
	h.mu.RUnlock()
	if !running {
		return ErrStopped
	}

	return h.scan(ctx)
}

// scan snapshots the roots and emits the diff against the previous
// snapshot. A root that has vanished is reported as a fatal error.
func (h *HybridWatcher) scan(ctx context.Context) error {
	h.scanMu.Lock()
	defer h.scanMu.Unlock()

	for _, root := range h.roots {
		if _, err := h.fs.Stat(root); errors.Is(err, os.ErrNotExist) {
			h.fail(twerrors.RootRemoved(root))
			return nil
		}
	}

	cur, err := snapshotRoots(ctx, h.fs, h.roots, h.opts.SkipDir)
	if err != nil {
		return fmt.Errorf("scan roots: %w", err)
	}

	h.stateMu.Lock()
	prev := h.snap
	h.snap = cur
	h.stateMu.Unlock()

	if h.usingFsnotify() {
		for path, fs := range cur {
			if !fs.isDir {
				continue
			}
			if err := h.addWatch(path); err != nil {
				h.fail(err)
				break
			}
		}
	}

	for _, ev := range diff(prev, cur, time.Now()) {
		h.emit(ev)
	}
	return nil
}

// emit forwards ev to the sink unless the watcher has stopped, failed or ev
// predates the lookback window.
func (h *HybridWatcher) emit(ev RawEvent) {
	if ev.Root == "" {
		root, ok := h.rootFor(ev.Path)
		if !ok {
			return
		}
		ev.Root = root
	}
	if ev.Timestamp.Before(h.created.Add(-h.opts.Lookback)) {
		h.stale.Add(1)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.stopped || h.terminal.Load() {
		return
	}
	h.sink.Observe(ev)
}

// fail forwards err to the sink. After a fatal error nothing else is
// forwarded.
func (h *HybridWatcher) fail(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.stopped || h.terminal.Load() {
		return
	}
	if twerrors.IsFatal(err) {
		h.terminal.Store(true)
	}
	h.sink.Fail(err)
}

// rootFor returns the innermost root containing path.
func (h *HybridWatcher) rootFor(path string) (string, bool) {
	for _, root := range h.roots {
		if within(root, path) {
			return root, true
		}
	}
	return "", false
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// skip reports whether the directory at path is excluded from watching.
func (h *HybridWatcher) skip(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	return h.opts.SkipDir(rel)
}

// Stop stops the watcher and releases resources. Once it returns the sink
// receives nothing more. Safe to call multiple times.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	cancel := h.cancel
	fsw := h.fsw
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if fsw != nil {
		err = fsw.Close()
	}
	h.wg.Wait()
	return err
}

// Backend returns the mechanism in use ("fsnotify" or "polling").
func (h *HybridWatcher) Backend() string {
	if h.usingFsnotify() {
		return "fsnotify"
	}
	return "polling"
}

func (h *HybridWatcher) usingFsnotify() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.useFsnotify
}

// Roots returns the validated roots being watched.
func (h *HybridWatcher) Roots() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.roots))
	copy(out, h.roots)
	return out
}

// StaleDropped returns the number of events dropped for predating the
// lookback window.
func (h *HybridWatcher) StaleDropped() uint64 {
	return h.stale.Load()
}

// IsHealthy returns true if the watcher is running and has not failed.
func (h *HybridWatcher) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started && !h.stopped && !h.terminal.Load()
}
