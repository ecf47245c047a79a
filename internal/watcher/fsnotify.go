package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
)

// openFsnotify creates an fsnotify watcher and adds every root and every
// directory in snap. A root that cannot be added fails the whole backend
// (nil watcher) so Start falls back to polling. Running out of watches on a
// subdirectory returns a usable watcher together with an overflow error.
func (h *HybridWatcher) openFsnotify(snap snapshot) (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	for _, root := range h.roots {
		if err := fsw.Add(root); err != nil {
			_ = fsw.Close()
			clear(h.watched)
			return nil, fmt.Errorf("watch root %s: %w", root, err)
		}
		h.watched[root] = struct{}{}
	}

	for path, fs := range snap {
		if !fs.isDir {
			continue
		}
		if _, ok := h.watched[path]; ok {
			continue
		}
		if err := fsw.Add(path); err != nil {
			if isResourceExhausted(err) {
				return fsw, twerrors.Overflow(err).WithDetail("path", path)
			}
			h.logger.Debug("skipping unwatchable directory",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		h.watched[path] = struct{}{}
	}

	return fsw, nil
}

// runFsnotify is the fsnotify event loop.
func (h *HybridWatcher) runFsnotify(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-h.fsw.Events:
			if !ok {
				h.fail(twerrors.WatcherFailed("fsnotify event stream closed", nil))
				return
			}
			h.handleFsnotifyEvent(event)
		case err, ok := <-h.fsw.Errors:
			if !ok {
				h.fail(twerrors.WatcherFailed("fsnotify error stream closed", nil))
				return
			}
			h.handleFsnotifyError(err)
		}
	}
}

// handleFsnotifyEvent converts an fsnotify event into RawEvents.
func (h *HybridWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	root, ok := h.rootFor(path)
	if !ok {
		return
	}
	now := time.Now()

	switch {
	case event.Has(fsnotify.Create):
		isDir := false
		if info, err := h.fs.Stat(path); err == nil {
			isDir = info.IsDir()
		}
		h.emit(RawEvent{Path: path, Root: root, Op: OpCreate, IsDir: isDir, Timestamp: now})
		if isDir && !h.skip(root, path) {
			h.watchNewDir(root, path, now)
		}

	case event.Has(fsnotify.Write):
		h.emit(RawEvent{Path: path, Root: root, Op: OpModify, Timestamp: now})

	case event.Has(fsnotify.Remove):
		if h.isRoot(path) {
			h.fail(twerrors.RootRemoved(path))
			return
		}
		isDir := h.unwatch(path)
		h.emit(RawEvent{Path: path, Root: root, Op: OpDelete, IsDir: isDir, Timestamp: now})

	case event.Has(fsnotify.Rename):
		if h.isRoot(path) {
			h.fail(twerrors.RootRemoved(path))
			return
		}
		isDir := h.unwatch(path)
		h.emit(RawEvent{Path: path, Root: root, Op: OpRename, IsDir: isDir, Timestamp: now})

	default:
		// Chmod only.
	}
}

// handleFsnotifyError reports queue overflow; anything else is logged.
func (h *HybridWatcher) handleFsnotifyError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		h.fail(twerrors.Overflow(err))
		return
	}
	h.logger.Warn("fsnotify error", slog.String("error", err.Error()))
}

// watchNewDir watches a directory that appeared after Start and reports
// everything already inside it as created.
func (h *HybridWatcher) watchNewDir(root, dir string, now time.Time) {
	_ = afero.Walk(h.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if h.skip(root, path) {
				return filepath.SkipDir
			}
			if err := h.addWatch(path); err != nil {
				h.fail(err)
				return filepath.SkipAll
			}
		}
		if path != dir {
			h.emit(RawEvent{Path: path, Root: root, Op: OpCreate, IsDir: info.IsDir(), Timestamp: now})
		}
		return nil
	})
}

// addWatch adds an fsnotify watch for dir unless one exists. Only resource
// exhaustion is returned, as an overflow error.
func (h *HybridWatcher) addWatch(dir string) error {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if _, ok := h.watched[dir]; ok {
		return nil
	}
	if err := h.fsw.Add(dir); err != nil {
		if isResourceExhausted(err) {
			return twerrors.Overflow(err).WithDetail("path", dir)
		}
		h.logger.Debug("skipping unwatchable directory",
			slog.String("path", dir),
			slog.String("error", err.Error()))
		return nil
	}
	h.watched[dir] = struct{}{}
	return nil
}

// unwatch forgets path and everything below it, and reports whether path
// was a watched directory.
func (h *HybridWatcher) unwatch(path string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	_, wasDir := h.watched[path]
	if !wasDir {
		return false
	}

	prefix := path + string(filepath.Separator)
	for dir := range h.watched {
		if dir == path || strings.HasPrefix(dir, prefix) {
			// The kernel drops watches on deleted directories itself.
			_ = h.fsw.Remove(dir)
			delete(h.watched, dir)
		}
	}
	return true
}

func (h *HybridWatcher) isRoot(path string) bool {
	for _, root := range h.roots {
		if path == root {
			return true
		}
	}
	return false
}

// isResourceExhausted reports errors that mean the OS ran out of watches or
// descriptors.
func isResourceExhausted(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}
