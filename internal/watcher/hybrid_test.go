package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink collects everything a watcher reports.
type recordingSink struct {
	mu     sync.Mutex
	events []RawEvent
	errs   []error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{}
}

func (s *recordingSink) Observe(ev RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordingSink) Events() []RawEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RawEvent(nil), s.events...)
}

func (s *recordingSink) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// has reports whether an event with path and op was seen.
func (s *recordingSink) has(path string, op Operation) bool {
	for _, ev := range s.Events() {
		if ev.Path == path && ev.Op == op {
			return true
		}
	}
	return false
}

// hasPath reports whether any event for path was seen.
func (s *recordingSink) hasPath(path string) bool {
	for _, ev := range s.Events() {
		if ev.Path == path {
			return true
		}
	}
	return false
}

// startWatcher starts a watcher on roots and stops it when the test ends.
func startWatcher(t *testing.T, opts Options, roots ...string) (*HybridWatcher, *recordingSink) {
	t.Helper()
	w, err := NewHybridWatcher(opts)
	require.NoError(t, err)

	sink := newRecordingSink()
	require.NoError(t, w.Start(context.Background(), roots, sink))
	t.Cleanup(func() { _ = w.Stop() })
	return w, sink
}

// realRoot returns a fresh directory with symlinks resolved, so paths
// reported by the OS match.
func realRoot(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

const eventTimeout = 3 * time.Second

func TestHybridWatcher_NewHybridWatcher(t *testing.T) {
	// Given: default options
	opts := DefaultOptions()

	// When: creating a hybrid watcher
	w, err := NewHybridWatcher(opts)

	// Then: no error and watcher is valid but not running
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.False(t, w.IsHealthy())
	require.NoError(t, w.Stop())
}

func TestHybridWatcher_UsesFsnotifyByDefault(t *testing.T) {
	root := realRoot(t)
	w, _ := startWatcher(t, DefaultOptions(), root)

	assert.Equal(t, "fsnotify", w.Backend())
	assert.True(t, w.IsHealthy())
	assert.Equal(t, []string{root}, w.Roots())
}

func TestHybridWatcher_DetectsFileCreation(t *testing.T) {
	// Given: a running watcher
	root := realRoot(t)
	_, sink := startWatcher(t, DefaultOptions(), root)

	// When: a file is created
	path := filepath.Join(root, "test.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))

	// Then: a create event with its root is reported
	require.Eventually(t, func() bool { return sink.has(path, OpCreate) }, eventTimeout, 10*time.Millisecond)
	for _, ev := range sink.Events() {
		assert.Equal(t, root, ev.Root)
	}
}

func TestHybridWatcher_DetectsFileModification(t *testing.T) {
	// Given: an existing file
	root := realRoot(t)
	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))
	_, sink := startWatcher(t, DefaultOptions(), root)

	// When: the file is modified
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}"), 0o644))

	// Then: a modify event is reported
	require.Eventually(t, func() bool { return sink.has(path, OpModify) }, eventTimeout, 10*time.Millisecond)
}

func TestHybridWatcher_DetectsFileDeletion(t *testing.T) {
	root := realRoot(t)
	path := filepath.Join(root, "delete.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))
	_, sink := startWatcher(t, DefaultOptions(), root)

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool { return sink.has(path, OpDelete) }, eventTimeout, 10*time.Millisecond)
}

func TestHybridWatcher_DetectsRename(t *testing.T) {
	root := realRoot(t)
	oldPath := filepath.Join(root, "old.go")
	newPath := filepath.Join(root, "new.go")
	require.NoError(t, os.WriteFile(oldPath, []byte("package main"), 0o644))
	_, sink := startWatcher(t, DefaultOptions(), root)

	require.NoError(t, os.Rename(oldPath, newPath))

	// Then: the old path is reported as renamed and the new one as created
	require.Eventually(t, func() bool {
		return sink.has(oldPath, OpRename) && sink.has(newPath, OpCreate)
	}, eventTimeout, 10*time.Millisecond)
}

func TestHybridWatcher_NestedDirectories(t *testing.T) {
	// Given: a watcher on a tree with an existing subdirectory
	root := realRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "pkg"), 0o755))
	_, sink := startWatcher(t, DefaultOptions(), root)

	// When: a file is created deep in the tree
	path := filepath.Join(root, "src", "pkg", "util.go")
	require.NoError(t, os.WriteFile(path, []byte("package pkg"), 0o644))

	// Then: it is reported
	require.Eventually(t, func() bool { return sink.has(path, OpCreate) }, eventTimeout, 10*time.Millisecond)
}

func TestHybridWatcher_NewDirectoryIsWatched(t *testing.T) {
	// Given: a running watcher
	root := realRoot(t)
	_, sink := startWatcher(t, DefaultOptions(), root)

	// When: a directory is created together with a file inside it
	dir := filepath.Join(root, "gen")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	early := filepath.Join(dir, "early.go")
	require.NoError(t, os.WriteFile(early, []byte("package gen"), 0o644))

	// Then: the directory and its content are reported
	require.Eventually(t, func() bool {
		return sink.has(dir, OpCreate) && sink.hasPath(early)
	}, eventTimeout, 10*time.Millisecond)

	// When: another file is written later
	late := filepath.Join(dir, "late.go")
	require.NoError(t, os.WriteFile(late, []byte("package gen"), 0o644))

	// Then: the new directory's watch reports it
	require.Eventually(t, func() bool { return sink.has(late, OpCreate) }, eventTimeout, 10*time.Millisecond)
}

func TestHybridWatcher_SkippedDirectoryNotWatched(t *testing.T) {
	// Given: a watcher that skips node_modules
	root := realRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))
	opts := DefaultOptions()
	opts.SkipDir = func(rel string) bool { return filepath.Base(rel) == "node_modules" }
	_, sink := startWatcher(t, opts, root)

	// When: files change inside and outside the skipped directory
	skipped := filepath.Join(root, "node_modules", "pkg", "index.js")
	require.NoError(t, os.WriteFile(skipped, []byte("x"), 0o644))
	kept := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(kept, []byte("package main"), 0o644))

	// Then: only the file outside is reported
	require.Eventually(t, func() bool { return sink.has(kept, OpCreate) }, eventTimeout, 10*time.Millisecond)
	assert.False(t, sink.hasPath(skipped))
}

func TestHybridWatcher_DeletedDirectoryIsUnwatched(t *testing.T) {
	root := realRoot(t)
	dir := filepath.Join(root, "tmp")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	w, sink := startWatcher(t, DefaultOptions(), root)

	require.NoError(t, os.RemoveAll(dir))

	require.Eventually(t, func() bool { return sink.has(dir, OpDelete) }, eventTimeout, 10*time.Millisecond)
	w.stateMu.Lock()
	_, stillWatched := w.watched[dir]
	w.stateMu.Unlock()
	assert.False(t, stillWatched)
}

func TestHybridWatcher_ChmodIsDropped(t *testing.T) {
	root := realRoot(t)
	path := filepath.Join(root, "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh"), 0o644))
	_, sink := startWatcher(t, DefaultOptions(), root)

	require.NoError(t, os.Chmod(path, 0o755))
	time.Sleep(200 * time.Millisecond)

	assert.False(t, sink.hasPath(path))
}

func TestHybridWatcher_OverlappingRoots_InnermostRootWins(t *testing.T) {
	// Given: a root and a second root nested inside it
	outer := realRoot(t)
	inner := filepath.Join(outer, "inner")
	require.NoError(t, os.MkdirAll(inner, 0o755))
	_, sink := startWatcher(t, DefaultOptions(), outer, inner)

	// When: a file changes in the nested root
	path := filepath.Join(inner, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package inner"), 0o644))

	// Then: it is attributed to the nested root
	require.Eventually(t, func() bool { return sink.has(path, OpCreate) }, eventTimeout, 10*time.Millisecond)
	for _, ev := range sink.Events() {
		if ev.Path == path {
			assert.Equal(t, inner, ev.Root)
		}
	}
}

func TestHybridWatcher_ReplayRecent(t *testing.T) {
	// Given: one file modified just now and one an hour ago
	root := realRoot(t)
	fresh := filepath.Join(root, "fresh.go")
	stale := filepath.Join(root, "stale.go")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	// When: starting with replay enabled
	opts := DefaultOptions()
	opts.ReplayRecent = true
	_, sink := startWatcher(t, opts, root)

	// Then: only the file inside the lookback window is replayed
	assert.True(t, sink.has(fresh, OpModify))
	assert.False(t, sink.hasPath(stale))
}

func TestHybridWatcher_NoReplayByDefault(t *testing.T) {
	root := realRoot(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "fresh.go"), []byte("x"), 0o644))

	_, sink := startWatcher(t, DefaultOptions(), root)

	assert.Empty(t, sink.Events())
}

func TestHybridWatcher_LookbackDropsStaleEvents(t *testing.T) {
	// Given: a running watcher
	root := realRoot(t)
	w, sink := startWatcher(t, DefaultOptions(), root)

	// When: events older than the lookback window arrive
	path := filepath.Join(root, "old.go")
	w.emit(RawEvent{Path: path, Op: OpModify, Timestamp: time.Now().Add(-time.Minute)})
	w.emit(RawEvent{Path: path, Op: OpModify, Timestamp: time.Now().Add(-5 * time.Second)})

	// Then: only the one inside the window is forwarded
	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, root, events[0].Root)
	assert.Equal(t, uint64(1), w.StaleDropped())
}

func TestHybridWatcher_EventsOutsideRootsAreDropped(t *testing.T) {
	root := realRoot(t)
	w, sink := startWatcher(t, DefaultOptions(), root)

	w.emit(RawEvent{Path: filepath.Join(filepath.Dir(root), "elsewhere.go"), Op: OpCreate, Timestamp: time.Now()})
	w.emit(RawEvent{Path: root + "sibling", Op: OpCreate, Timestamp: time.Now()})

	assert.Empty(t, sink.Events())
}

func TestWithin(t *testing.T) {
	tests := []struct {
		root, path string
		want       bool
	}{
		{"/proj", "/proj", true},
		{"/proj", "/proj/a.go", true},
		{"/proj", "/project/a.go", false},
		{"/proj", "/", false},
		{"/", "/etc/hosts", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, within(tt.root, tt.path), "%s in %s", tt.path, tt.root)
	}
}
