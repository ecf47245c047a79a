package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
)

// Error propagation tests: start-time failures are returned synchronously,
// runtime failures reach the sink and nothing leaks after Stop.

func TestHybridWatcher_Start_MissingRoot_ReturnsRootNotFound(t *testing.T) {
	// Given: a hybrid watcher
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	// When: starting on a non-existent path
	sink := newRecordingSink()
	err = w.Start(context.Background(), []string{"/nonexistent/path/that/does/not/exist"}, sink)

	// Then: the error is returned and nothing was subscribed
	require.Error(t, err)
	assert.ErrorIs(t, err, twerrors.ErrRootNotFound)
	assert.False(t, w.IsHealthy())
	assert.Empty(t, sink.Events())
}

func TestHybridWatcher_Start_FileRoot_ReturnsNotDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := ValidateRoots([]string{file})

	assert.ErrorIs(t, err, twerrors.ErrRootNotDirectory)
}

func TestValidateRoots_UnreadableRoot_ReturnsPermission(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any directory")
	}
	dir := filepath.Join(t.TempDir(), "locked")
	require.NoError(t, os.Mkdir(dir, 0o000))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	_, err := ValidateRoots([]string{dir})

	assert.ErrorIs(t, err, twerrors.ErrPermission)
}

func TestValidateRoots_RelativeBecomesAbsolute(t *testing.T) {
	roots, err := ValidateRoots([]string{"."})
	require.NoError(t, err)

	require.Len(t, roots, 1)
	assert.True(t, filepath.IsAbs(roots[0]))
}

func TestHybridWatcher_Start_NilSink(t *testing.T) {
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)

	err = w.Start(context.Background(), []string{t.TempDir()}, nil)

	assert.Equal(t, twerrors.ErrCodeInvalidInput, twerrors.GetCode(err))
}

func TestHybridWatcher_Start_Twice(t *testing.T) {
	root := realRoot(t)
	w, _ := startWatcher(t, DefaultOptions(), root)

	err := w.Start(context.Background(), []string{root}, newRecordingSink())

	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestHybridWatcher_Start_AfterStop(t *testing.T) {
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, w.Stop())

	err = w.Start(context.Background(), []string{t.TempDir()}, newRecordingSink())

	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, w.Rescan(context.Background()), ErrStopped)
}

func TestHybridWatcher_Stop_NothingDeliveredAfterReturn(t *testing.T) {
	// Given: a running watcher
	root := realRoot(t)
	w, sink := startWatcher(t, DefaultOptions(), root)

	// When: it is stopped and files change afterwards
	require.NoError(t, w.Stop())
	before := len(sink.Events())
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "after.go"), []byte{byte(i)}, 0o644))
	}
	time.Sleep(200 * time.Millisecond)

	// Then: the sink receives nothing more
	assert.Equal(t, before, len(sink.Events()))
	assert.False(t, w.IsHealthy())
}

func TestHybridWatcher_Stop_Idempotent(t *testing.T) {
	root := realRoot(t)
	w, _ := startWatcher(t, DefaultOptions(), root)

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestHybridWatcher_ContextCancelStops(t *testing.T) {
	// Given: a watcher started with a cancellable context
	root := realRoot(t)
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx, []string{root}, newRecordingSink()))

	// When: the context is cancelled
	cancel()

	// Then: the watcher stops on its own
	require.Eventually(t, func() bool { return !w.IsHealthy() }, eventTimeout, 10*time.Millisecond)
}

func TestHybridWatcher_RootRemoved_IsFatal(t *testing.T) {
	// Given: an fsnotify watcher on a subdirectory root
	root := filepath.Join(realRoot(t), "proj")
	require.NoError(t, os.MkdirAll(root, 0o755))
	w, sink := startWatcher(t, DefaultOptions(), root)

	// When: the root is removed
	require.NoError(t, os.RemoveAll(root))

	// Then: exactly one fatal RootRemoved error is reported
	require.Eventually(t, func() bool { return len(sink.Errors()) > 0 }, eventTimeout, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	errs := sink.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], twerrors.ErrRootRemoved)
	assert.False(t, w.IsHealthy())
}

func TestHybridWatcher_Overflow_IsRecoverable(t *testing.T) {
	// Given: a running watcher
	root := realRoot(t)
	w, sink := startWatcher(t, DefaultOptions(), root)

	// When: fsnotify reports a queue overflow
	w.handleFsnotifyError(fsnotify.ErrEventOverflow)

	// Then: an overflow error reaches the sink and the watcher keeps going
	errs := sink.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], twerrors.ErrWatcherOverflow)
	assert.True(t, twerrors.IsRetryable(errs[0]))
	assert.True(t, w.IsHealthy())

	// When: other fsnotify errors happen
	w.handleFsnotifyError(errors.New("transient"))

	// Then: they are only logged
	assert.Len(t, sink.Errors(), 1)
}

func TestHybridWatcher_Rescan_ReportsDifferences(t *testing.T) {
	// Given: a running watcher and a change made behind its back
	root := realRoot(t)
	w, sink := startWatcher(t, DefaultOptions(), root)
	missed := filepath.Join(root, "missed.go")
	require.NoError(t, os.WriteFile(missed, []byte("x"), 0o644))

	// When: rescanning
	require.NoError(t, w.Rescan(context.Background()))

	// Then: the change is reported without waiting for fsnotify
	assert.True(t, sink.has(missed, OpCreate))
}

func TestIsResourceExhausted(t *testing.T) {
	assert.True(t, isResourceExhausted(syscall.ENOSPC))
	assert.True(t, isResourceExhausted(&os.PathError{Op: "inotify_add_watch", Path: "/x", Err: syscall.EMFILE}))
	assert.False(t, isResourceExhausted(os.ErrPermission))
	assert.False(t, isResourceExhausted(nil))
}
