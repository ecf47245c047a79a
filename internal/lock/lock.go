// Package lock provides the cross-process lock that keeps two treewatch
// processes from driving the same set of roots.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/gofrs/flock"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
	"github.com/Aman-CERP/treewatch/internal/logging"
)

// FileLock provides cross-process file locking using gofrs/flock.
// Works on all platforms (Unix, Linux, macOS, Windows).
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// DefaultDir returns the lock directory under the treewatch home.
func DefaultDir() string {
	return filepath.Join(logging.HomeDir(), "locks")
}

// New creates a lock at the given file path.
func New(path string) *FileLock {
	return &FileLock{
		path:  path,
		flock: flock.New(path),
	}
}

// ForRoots creates the lock for a root set in dir. The same roots in any
// order map to the same lock file.
func ForRoots(dir string, roots []string) *FileLock {
	return New(filepath.Join(dir, Key(roots)+".lock"))
}

// Key returns a stable hex key for a root set.
func Key(roots []string) string {
	sorted := append([]string(nil), roots...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(sum[:8])
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if it's held by another process.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// RetryPolicy bounds how long Acquire waits for another process to let go.
type RetryPolicy struct {
	// Attempts counts every TryLock, including the first.
	Attempts uint

	// Delay before the second attempt; it doubles after each failure.
	Delay time.Duration

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration
}

// DefaultRetry gives a watcher that is shutting down a short window to
// hand the lock over.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{
		Attempts: 4,
		Delay:    50 * time.Millisecond,
		MaxDelay: 400 * time.Millisecond,
	}
}

// Acquire takes the lock, backing off while another process holds it.
// Other TryLock failures are returned at once. Once attempts run out it
// returns an ERR_503_LOCK_HELD error naming the lock file.
func (l *FileLock) Acquire(ctx context.Context, policy RetryPolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if policy.Attempts == 0 {
		policy.Attempts = 1
	}

	err := retry.Do(
		func() error {
			acquired, err := l.TryLock()
			if err != nil {
				return err
			}
			if !acquired {
				return twerrors.ErrLockHeld
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(policy.Attempts),
		retry.Delay(policy.Delay),
		retry.MaxDelay(policy.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, twerrors.ErrLockHeld)
		}),
	)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case !errors.Is(err, twerrors.ErrLockHeld):
		return err
	}
	return twerrors.New(twerrors.ErrCodeLockHeld, "another treewatch process is watching these roots", err).
		WithDetail("lock", l.path).
		WithDetail("attempts", fmt.Sprint(policy.Attempts)).
		WithSuggestion("Stop the other watcher or pass --no-lock")
}

// Unlock releases the file lock.
// It's safe to call Unlock multiple times or on an unlocked FileLock.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}

	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *FileLock) Path() string {
	return l.path
}

// IsLocked returns true if the lock is currently held.
func (l *FileLock) IsLocked() bool {
	return l.locked
}
