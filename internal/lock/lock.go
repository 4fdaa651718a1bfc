// Package lock provides the cross-process exclusive-writer lock over a
// workspace's .syntheo/semantics directory. The concurrency model (spec
// §5) requires a single process to be the exclusive writer of the
// metadata store and ANN index; this lock enforces that at the process
// level, independent of SQLite's own single-connection discipline.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// WorkspaceLock guards a workspace's semantics directory against
// concurrent writers from other processes.
type WorkspaceLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a workspace lock rooted at <dir>/.lock.
func New(dir string) *WorkspaceLock {
	path := filepath.Join(dir, ".lock")
	return &WorkspaceLock{
		path:  path,
		flock: flock.New(path),
	}
}

// TryLock attempts to acquire the exclusive lock without blocking.
// Returns false if another process already holds it.
func (l *WorkspaceLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire workspace lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call multiple times.
func (l *WorkspaceLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release workspace lock: %w", err)
	}
	l.locked = false
	return nil
}

// IsLocked reports whether this instance currently holds the lock.
func (l *WorkspaceLock) IsLocked() bool {
	return l.locked
}
