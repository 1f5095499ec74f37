// Package lock guards a notehunt data directory against concurrent writers.
//
// Only one process may own a data directory at a time: the file state table
// is reconciled by a single dispatcher, and the Bleve index is exclusive.
// Read-only engines call TryLock to find out whether an owner exists.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	nherrors "github.com/Aman-CERP/notehunt/internal/errors"
)

// FileName is the lock file created inside the data directory.
const FileName = ".notehunt.lock"

// DirLock is a cross-process lock on a data directory, backed by gofrs/flock.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates an unlocked DirLock for dir. The lock file is
// <dir>/.notehunt.lock.
func New(dir string) *DirLock {
	path := filepath.Join(dir, FileName)
	return &DirLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Acquire takes the lock without blocking. If another process holds it,
// Acquire returns an ErrCodeLockHeld error.
func (l *DirLock) Acquire() error {
	acquired, err := l.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return nherrors.New(nherrors.ErrCodeLockHeld,
			fmt.Sprintf("data directory is in use (%s)", l.path), nil).
			WithSuggestion("Stop the running notehunt process, or use a different data_dir")
	}
	return nil
}

// TryLock attempts to take the lock without blocking and reports whether it
// was acquired.
func (l *DirLock) TryLock() (bool, error) {
	if l.locked {
		return true, nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, nherrors.New(nherrors.ErrCodeStateUnavailable,
			"failed to create data directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, nherrors.New(nherrors.ErrCodeStateUnavailable,
			fmt.Sprintf("failed to lock %s", l.path), err)
	}
	l.locked = acquired
	return acquired, nil
}

// Release drops the lock. It is safe to call on an unlocked DirLock and to
// call more than once.
func (l *DirLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}

// IsLocked reports whether this DirLock holds the lock.
func (l *DirLock) IsLocked() bool {
	return l.locked
}
