// Package dirlock provides a per-directory single-instance lock backed by an
// advisory file lock.
package dirlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// LockFileName is created inside the locked directory.
const LockFileName = ".devloop.lock"

var (
	// ErrLockConflict indicates the lock is held by another process.
	ErrLockConflict = errors.New("directory is locked by another process")

	// ErrNotLocked indicates unlock was called but the lock is not held.
	ErrNotLocked = errors.New("directory is not locked")
)

// DirLock guards a directory against a second orchestrator.
type DirLock interface {
	// TryLock acquires the lock without blocking. It returns an error
	// wrapping ErrLockConflict when another process holds it.
	TryLock() error
	// Unlock releases the lock and removes the lock file.
	Unlock() error
	// IsHeldByMe reports whether this instance holds the lock.
	IsHeldByMe() bool
	// Path is the lock file location.
	Path() string
}

type dirLock struct {
	mu     sync.Mutex
	path   string
	flock  *flock.Flock
	isHeld bool
}

// New creates a lock for directory. The directory must exist.
func New(directory string) (DirLock, error) {
	if directory == "" {
		return nil, errors.New("directory cannot be empty")
	}
	path := filepath.Join(directory, LockFileName)
	return &dirLock{path: path, flock: flock.New(path)}, nil
}

func (l *dirLock) TryLock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isHeld {
		return nil
	}

	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	if !ok {
		if pid := holderPID(l.path); pid > 0 {
			return fmt.Errorf("%w (pid %d)", ErrLockConflict, pid)
		}
		return ErrLockConflict
	}

	l.isHeld = true
	// The pid is informational; a failed write does not release the lock.
	_ = os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
	return nil
}

func (l *dirLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isHeld {
		return ErrNotLocked
	}
	_ = os.Remove(l.path)
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, err)
	}
	l.isHeld = false
	return nil
}

func (l *dirLock) IsHeldByMe() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isHeld
}

func (l *dirLock) Path() string {
	return l.path
}

func holderPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
