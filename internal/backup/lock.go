package backup

import (
	"errors"
	"sync"

	"github.com/danjacques/gofslock/fslock"
)

// InstanceLock is a process-wide mutual exclusion guard: at most one
// orchestration run may be active per lock path on a host. The underlying
// advisory file lock is released by the OS when the owning process dies, so
// a crashed run never requires manual cleanup.
type InstanceLock struct {
	path string

	mu     sync.Mutex
	handle fslock.Handle
}

// AcquireInstanceLock takes the exclusive lock at path without blocking.
// When another process (or this one) already holds it, the returned error
// satisfies IsLockBusy and the caller must terminate without running any
// target.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	handle, err := fslock.Lock(path)
	if err != nil {
		if errors.Is(err, fslock.ErrLockHeld) {
			return nil, NewLockBusyError("another instance is already running", err)
		}
		return nil, NewConfigurationError("failed to acquire instance lock at "+path, err)
	}
	return &InstanceLock{path: path, handle: handle}, nil
}

// Release frees the lock. It is idempotent and safe to defer on every exit
// path.
func (l *InstanceLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == nil {
		return nil
	}
	err := l.handle.Unlock()
	l.handle = nil
	return err
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.path
}
