// Package lock implements the advisory, reentrant, per-cluster file lock spec.md
// §4.6 describes: one OS-level flock per cluster id under the configured lock
// root, with an in-process reentrance counter so nested acquires in the same
// process don't deadlock and release is always safe to call.
package lock

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cephadmd/cephadmd/pkg/errs"
)

const pollInterval = 50 * time.Millisecond

// ClusterLock guards one cluster id's on-disk state across processes on the
// same host.
type ClusterLock struct {
	path string

	mu       sync.Mutex
	file     *os.File
	depth    int
	heldLock bool
}

// New returns a lock handle for clusterID under lockDir. The lock is not
// acquired until Acquire is called.
func New(lockDir, clusterID string) *ClusterLock {
	return &ClusterLock{path: filepath.Join(lockDir, clusterID+".lock")}
}

// Acquire blocks until the lock is held or timeout elapses. A negative timeout
// waits forever; zero tries exactly once. Nested acquires from the same
// *ClusterLock value increment a depth counter and return immediately.
func (l *ClusterLock) Acquire(timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.heldLock {
		l.depth++
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		err := flock(f)
		if err == nil {
			l.file = f
			l.heldLock = true
			l.depth = 1
			return nil
		}
		if timeout == 0 {
			_ = f.Close()
			return &errs.LockTimeout{Path: l.path}
		}
		if timeout > 0 && time.Now().After(deadline) {
			_ = f.Close()
			return &errs.LockTimeout{Path: l.path}
		}
		time.Sleep(pollInterval)
	}
}

// Release decrements the reentrance counter and unlocks the underlying file
// once it reaches zero. Calling Release on a lock that isn't held is a no-op,
// so shutdown paths can call it unconditionally.
func (l *ClusterLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.heldLock {
		return nil
	}
	l.depth--
	if l.depth > 0 {
		return nil
	}

	err := funlock(l.file)
	_ = l.file.Close()
	l.file = nil
	l.heldLock = false
	l.depth = 0
	return err
}

// Held reports whether the outermost acquire for this handle has not yet been
// released.
func (l *ClusterLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.heldLock
}
