// Package fslock provides advisory file locks for stores that are shared
// between the agent and external collaborators (tray, console, snapshot writer).
package fslock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Lock guards a single resource with an in-process mutex and an advisory
// lock on a sibling ".lock" file.
type Lock struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// New returns a lock for target. The lock file lives next to it.
func New(target string) *Lock {
	return &Lock{path: target + ".lock"}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Lock blocks until both the mutex and the file lock are held.
func (l *Lock) Lock() error {
	l.mu.Lock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		l.mu.Unlock()
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	l.file = f
	return nil
}

// Unlock releases the file lock and the mutex.
func (l *Lock) Unlock() {
	if l.file != nil {
		_ = unlockFile(l.file)
		_ = l.file.Close()
		l.file = nil
	}
	l.mu.Unlock()
}

// With runs fn while holding the lock.
func (l *Lock) With(fn func() error) error {
	if err := l.Lock(); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}
