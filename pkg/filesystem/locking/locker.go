// Package locking provides advisory file locking on top of sidecar lock
// files. Locks are a politeness/performance optimization for the journal
// (pkg/journal) — atomic rename is what actually guarantees readers never
// observe a torn write — so acquisition is always bounded by a timeout and
// callers are expected to proceed in degraded (unlocked) mode on timeout.
package locking

import (
	"os"
	"time"

	"github.com/pkg/errors"
)

// Locker provides file locking facilities backed by a sidecar file.
type Locker struct {
	// file is the underlying file object to be locked.
	file *os.File
	// held records whether this Locker currently holds the lock.
	held bool
}

// NewLocker attempts to create a lock with the file at the specified path,
// creating the file if necessary. The lock is returned in an unlocked state.
func NewLocker(path string, permissions os.FileMode) (*Locker, error) {
	mode := os.O_RDWR | os.O_CREATE | os.O_APPEND
	file, err := os.OpenFile(path, mode, permissions)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	}
	return &Locker{file: file}, nil
}

// Held indicates whether or not the locker currently holds the lock.
func (l *Locker) Held() bool {
	return l.held
}

// LockTimeout attempts to acquire the lock, polling with the given interval
// until either the lock is acquired or the timeout elapses. It is the
// primitive behind the journal's bounded lock-acquisition timeout
// (nominally 5 seconds): on timeout it returns an error and callers are
// expected to proceed without the lock rather than block indefinitely.
func (l *Locker) LockTimeout(timeout, pollInterval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := l.Lock(false)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Wrap(err, "lock acquisition timed out")
		}
		time.Sleep(pollInterval)
	}
}

// Close closes the underlying lock file. If the lock is still held, it is
// released first.
func (l *Locker) Close() error {
	if l.held {
		if err := l.Unlock(); err != nil {
			l.file.Close()
			return errors.Wrap(err, "unable to release lock before closing")
		}
	}
	return l.file.Close()
}
