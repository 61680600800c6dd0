// Package lockfile provides cross-platform exclusive file locking used to
// serialize writers against the content artifact store (see the write
// coordinator in internal/engine). A single flock-based lock file rooted at
// the storage directory enforces the single-writer rule described in the
// engine's concurrency model: every write path acquires this lock before
// touching the artifact repository or the metadata index. The vector index
// is updated after the lock is released.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another holder currently owns it.
var ErrLockBusy = errors.New("lock busy: held by another process")

// IsBusy reports whether err indicates the lock is currently held elsewhere.
func IsBusy(err error) bool {
	return errors.Is(err, ErrLockBusy)
}

// Lock represents an acquired exclusive lock on a file. Release must be
// called exactly once to drop it.
type Lock struct {
	f    *os.File
	path string
}

// Path returns the filesystem path backing this lock.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and closes the underlying file handle.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := FlockUnlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// AcquireExclusive takes a non-blocking exclusive lock on path, creating the
// file (and its parent directory) if necessary. It returns ErrLockBusy
// immediately if another holder has the lock.
func AcquireExclusive(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lockfile: create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}
	if err := FlockExclusiveNonBlocking(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLockBusy) {
			return nil, ErrLockBusy
		}
		return nil, fmt.Errorf("lockfile: flock %s: %w", path, err)
	}
	if err := writeOwnerPID(f); err != nil {
		_ = FlockUnlock(f)
		_ = f.Close()
		return nil, fmt.Errorf("lockfile: record owner pid %s: %w", path, err)
	}
	return &Lock{f: f, path: path}, nil
}

// writeOwnerPID truncates f and writes the current process's PID, so a
// later Status call can report who holds the lock.
func writeOwnerPID(f *os.File) error {
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.WriteString(strconv.Itoa(os.Getpid()))
	return err
}

// Status reports who last recorded ownership of the lock file at path,
// and whether that process still appears to be running. It does not
// itself acquire the lock, so it is safe to call against a lock another
// process currently holds; an operator can use it to decide whether a
// lock file left behind by a crashed process is safe to remove by hand.
func Status(path string) (pid int, alive bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false, fmt.Errorf("lockfile: read %s: %w", path, err)
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, fmt.Errorf("lockfile: %s does not contain a pid: %w", path, err)
	}
	return pid, isProcessRunning(pid), nil
}

// AcquireShared takes a non-blocking shared lock on path, creating the file
// (and its parent directory) if necessary. Multiple holders may hold a
// shared lock concurrently; it is rejected only while an exclusive holder
// (a writer, see AcquireExclusive) is active. It backs read-side tooling
// that wants to observe a consistent snapshot of the storage directory.
// While a shared lock is held, AcquireExclusive returns ErrLockBusy.
func AcquireShared(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lockfile: create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}
	if err := FlockSharedNonBlock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLockBusy) {
			return nil, ErrLockBusy
		}
		return nil, fmt.Errorf("lockfile: flock %s: %w", path, err)
	}
	return &Lock{f: f, path: path}, nil
}

// AcquireExclusiveRetry retries AcquireExclusive with exponential backoff
// (initial interval delay, capped at maxElapsed total), surfacing ErrLockBusy
// to the caller as a transient condition once the budget is exhausted. This
// backs the write coordinator's "non-blocking acquisition with bounded
// retry" requirement.
func AcquireExclusiveRetry(path string, maxElapsed time.Duration, delay time.Duration) (*Lock, error) {
	if maxElapsed <= 0 {
		maxElapsed = delay
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.MaxElapsedTime = maxElapsed

	var lock *Lock
	operation := func() error {
		l, err := AcquireExclusive(path)
		if err != nil {
			if errors.Is(err, ErrLockBusy) {
				return err
			}
			return backoff.Permanent(err)
		}
		lock = l
		return nil
	}

	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return lock, nil
}
