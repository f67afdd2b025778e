// Package lock provides filesystem mutual exclusion between independently
// started processes: one lock file per source plus one master lock guarding
// bulk startup.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/IshaanNene/NewsHound/internal/types"
)

// Policy decides when an existing lock record may be taken over.
type Policy int

const (
	// PIDLiveness treats a record as stale once its owner process is gone.
	// Used for long-lived per-source monitors.
	PIDLiveness Policy = iota

	// MaxAge treats a record as stale once it has not been refreshed for the
	// configured age. Used for the short bulk-startup window.
	MaxAge
)

func (p Policy) String() string {
	if p == MaxAge {
		return "max_age"
	}
	return "pid_liveness"
}

// Lock is one lock file. It is safe for concurrent use.
type Lock struct {
	path   string
	policy Policy
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	file *os.File // PIDLiveness: the flock'ed descriptor
	held bool
}

func newLock(path string, policy Policy, maxAge time.Duration, logger *slog.Logger) *Lock {
	return &Lock{
		path:   path,
		policy: policy,
		maxAge: maxAge,
		logger: logger.With("lock", path),
		now:    time.Now,
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Held reports whether this Lock currently owns the file.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// TryAcquire attempts to take the lock without waiting. It returns false with
// a nil error when another owner holds it.
func (l *Lock) TryAcquire() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return true, nil
	}
	var (
		ok  bool
		err error
	)
	if l.policy == MaxAge {
		ok, err = l.acquireByAge()
	} else {
		ok, err = l.acquireByPID()
	}
	if err != nil {
		return false, &types.LockError{Path: l.path, Err: err}
	}
	l.held = ok
	if ok {
		l.logger.Debug("lock acquired", "policy", l.policy)
	}
	return ok, nil
}

func (l *Lock) acquireByPID() (bool, error) {
	l.clearStale()

	// The file may be unlinked by its previous owner between open and flock;
	// retry until the locked inode is the one at the path.
	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return false, err
		}
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return false, nil
			}
			return false, err
		}

		if !samePath(f, l.path) {
			f.Close()
			continue
		}

		if err := writePID(f); err != nil {
			unix.Flock(int(f.Fd()), unix.LOCK_UN)
			f.Close()
			return false, err
		}
		l.file = f
		return true, nil
	}
	return false, types.ErrLockContention
}

// clearStale removes a record whose owner is gone. A record that cannot be
// parsed is removed unless somebody still holds it.
func (l *Lock) clearStale() {
	pid, err := ReadPID(l.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return
	case err != nil:
		if flocked(l.path) {
			return
		}
		if rmErr := os.Remove(l.path); rmErr == nil {
			l.logger.Info("removed corrupt lock record", "error", err)
		}
	case !ProcessAlive(pid):
		if rmErr := os.Remove(l.path); rmErr == nil {
			l.logger.Info("removed stale lock", "pid", pid)
		}
	}
}

func (l *Lock) acquireByAge() (bool, error) {
	if info, err := os.Stat(l.path); err == nil {
		age := l.now().Sub(info.ModTime())
		if age < l.maxAge {
			l.logger.Debug("lock is fresh", "age", age.Round(time.Millisecond))
			return false, nil
		}
		l.logger.Info("removing expired lock", "age", age.Round(time.Second))
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	return true, writePID(f)
}

// Refresh renews the age of a held MaxAge lock.
func (l *Lock) Refresh() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return &types.LockError{Path: l.path, Err: errors.New("not held")}
	}
	now := l.now()
	if err := os.Chtimes(l.path, now, now); err != nil {
		return &types.LockError{Path: l.path, Err: err}
	}
	return nil
}

// Intact reports whether the lock is held and its file on disk is still ours.
// It turns false when the file was removed or replaced behind our back.
func (l *Lock) Intact() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held && l.ownsFile()
}

func (l *Lock) ownsFile() bool {
	if l.file != nil {
		return samePath(l.file, l.path)
	}
	pid, err := ReadPID(l.path)
	return err == nil && pid == os.Getpid()
}

// Release unlocks and deletes the lock file. Releasing a lock that is not held
// is a no-op. A file that no longer belongs to us is left alone.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}

	// Remove before unlocking so nobody can lock the old inode in between.
	var err error
	if l.ownsFile() {
		err = os.Remove(l.path)
		if errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
	}
	l.held = false
	if l.file != nil {
		unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		if cerr := l.file.Close(); err == nil {
			err = cerr
		}
		l.file = nil
	}
	if err != nil {
		return &types.LockError{Path: l.path, Err: err}
	}
	l.logger.Debug("lock released")
	return nil
}

// ReadPID reads the owner PID stored in a lock file.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupt lock record: %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("corrupt lock record: pid %d", pid)
	}
	return pid, nil
}

// ProcessAlive probes pid with signal 0. A process owned by another user
// counts as alive.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return err
	}
	return f.Sync()
}

// flocked reports whether some descriptor holds a flock on path.
func flocked(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return errors.Is(err, unix.EWOULDBLOCK)
	}
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return false
}

func samePath(f *os.File, path string) bool {
	open, err := f.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(open, onDisk)
}
