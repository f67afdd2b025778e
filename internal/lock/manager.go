package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	lockSuffix     = ".lock"
	sourceSuffix   = "_monitor" + lockSuffix
	masterLockName = ".master_startup" + lockSuffix
)

// Manager hands out locks living in one directory.
type Manager struct {
	dir          string
	masterMaxAge time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// Info describes a lock file on disk.
type Info struct {
	Name   string        `json:"name"`
	Path   string        `json:"path"`
	PID    int           `json:"pid,omitempty"`
	Alive  bool          `json:"alive"`
	Held   bool          `json:"held"`
	Age    time.Duration `json:"age"`
	Master bool          `json:"master"`
}

// NewManager creates the lock directory if needed.
func NewManager(dir string, masterMaxAge time.Duration, logger *slog.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	return &Manager{
		dir:          dir,
		masterMaxAge: masterMaxAge,
		logger:       logger.With("component", "lock_manager"),
		now:          time.Now,
	}, nil
}

// Dir returns the lock directory.
func (m *Manager) Dir() string { return m.dir }

// SourceLock returns the PID-liveness lock of the source with the given key.
func (m *Manager) SourceLock(key string) *Lock {
	return newLock(m.SourcePath(key), PIDLiveness, 0, m.logger)
}

// SourcePath returns the lock file path of a source key.
func (m *Manager) SourcePath(key string) string {
	return filepath.Join(m.dir, key+sourceSuffix)
}

// MasterLock returns the age-based lock guarding bulk startup.
func (m *Manager) MasterLock() *Lock {
	l := newLock(filepath.Join(m.dir, masterLockName), MaxAge, m.masterMaxAge, m.logger)
	l.now = m.now
	return l
}

// List describes every lock file in the directory, master first.
func (m *Manager) List() ([]Info, error) {
	paths, err := filepath.Glob(filepath.Join(m.dir, "*"+lockSuffix))
	if err != nil {
		return nil, err
	}
	now := m.now()

	infos := make([]Info, 0, len(paths))
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			continue
		}
		base := filepath.Base(p)
		info := Info{
			Path:   p,
			Name:   strings.TrimSuffix(strings.TrimSuffix(base, sourceSuffix), lockSuffix),
			Age:    now.Sub(st.ModTime()),
			Master: base == masterLockName,
			Held:   flocked(p),
		}
		if pid, err := ReadPID(p); err == nil {
			info.PID = pid
			info.Alive = ProcessAlive(pid)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Master != infos[j].Master {
			return infos[i].Master
		}
		return infos[i].Name < infos[j].Name
	})
	return infos, nil
}

// Holder returns the PID recorded for a source, if a live process holds it.
func (m *Manager) Holder(key string) (int, bool) {
	pid, err := ReadPID(m.SourcePath(key))
	if err != nil || !ProcessAlive(pid) {
		return 0, false
	}
	return pid, true
}

// Sweep removes lock files older than maxAge that nobody holds. It returns
// how many were removed.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, info := range infos {
		if info.Age < maxAge || info.Held {
			continue
		}
		if info.Master && info.Alive && info.PID == os.Getpid() {
			continue
		}
		if err := os.Remove(info.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("failed to remove old lock", "path", info.Path, "error", err)
			errs = append(errs, err)
			continue
		}
		removed++
		m.logger.Info("removed old lock", "name", info.Name, "age", info.Age.Round(time.Second))
	}
	if removed > 0 {
		m.logger.Info("lock sweep finished", "removed", removed)
	}
	return removed, errors.Join(errs...)
}

// CleanAll removes every lock file regardless of its owner.
func (m *Manager) CleanAll() (int, error) {
	paths, err := filepath.Glob(filepath.Join(m.dir, "*"+lockSuffix))
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	m.logger.Info("locks cleaned", "removed", removed)
	return removed, errors.Join(errs...)
}
