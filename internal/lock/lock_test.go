package lock

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// deadPID is above any pid_max, so the signal probe always fails.
const deadPID = 999999999

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "locks"), time.Minute, testLogger)
	require.NoError(t, err)
	return m
}

func TestSourceLockWritesPIDAndReleases(t *testing.T) {
	m := newManager(t)
	l := m.SourceLock("comune_di_carpi")

	ok, err := l.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, l.Held())
	assert.Equal(t, filepath.Join(m.Dir(), "comune_di_carpi_monitor.lock"), l.Path())

	pid, err := ReadPID(l.Path())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	holder, ok := m.Holder("comune_di_carpi")
	assert.True(t, ok)
	assert.Equal(t, os.Getpid(), holder)

	require.NoError(t, l.Release())
	assert.NoFileExists(t, l.Path())
	assert.False(t, l.Held())
	require.NoError(t, l.Release(), "double release is a no-op")
}

func TestSourceLockContention(t *testing.T) {
	m := newManager(t)
	first := m.SourceLock("youtube")
	second := m.SourceLock("youtube")

	ok, err := first.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryAcquire()
	require.NoError(t, err, "contention is not an error")
	assert.False(t, ok)
	assert.FileExists(t, first.Path(), "a live holder's record must survive")

	require.NoError(t, first.Release())
	ok, err = second.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Release())
}

func TestStaleLockIsRemovedAndReacquired(t *testing.T) {
	m := newManager(t)
	path := m.SourcePath("email")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(deadPID)+"\n"), 0o644))
	assert.False(t, ProcessAlive(deadPID))

	l := m.SourceLock("email")
	ok, err := l.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	pid, err := ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	require.NoError(t, l.Release())
}

func TestCorruptLockIsRemoved(t *testing.T) {
	m := newManager(t)
	path := m.SourcePath("wp")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	_, err := ReadPID(path)
	require.Error(t, err)

	l := m.SourceLock("wp")
	ok, err := l.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release())
}

func TestMasterLockUsesAge(t *testing.T) {
	m := newManager(t)
	now := time.Now()
	m.now = func() time.Time { return now }

	first := m.MasterLock()
	ok, err := first.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	second := m.MasterLock()
	ok, err = second.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok, "a fresh master lock blocks bulk startup")

	now = now.Add(2 * time.Minute)
	ok, err = second.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok, "an expired master lock is taken over regardless of its owner")
}

func TestMasterLockRefresh(t *testing.T) {
	m := newManager(t)
	l := m.MasterLock()
	require.Error(t, l.Refresh(), "refresh needs the lock")

	ok, err := l.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(l.Path(), past, past))
	require.NoError(t, l.Refresh())

	st, err := os.Stat(l.Path())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), st.ModTime(), 5*time.Second)
	require.NoError(t, l.Release())
	assert.NoFileExists(t, l.Path())
}

func TestSweepKeepsHeldAndFreshLocks(t *testing.T) {
	m := newManager(t)

	held := m.SourceLock("held")
	ok, err := held.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Release()

	old := m.SourcePath("orphan")
	require.NoError(t, os.WriteFile(old, []byte(strconv.Itoa(deadPID)), 0o644))
	fresh := m.SourcePath("fresh")
	require.NoError(t, os.WriteFile(fresh, []byte(strconv.Itoa(deadPID)), 0o644))

	past := time.Now().Add(-2 * time.Hour)
	for _, p := range []string{old, held.Path()} {
		require.NoError(t, os.Chtimes(p, past, past))
	}

	removed, err := m.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, held.Path())
}

func TestListAndCleanAll(t *testing.T) {
	m := newManager(t)
	master := m.MasterLock()
	ok, err := master.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, os.WriteFile(m.SourcePath("b_source"), []byte(strconv.Itoa(deadPID)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "notes.txt"), []byte("x"), 0o644))

	infos, err := m.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.True(t, infos[0].Master)
	assert.True(t, infos[0].Alive)
	assert.Equal(t, "b_source", infos[1].Name)
	assert.False(t, infos[1].Alive)

	removed, err := m.CleanAll()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := os.ReadDir(m.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".lock"))
	}
}

func TestLostLockIsDetectedAndNotDeleted(t *testing.T) {
	m := newManager(t)
	first := m.SourceLock("email")
	ok, err := first.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, first.Intact())

	require.NoError(t, os.Remove(first.Path()))
	assert.False(t, first.Intact())

	second := m.SourceLock("email")
	ok, err = second.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, first.Release())
	assert.FileExists(t, second.Path(), "releasing a lost lock keeps the new owner's file")
	assert.True(t, second.Intact())
	require.NoError(t, second.Release())
}
