package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/NewsHound/internal/config"
)

type staticSources struct {
	mu      sync.Mutex
	sources []config.SourceConfig
	err     error
}

func (s *staticSources) ActiveSources(context.Context) ([]config.SourceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]config.SourceConfig(nil), s.sources...), s.err
}

func (s *staticSources) Set(srcs ...config.SourceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = srcs
}

func TestReconcile(t *testing.T) {
	desired := []config.SourceConfig{source("Comune"), source("Carpi Calcio"), source("Youtube")}
	running := map[string]bool{
		"comune":        true,  // keep
		"youtube":       false, // registered but stopped
		"email_ufficio": true,  // deactivated
		"vecchio":       false, // deactivated and already stopped
	}

	actions := Reconcile(desired, running)
	require.Len(t, actions, 3)
	assert.Equal(t, Action{Kind: ActionStop, Key: "email_ufficio"}, actions[0])
	assert.Equal(t, ActionStart, actions[1].Kind)
	assert.Equal(t, "carpi_calcio", actions[1].Key)
	assert.Equal(t, "Carpi Calcio", actions[1].Source.Name)
	assert.Equal(t, ActionStart, actions[2].Kind)
	assert.Equal(t, "youtube", actions[2].Key)

	assert.Empty(t, Reconcile(nil, nil))
	assert.Empty(t, Reconcile(desired[:1], map[string]bool{"comune": true}))
}

func TestWatchdogToleratesMissingManager(t *testing.T) {
	w := NewWatchdog(&staticSources{sources: []config.SourceConfig{source("Comune")}}, time.Second, nil, testLogger)
	assert.Equal(t, TickResult{}, w.Tick(context.Background()))
}

func TestWatchdogTickStartsAndStops(t *testing.T) {
	locks := newLocks(t)
	rec := &recorder{}
	mg := NewManager(testFactory(locks, newMemStore(), "Rotto"), rec, nil, testLogger)
	defer mg.StopAll()

	sources := &staticSources{}
	sources.Set(source("Comune"), source("Rotto"), source("Youtube"))

	w := NewWatchdog(sources, time.Second, nil, testLogger)
	w.SetManager(mg)
	ctx := context.Background()

	res := w.Tick(ctx)
	assert.Equal(t, TickResult{Started: 2, Failed: 1}, res, "one broken source does not stop the others")
	assert.ElementsMatch(t, []string{"Comune", "Youtube"}, rec.Names())

	m, ok := mg.Get("Comune")
	require.True(t, ok)
	assert.True(t, m.Running())

	sources.Set(source("Youtube"))
	res = w.Tick(ctx)
	assert.Equal(t, 1, res.Stopped)
	assert.False(t, m.Running())

	// Reactivation rebuilds and starts a fresh monitor.
	sources.Set(source("Youtube"), source("Comune"))
	res = w.Tick(ctx)
	assert.Equal(t, 1, res.Started)
	again, ok := mg.Get("Comune")
	require.True(t, ok)
	assert.True(t, again.Running())
	assert.NotSame(t, m, again)

	sources.mu.Lock()
	sources.err = errors.New("database is locked")
	sources.mu.Unlock()
	assert.Equal(t, TickResult{}, w.Tick(ctx), "an unreadable desired state changes nothing")
	assert.True(t, again.Running())
}

func TestWatchdogSkipsSourcesLockedElsewhere(t *testing.T) {
	locks := newLocks(t)
	mg := NewManager(testFactory(locks, newMemStore()), nil, nil, testLogger)
	defer mg.StopAll()

	held := locks.SourceLock("comune")
	ok, err := held.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Release()

	w := NewWatchdog(&staticSources{sources: []config.SourceConfig{source("Comune")}}, time.Second, nil, testLogger)
	w.SetManager(mg)
	assert.Equal(t, TickResult{}, w.Tick(context.Background()))
}

func TestWatchdogScheduleRuns(t *testing.T) {
	mg := NewManager(testFactory(nil, newMemStore()), nil, nil, testLogger)
	defer mg.StopAll()

	w := NewWatchdog(&staticSources{sources: []config.SourceConfig{source("Comune")}}, time.Second, nil, testLogger)
	w.SetManager(mg)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.Eventually(t, func() bool {
		m, ok := mg.Get("Comune")
		return ok && m.Running()
	}, 3*time.Second, 50*time.Millisecond)
}
