package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/observability"
	"github.com/IshaanNene/NewsHound/internal/types"
)

// Factory builds a monitor for a source.
type Factory func(src config.SourceConfig) (*Monitor, error)

// LastRunRecorder stores the time a source was last started.
type LastRunRecorder interface {
	TouchLastRun(ctx context.Context, name string, at time.Time) error
}

// Manager is the registry of monitors, keyed by source key.
type Manager struct {
	factory  Factory
	recorder LastRunRecorder
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu       sync.RWMutex
	monitors map[string]*Monitor
}

// NewManager creates an empty registry. recorder and metrics may be nil.
func NewManager(factory Factory, recorder LastRunRecorder, metrics *observability.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		factory:  factory,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger.With("component", "monitor_manager"),
		monitors: make(map[string]*Monitor),
	}
}

// Add builds a monitor without starting it. A stopped monitor for the same
// source is replaced, which picks up configuration changes. A running one, or
// a stopped one whose loop is still finishing its last cycle, is left alone
// and ErrMonitorRunning is returned.
func (mg *Manager) Add(src config.SourceConfig) (*Monitor, error) {
	key := src.Key()

	mg.mu.RLock()
	existing := mg.monitors[key]
	mg.mu.RUnlock()
	if existing != nil && existing.Running() {
		return existing, types.ErrMonitorRunning
	}
	if existing != nil && existing.finishing() {
		return existing, fmt.Errorf("%w: previous loop still finishing", types.ErrMonitorRunning)
	}

	m, err := mg.factory(src)
	if err != nil {
		return nil, fmt.Errorf("build monitor %q: %w", src.Name, err)
	}

	mg.mu.Lock()
	mg.monitors[key] = m
	mg.mu.Unlock()
	mg.logger.Debug("monitor added", "source", src.Name, "kind", src.Kind)
	return m, nil
}

// Get returns the monitor for a source name.
func (mg *Manager) Get(name string) (*Monitor, bool) {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	m, ok := mg.monitors[config.SourceKey(name)]
	return m, ok
}

// Remove stops and forgets a monitor.
func (mg *Manager) Remove(name string) error {
	mg.mu.Lock()
	m, ok := mg.monitors[config.SourceKey(name)]
	delete(mg.monitors, config.SourceKey(name))
	mg.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrMonitorNotFound, name)
	}
	if m.Running() {
		return m.Stop()
	}
	return nil
}

// Start starts one monitor. false with a nil error means the source lock is
// held elsewhere.
func (mg *Manager) Start(ctx context.Context, name string) (bool, error) {
	m, ok := mg.Get(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", types.ErrMonitorNotFound, name)
	}
	started, err := m.Start(ctx)
	if started {
		mg.touch(ctx, m.Name())
	}
	mg.updateGauge()
	return started, err
}

// Stop stops one monitor.
func (mg *Manager) Stop(name string) error {
	m, ok := mg.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrMonitorNotFound, name)
	}
	err := m.Stop()
	mg.updateGauge()
	return err
}

// StartAll starts every registered monitor that is not running. It never
// aborts on a single failure; the result maps source name to success.
func (mg *Manager) StartAll(ctx context.Context) map[string]bool {
	results := make(map[string]bool)
	for _, m := range mg.list() {
		if m.Running() {
			results[m.Name()] = true
			continue
		}
		started, err := m.Start(ctx)
		if err != nil {
			mg.logger.Error("starting monitor failed", "source", m.Name(), "error", err)
		}
		if started {
			mg.touch(ctx, m.Name())
		}
		results[m.Name()] = started
	}
	mg.updateGauge()
	mg.logger.Info("monitors started", "ok", countTrue(results), "total", len(results))
	return results
}

// StopAll stops every running monitor. The result maps source name to
// success.
func (mg *Manager) StopAll() map[string]bool {
	results := make(map[string]bool)
	for _, m := range mg.list() {
		if !m.Running() {
			continue
		}
		err := m.Stop()
		if err != nil {
			mg.logger.Error("stopping monitor failed", "source", m.Name(), "error", err)
		}
		results[m.Name()] = err == nil
	}
	mg.updateGauge()
	return results
}

// Wait blocks until every stopped loop has finished its last cycle or ctx is
// done.
func (mg *Manager) Wait(ctx context.Context) error {
	for _, m := range mg.list() {
		done := m.Done()
		if done == nil {
			continue
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Running returns the running state per source key.
func (mg *Manager) Running() map[string]bool {
	out := make(map[string]bool)
	for _, m := range mg.list() {
		out[m.Key()] = m.Running()
	}
	return out
}

// Status reports every monitor, ordered by name.
func (mg *Manager) Status() []Status {
	monitors := mg.list()
	out := make([]Status, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, m.Status())
	}
	return out
}

// Len returns the number of registered monitors.
func (mg *Manager) Len() int {
	mg.mu.RLock()
	defer mg.mu.RUnlock()
	return len(mg.monitors)
}

func (mg *Manager) list() []*Monitor {
	mg.mu.RLock()
	out := make([]*Monitor, 0, len(mg.monitors))
	for _, m := range mg.monitors {
		out = append(out, m)
	}
	mg.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (mg *Manager) touch(ctx context.Context, name string) {
	if mg.recorder == nil {
		return
	}
	if err := mg.recorder.TouchLastRun(ctx, name, time.Now()); err != nil {
		mg.logger.Warn("updating last run failed", "source", name, "error", err)
	}
}

func (mg *Manager) updateGauge() {
	n := 0
	for _, running := range mg.Running() {
		if running {
			n++
		}
	}
	mg.metrics.SetMonitorsRunning(n)
}

func countTrue(m map[string]bool) int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}
