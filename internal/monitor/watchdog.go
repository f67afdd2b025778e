package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/observability"
	"github.com/IshaanNene/NewsHound/internal/types"
)

// DefaultWatchdogInterval is the reconcile tick.
const DefaultWatchdogInterval = 30 * time.Second

// ActionKind is what the watchdog does to one source.
type ActionKind string

const (
	ActionStart ActionKind = "start"
	ActionStop  ActionKind = "stop"
)

// Action is one step towards the desired state.
type Action struct {
	Kind   ActionKind
	Key    string
	Source config.SourceConfig // set for ActionStart
}

// Reconcile compares the desired active sources with the running state per
// source key and returns the actions that align them: active sources that are
// not running get started, running sources that are no longer active get
// stopped. The result is ordered by key, stops first.
func Reconcile(desired []config.SourceConfig, running map[string]bool) []Action {
	want := make(map[string]config.SourceConfig, len(desired))
	for _, src := range desired {
		want[src.Key()] = src
	}

	var stops, starts []Action
	for key, isRunning := range running {
		if _, ok := want[key]; !ok && isRunning {
			stops = append(stops, Action{Kind: ActionStop, Key: key})
		}
	}
	for key, src := range want {
		if !running[key] {
			starts = append(starts, Action{Kind: ActionStart, Key: key, Source: src})
		}
	}

	sort.Slice(stops, func(i, j int) bool { return stops[i].Key < stops[j].Key })
	sort.Slice(starts, func(i, j int) bool { return starts[i].Key < starts[j].Key })
	return append(stops, starts...)
}

// ActiveSourceLister is the desired-state side of the watchdog.
type ActiveSourceLister interface {
	ActiveSources(ctx context.Context) ([]config.SourceConfig, error)
}

// TickResult counts what one tick did.
type TickResult struct {
	Started int
	Stopped int
	Failed  int
}

// Watchdog reconciles the active sources with the manager on a fixed tick.
type Watchdog struct {
	sources  ActiveSourceLister
	interval time.Duration
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu      sync.RWMutex
	manager *Manager
	cron    *cron.Cron
}

// NewWatchdog creates a watchdog. The manager may be attached later with
// SetManager; ticks before that are no-ops.
func NewWatchdog(sources ActiveSourceLister, interval time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Watchdog {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	return &Watchdog{
		sources:  sources,
		interval: interval,
		metrics:  metrics,
		logger:   logger.With("component", "watchdog"),
	}
}

// SetManager attaches (or detaches, with nil) the manager to reconcile.
func (w *Watchdog) SetManager(m *Manager) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.manager = m
}

func (w *Watchdog) currentManager() *Manager {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.manager
}

// Tick runs one reconciliation. Failures of single sources are logged and do
// not stop the rest of the tick.
func (w *Watchdog) Tick(ctx context.Context) TickResult {
	var res TickResult

	mgr := w.currentManager()
	if mgr == nil {
		w.logger.Debug("no manager attached, skipping tick")
		return res
	}

	desired, err := w.sources.ActiveSources(ctx)
	if err != nil {
		w.logger.Warn("loading active sources failed", "error", err)
		return res
	}

	for _, a := range Reconcile(desired, mgr.Running()) {
		if err := w.apply(ctx, mgr, a); err != nil {
			if errors.Is(err, types.ErrLockContention) {
				w.logger.Debug("source locked elsewhere", "source", a.Key)
				continue
			}
			w.logger.Error("watchdog action failed", "action", a.Kind, "source", a.Key, "error", err)
			res.Failed++
			continue
		}
		switch a.Kind {
		case ActionStart:
			res.Started++
		case ActionStop:
			res.Stopped++
		}
	}

	if res.Started+res.Stopped+res.Failed > 0 {
		w.logger.Info("watchdog tick", "started", res.Started, "stopped", res.Stopped, "failed", res.Failed)
	}
	return res
}

func (w *Watchdog) apply(ctx context.Context, mgr *Manager, a Action) error {
	switch a.Kind {
	case ActionStop:
		err := mgr.Stop(a.Key)
		if err == nil || errors.Is(err, types.ErrMonitorStopped) {
			w.metrics.WatchdogAction(string(ActionStop))
			w.logger.Info("stopped inactive source", "source", a.Key)
			return nil
		}
		return err

	case ActionStart:
		if _, err := mgr.Add(a.Source); err != nil && !errors.Is(err, types.ErrMonitorRunning) {
			return err
		}
		started, err := mgr.Start(ctx, a.Source.Name)
		if err != nil {
			return err
		}
		if !started {
			return fmt.Errorf("%w: %s", types.ErrLockContention, a.Source.Name)
		}
		w.metrics.WatchdogAction(string(ActionStart))
		w.logger.Info("started active source", "source", a.Source.Name)
		return nil
	}
	return fmt.Errorf("unknown action %q", a.Kind)
}

// Start schedules Tick every interval until Stop. Overlapping ticks are
// skipped.
func (w *Watchdog) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", w.interval), func() { w.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule watchdog: %w", err)
	}

	w.mu.Lock()
	w.cron = c
	w.mu.Unlock()

	c.Start()
	w.logger.Info("watchdog started", "interval", w.interval)
	return nil
}

// Stop halts the schedule and waits for a running tick to finish.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	w.logger.Info("watchdog stopped")
}
