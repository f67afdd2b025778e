package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/IshaanNene/NewsHound/internal/ai"
	"github.com/IshaanNene/NewsHound/internal/api"
	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/fetcher"
	"github.com/IshaanNene/NewsHound/internal/lock"
	"github.com/IshaanNene/NewsHound/internal/media"
	"github.com/IshaanNene/NewsHound/internal/monitor"
	"github.com/IshaanNene/NewsHound/internal/observability"
	"github.com/IshaanNene/NewsHound/internal/polish"
	"github.com/IshaanNene/NewsHound/internal/scraper"
	"github.com/IshaanNene/NewsHound/internal/storage"
	"github.com/IshaanNene/NewsHound/internal/types"
)

// ShutdownTimeout bounds how long Run waits for loops to finish their last
// cycle once it was asked to stop.
const ShutdownTimeout = 30 * time.Second

// State represents the engine's current lifecycle state.
type State int32

const (
	StateIdle     State = 0
	StateStarting State = 1
	StateRunning  State = 2
	StateStopping State = 3
	StateStopped  State = 4
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Engine owns the shared collaborators (stores, fetchers, rewriter, locks) and
// the lifecycle of the monitors built on top of them.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	locks    *lock.Manager
	sources  *storage.SQLiteSourceStore
	articles storage.ArticleStore
	http     *fetcher.HTTPFetcher
	browser  *fetcher.BrowserFetcher
	media    *media.Downloader
	rewriter ai.Rewriter
	polisher *polish.Polisher
	metrics  *observability.Metrics

	manager  *monitor.Manager
	watchdog *monitor.Watchdog

	state atomic.Int32
}

// New opens the stores and builds the shared collaborators. Nothing runs
// until Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		logger:   logger.With("component", "engine"),
		polisher: polish.New(),
	}

	var err error
	if e.locks, err = lock.NewManager(cfg.Engine.LocksDir, cfg.Engine.MasterLockMaxAge, logger); err != nil {
		return nil, err
	}

	sourcesDSN := cfg.Storage.SourcesDSN
	if sourcesDSN == "" {
		sourcesDSN = cfg.Storage.DSN
	}
	if e.sources, err = storage.NewSQLiteSourceStore(sourcesDSN, cfg.Engine.DefaultInterval, logger); err != nil {
		return nil, fmt.Errorf("open source store: %w", err)
	}

	articles, err := storage.NewArticleStore(ctx, cfg.Storage, logger)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open article store: %w", err)
	}
	e.articles = articles

	if e.http, err = fetcher.NewHTTPFetcher(&cfg.Fetcher, logger); err != nil {
		e.Close()
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	e.browser = fetcher.NewBrowserFetcher(&cfg.Fetcher, logger)

	if e.media, err = media.NewDownloader(cfg.Media, e.http, logger); err != nil {
		e.Close()
		return nil, fmt.Errorf("create media downloader: %w", err)
	}

	if e.rewriter, err = ai.NewRewriter(cfg.AI, logger); err != nil {
		e.logger.Warn("rewrite disabled", "error", err)
		e.rewriter = nil
	}

	if cfg.Metrics.Enabled || cfg.API.Enabled {
		e.metrics = observability.NewMetrics(logger)
	}

	e.manager = monitor.NewManager(e.BuildMonitor, e.sources, e.metrics, logger)
	return e, nil
}

// Sources returns the configuration boundary.
func (e *Engine) Sources() storage.SourceStore { return e.sources }

// Articles returns the persistence boundary.
func (e *Engine) Articles() storage.ArticleStore { return e.articles }

// Locks returns the lock manager.
func (e *Engine) Locks() *lock.Manager { return e.locks }

// Manager returns the monitor registry.
func (e *Engine) Manager() *monitor.Manager { return e.manager }

// GetState returns the current engine state.
func (e *Engine) GetState() State { return State(e.state.Load()) }

// BuildScraper maps a source to its scraper over the shared fetchers.
func (e *Engine) BuildScraper(src config.SourceConfig) (scraper.Scraper, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	return scraper.New(&src, scraper.Deps{
		Fetcher:    e.http,
		Browser:    e.browser,
		Media:      e.media,
		Transcript: e.cfg.Transcript,
		Logger:     e.logger,
	})
}

// BuildMonitor is the monitor factory handed to the manager.
func (e *Engine) BuildMonitor(src config.SourceConfig) (*monitor.Monitor, error) {
	return e.buildMonitor(src, e.articles)
}

func (e *Engine) buildMonitor(src config.SourceConfig, store storage.ArticleStore) (*monitor.Monitor, error) {
	s, err := e.BuildScraper(src)
	if err != nil {
		return nil, err
	}
	opts := monitor.Options{
		Store:        store,
		Polisher:     e.polisher,
		Locks:        e.locks,
		Metrics:      e.metrics,
		ErrorBackoff: e.cfg.Engine.ErrorBackoff,
		SeenTTL:      e.cfg.Engine.SeenTTL,
		Logger:       e.logger,
	}
	if e.rewriter != nil {
		opts.Rewriter = e.rewriter
	}
	return monitor.New(src, s, opts), nil
}

// Check runs a single cycle for one source outside of any loop. With out set,
// new articles are written there as JSON lines instead of being persisted.
func (e *Engine) Check(ctx context.Context, name string, out io.Writer) (monitor.CheckResult, error) {
	src, err := e.sources.Get(ctx, name)
	if err != nil {
		return monitor.CheckResult{}, err
	}

	store := e.articles
	if out != nil {
		store = storage.NewJSONLStore(out, e.articles, e.logger)
	}
	m, err := e.buildMonitor(*src, store)
	if err != nil {
		return monitor.CheckResult{}, err
	}
	return m.Check(ctx)
}

// Run takes the master lock, starts the active sources (only those named in
// only, when given) and the watchdog, and blocks until ctx is cancelled. On
// return every monitor has been stopped and the master lock released.
func (e *Engine) Run(ctx context.Context, only ...string) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return fmt.Errorf("engine is in state %s, cannot start", State(e.state.Load()))
	}
	defer e.state.Store(int32(StateStopped))

	master := e.locks.MasterLock()
	ok, err := master.TryAcquire()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: monitors are being started by another process", types.ErrLockContention)
	}
	defer master.Release()
	e.logger.Info("master lock acquired", "path", master.Path())

	jobs, err := e.scheduleMaintenance(master)
	if err != nil {
		return err
	}
	defer func() { <-jobs.Stop().Done() }()

	if _, err := e.locks.Sweep(e.cfg.Engine.StaleLockAge); err != nil {
		e.logger.Warn("stale lock sweep failed", "error", err)
	}

	if d := e.cfg.Engine.StartupDelay; d > 0 {
		e.logger.Info("delaying monitor startup", "delay", d)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil
		}
	}

	lister := newSourceFilter(e.sources, only)
	if err := e.startSources(ctx, lister); err != nil {
		return err
	}

	e.watchdog = monitor.NewWatchdog(lister, e.cfg.Engine.WatchdogInterval, e.metrics, e.logger)
	e.watchdog.SetManager(e.manager)
	if err := e.watchdog.Start(ctx); err != nil {
		e.manager.StopAll()
		return err
	}

	e.serve(ctx)

	e.state.Store(int32(StateRunning))
	e.logger.Info("engine running", "monitors", e.manager.Len())

	<-ctx.Done()
	e.state.Store(int32(StateStopping))
	e.logger.Info("engine stopping...")
	e.shutdown()
	return nil
}

func (e *Engine) startSources(ctx context.Context, lister monitor.ActiveSourceLister) error {
	active, err := lister.ActiveSources(ctx)
	if err != nil {
		return fmt.Errorf("load active sources: %w", err)
	}
	if len(active) == 0 {
		e.logger.Warn("no active sources configured")
	}

	for _, src := range active {
		if _, err := e.manager.Add(src); err != nil {
			e.logger.Error("adding monitor failed", "source", src.Name, "error", err)
			continue
		}
		e.logger.Info("monitor added", "source", src.Name, "interval", src.Interval)
	}

	for name, started := range e.manager.StartAll(ctx) {
		if !started {
			e.logger.Warn("monitor not started", "source", name)
		}
	}
	return nil
}

// scheduleMaintenance keeps the master lock fresh while we own it and sweeps
// lock files left behind by dead processes.
func (e *Engine) scheduleMaintenance(master *lock.Lock) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))

	refresh := e.cfg.Engine.MasterLockMaxAge / 2
	if refresh < time.Second {
		refresh = time.Second
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", refresh), func() {
		if err := master.Refresh(); err != nil {
			e.logger.Warn("master lock refresh failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule master lock refresh: %w", err)
	}

	if age := e.cfg.Engine.StaleLockAge; age > 0 {
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", age), func() {
			if _, err := e.locks.Sweep(age); err != nil {
				e.logger.Warn("stale lock sweep failed", "error", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("schedule lock sweep: %w", err)
		}
	}

	c.Start()
	return c, nil
}

// serve starts the metrics and API listeners, both tied to ctx.
func (e *Engine) serve(ctx context.Context) {
	if e.cfg.Metrics.Enabled && e.metrics != nil {
		if err := e.metrics.StartServer(ctx, e.cfg.Metrics.Port, e.cfg.Metrics.Path); err != nil {
			e.logger.Error("metrics server failed", "error", err)
		}
	}
	if e.cfg.API.Enabled {
		srv := api.NewServer(e.cfg.API.Port, e.manager, e.metrics, e.logger)
		if err := srv.Start(ctx); err != nil {
			e.logger.Error("API server failed", "error", err)
		}
	}
}

func (e *Engine) shutdown() {
	if e.watchdog != nil {
		e.watchdog.Stop()
	}
	stopped := e.manager.StopAll()
	e.logger.Info("monitors stopped", "count", len(stopped))

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := e.manager.Wait(ctx); err != nil {
		e.logger.Warn("monitors still finishing their last cycle", "error", err)
	}
}

// Close releases the stores and fetchers.
func (e *Engine) Close() error {
	var errs []error
	if e.http != nil {
		errs = append(errs, e.http.Close())
	}
	if e.browser != nil {
		errs = append(errs, e.browser.Close())
	}
	if e.articles != nil {
		errs = append(errs, e.articles.Close())
	}
	if e.sources != nil {
		errs = append(errs, e.sources.Close())
	}
	return errors.Join(errs...)
}

// sourceFilter narrows the active sources to an explicit set of names.
type sourceFilter struct {
	lister monitor.ActiveSourceLister
	only   map[string]bool
}

func newSourceFilter(lister monitor.ActiveSourceLister, names []string) *sourceFilter {
	f := &sourceFilter{lister: lister}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			if f.only == nil {
				f.only = make(map[string]bool)
			}
			f.only[config.SourceKey(n)] = true
		}
	}
	return f
}

func (f *sourceFilter) ActiveSources(ctx context.Context) ([]config.SourceConfig, error) {
	all, err := f.lister.ActiveSources(ctx)
	if err != nil || f.only == nil {
		return all, err
	}
	out := all[:0]
	for _, src := range all {
		if f.only[src.Key()] {
			out = append(out, src)
		}
	}
	return out, nil
}
