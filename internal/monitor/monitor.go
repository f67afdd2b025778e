// Package monitor runs one polling loop per source and keeps the set of running
// loops in line with the operator's active sources.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/lock"
	"github.com/IshaanNene/NewsHound/internal/observability"
	"github.com/IshaanNene/NewsHound/internal/pipeline"
	"github.com/IshaanNene/NewsHound/internal/polish"
	"github.com/IshaanNene/NewsHound/internal/scraper"
	"github.com/IshaanNene/NewsHound/internal/storage"
	"github.com/IshaanNene/NewsHound/internal/types"
)

// DefaultErrorBackoff is the pause after a failed cycle.
const DefaultErrorBackoff = 60 * time.Second

// Options are the collaborators shared by all monitors.
type Options struct {
	Store    storage.ArticleStore
	Rewriter pipeline.Rewriter // nil disables rewriting
	Polisher *polish.Polisher
	Locks    *lock.Manager // nil runs without a lock file
	Metrics  *observability.Metrics

	ErrorBackoff time.Duration
	SeenTTL      time.Duration
	Logger       *slog.Logger
}

// CheckResult summarizes one cycle.
type CheckResult struct {
	Scraped         int
	Persisted       int
	Duplicates      int
	Deferred        int
	Dropped         int
	Errors          int
	RewriteFailures int
	Duration        time.Duration
}

// Status is a point-in-time view of a monitor.
type Status struct {
	Name      string        `json:"name"`
	Kind      config.Kind   `json:"kind"`
	Running   bool          `json:"running"`
	Seen      int           `json:"seen"`
	Interval  time.Duration `json:"interval"`
	LastCheck time.Time     `json:"last_check,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Monitor owns one scraper and its polling loop.
type Monitor struct {
	src      config.SourceConfig
	scraper  scraper.Scraper
	store    storage.ArticleStore
	polisher *polish.Polisher
	pipe     *pipeline.Pipeline
	lock     *lock.Lock
	seen     *SeenRegistry
	metrics  *observability.Metrics
	backoff  time.Duration
	logger   *slog.Logger

	rewriteFailures atomic.Int64
	checkMu         sync.Mutex

	mu        sync.Mutex
	running   bool
	stop      chan struct{}
	done      chan struct{}
	lastCheck time.Time
	lastErr   error
}

// New builds a monitor for src around s. Nothing runs until Start.
func New(src config.SourceConfig, s scraper.Scraper, opts Options) *Monitor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Polisher == nil {
		opts.Polisher = polish.New()
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}

	m := &Monitor{
		src:      src,
		scraper:  s,
		store:    opts.Store,
		polisher: opts.Polisher,
		seen:     NewSeenRegistry(opts.SeenTTL),
		metrics:  opts.Metrics,
		backoff:  opts.ErrorBackoff,
		logger:   opts.Logger.With("component", "monitor", "source", src.Name),
	}
	if opts.Locks != nil {
		m.lock = opts.Locks.SourceLock(src.Key())
	}
	m.pipe = m.buildPipeline(opts.Rewriter)
	return m
}

func (m *Monitor) buildPipeline(r pipeline.Rewriter) *pipeline.Pipeline {
	p := pipeline.New(m.logger)

	full := &pipeline.FullContentMiddleware{Source: m.scraper}
	if d, ok := m.scraper.(scraper.Deferrer); ok {
		full.Deferrer = d
	}
	p.Use(full)

	if m.src.AIRewrite && r != nil {
		p.Use(pipeline.NewRewriteMiddleware(r, m.promptFor, m.polisher, func(error) {
			m.rewriteFailures.Add(1)
		}, m.logger))
	}

	p.Use(&pipeline.PolishMiddleware{Polisher: m.polisher})
	p.Use(&pipeline.RequiredFieldsMiddleware{})
	return p
}

// promptFor routes social-type mail to the source's social prompt.
func (m *Monitor) promptFor(item *types.Item) string {
	if m.src.Email != nil && m.src.Email.SocialPrompt != "" &&
		item.GetMeta(types.MetaContentType) == scraper.ContentSocial {
		return m.src.Email.SocialPrompt
	}
	return m.src.AIPrompt
}

// Name returns the source name.
func (m *Monitor) Name() string { return m.src.Name }

// Key returns the normalized source key.
func (m *Monitor) Key() string { return m.src.Key() }

// Source returns the configuration snapshot the monitor was built with.
func (m *Monitor) Source() config.SourceConfig { return m.src }

// Seen returns the in-process dedup registry.
func (m *Monitor) Seen() *SeenRegistry { return m.seen }

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start takes the source lock and spawns the loop. It returns false without
// waiting when another owner holds the lock, or when the previous loop of this
// monitor is still finishing its last cycle.
func (m *Monitor) Start(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return false, types.ErrMonitorRunning
	}
	if m.done != nil {
		select {
		case <-m.done:
		default:
			m.logger.Info("previous loop still finishing, not starting")
			return false, nil
		}
	}

	if m.lock != nil {
		ok, err := m.lock.TryAcquire()
		if err != nil {
			return false, err
		}
		if !ok {
			m.logger.Info("source locked by another process, not starting", "lock", m.lock.Path())
			return false, nil
		}
	}

	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(ctx, m.stop, m.done)

	m.logger.Info("monitor started", "kind", m.src.Kind, "interval", m.src.Interval)
	return true, nil
}

// Stop flips the running flag and releases the lock. A cycle in progress is
// not interrupted; the loop exits once it completes.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return types.ErrMonitorStopped
	}
	m.running = false
	close(m.stop)

	if m.lock != nil {
		if err := m.lock.Release(); err != nil {
			m.logger.Warn("releasing lock failed", "error", err)
		}
	}
	m.logger.Info("monitor stopped")
	return nil
}

// Done is closed when the current loop has exited. It is nil before the first
// Start.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// finishing reports a stopped monitor whose loop has not exited yet.
func (m *Monitor) finishing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

func (m *Monitor) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		wait := m.src.Interval
		if _, err := m.safeCheck(ctx); err != nil {
			m.logger.Error("check failed, backing off", "error", err, "backoff", m.backoff)
			m.metrics.CycleFailed(m.src.Name)
			wait = m.backoff
		}

		if m.lock != nil && !m.lock.Intact() {
			select {
			case <-stop:
			default:
				m.logger.Error("source lock lost, stopping loop", "lock", m.lock.Path())
				m.markStopped(stop)
			}
			return
		}

		timer.Reset(wait)
		select {
		case <-stop:
			return
		case <-ctx.Done():
			m.markStopped(stop)
			return
		case <-timer.C:
		}
	}
}

// markStopped ends a loop that exits on its own, unless Stop already did.
func (m *Monitor) markStopped(stop <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.stop != stop {
		return
	}
	m.running = false
	close(m.stop)
	if m.lock != nil {
		m.lock.Release()
	}
}

// safeCheck turns a panic inside one cycle into an error.
func (m *Monitor) safeCheck(ctx context.Context) (res CheckResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in check: %v", r)
		}
	}()
	return m.Check(ctx)
}

// Check runs one cycle: scrape, skip items already seen or stored, then fetch,
// rewrite, polish and persist the rest. Item-level failures are counted and
// logged; a store failure aborts the cycle and is returned. Calls are
// serialized.
func (m *Monitor) Check(ctx context.Context) (CheckResult, error) {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	start := time.Now()
	m.rewriteFailures.Store(0)

	res, handled, err := m.check(ctx)

	if len(handled) > 0 {
		if ack, ok := m.scraper.(scraper.Acknowledger); ok {
			if aerr := ack.Ack(ctx, handled); aerr != nil {
				m.logger.Warn("acknowledging items failed", "items", len(handled), "error", aerr)
			}
		}
	}

	res.RewriteFailures = int(m.rewriteFailures.Load())
	res.Duration = time.Since(start)

	m.mu.Lock()
	m.lastCheck = time.Now()
	m.lastErr = err
	m.mu.Unlock()

	m.metrics.ObserveCycle(m.src.Name, observability.CycleStats{
		Scraped:         res.Scraped,
		Persisted:       res.Persisted,
		Duplicates:      res.Duplicates,
		Errors:          res.Errors,
		RewriteFailures: res.RewriteFailures,
		Duration:        res.Duration,
	})
	m.logger.Info("check complete",
		"scraped", res.Scraped,
		"persisted", res.Persisted,
		"duplicates", res.Duplicates,
		"deferred", res.Deferred,
		"errors", res.Errors,
		"rewrite_failures", res.RewriteFailures,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, err
}

// check returns the items that were dealt with for good alongside the counts.
func (m *Monitor) check(ctx context.Context) (CheckResult, []*types.Item, error) {
	var (
		res     CheckResult
		handled []*types.Item
	)

	items := m.scraper.Scrape(ctx)
	res.Scraped = len(items)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, handled, err
		}
		if item == nil || item.URL == "" {
			continue
		}

		if m.seen.IsSeen(item.URL) {
			res.Duplicates++
			handled = append(handled, item)
			continue
		}

		// Stored source URLs are always canonical.
		sourceURL := types.CanonicalizeURL(item.URL)
		exists, err := m.store.ExistsBySourceURL(ctx, sourceURL)
		if err != nil {
			return res, handled, fmt.Errorf("existence check for %s: %w", sourceURL, err)
		}
		if exists {
			m.seen.MarkSeen(item.URL)
			res.Duplicates++
			handled = append(handled, item)
			continue
		}

		d, err := m.pipe.Process(ctx, pipeline.NewDraft(item))
		switch {
		case errors.Is(err, types.ErrLiveStream):
			m.logger.Info("item deferred", "url", item.URL)
			res.Deferred++
			continue
		case err != nil:
			m.logger.Warn("item failed", "url", item.URL, "error", err)
			res.Errors++
			continue
		case d == nil:
			m.logger.Debug("item dropped", "url", item.URL)
			m.seen.MarkSeen(item.URL)
			res.Dropped++
			handled = append(handled, item)
			continue
		}

		article := storage.NewArticle(m.polisher, d.Title, d.Body, m.src.Category, sourceURL, item.ImageURL, m.src.AutoApprove)
		if !item.PublishedAt.IsZero() {
			article.PublishedAt = item.PublishedAt
		}
		id, err := m.store.Create(ctx, article)
		if errors.Is(err, types.ErrDuplicate) {
			m.seen.MarkSeen(item.URL)
			res.Duplicates++
			handled = append(handled, item)
			continue
		}
		if err != nil {
			return res, handled, fmt.Errorf("persist %s: %w", sourceURL, err)
		}

		m.seen.MarkSeen(item.URL)
		res.Persisted++
		handled = append(handled, item)
		m.logger.Info("article created", "id", id, "title", d.Title, "rewritten", d.Rewritten, "approved", article.Approved)
	}

	if n := m.seen.Prune(); n > 0 {
		m.logger.Debug("pruned seen fingerprints", "removed", n)
	}
	return res, handled, nil
}

// Status returns a snapshot of the monitor.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		Name:      m.src.Name,
		Kind:      m.src.Kind,
		Running:   m.running,
		Seen:      m.seen.Count(),
		Interval:  m.src.Interval,
		LastCheck: m.lastCheck,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}
