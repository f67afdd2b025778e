// Package observability exposes the engine's Prometheus metrics.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks per-source monitor activity. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Item metrics
	ItemsScraped   *prometheus.CounterVec
	ItemsPersisted *prometheus.CounterVec
	ItemsDuplicate *prometheus.CounterVec

	// Cycle metrics
	CycleErrors     *prometheus.CounterVec
	RewriteFailures *prometheus.CounterVec
	CycleDuration   *prometheus.HistogramVec

	// Engine metrics
	MonitorsRunning prometheus.Gauge
	WatchdogActions *prometheus.CounterVec

	registry *prometheus.Registry
	logger   *slog.Logger
}

// NewMetrics registers all metrics on a fresh registry, together with the Go
// and process collectors.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		ItemsScraped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newshound_items_scraped_total",
			Help: "Items returned by scrapers",
		}, []string{"source"}),
		ItemsPersisted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newshound_items_persisted_total",
			Help: "Articles created in the store",
		}, []string{"source"}),
		ItemsDuplicate: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newshound_items_duplicate_total",
			Help: "Items skipped because they were seen or already stored",
		}, []string{"source"}),
		CycleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newshound_cycle_errors_total",
			Help: "Items or cycles that failed",
		}, []string{"source"}),
		RewriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newshound_rewrite_failures_total",
			Help: "Rewrites that fell back to the original text",
		}, []string{"source"}),
		CycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newshound_cycle_duration_seconds",
			Help:    "Duration of one check cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"source"}),
		MonitorsRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "newshound_monitors_running",
			Help: "Monitors currently running",
		}),
		WatchdogActions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "newshound_watchdog_actions_total",
			Help: "Actions taken by the watchdog",
		}, []string{"action"}),
		registry: reg,
		logger:   logger.With("component", "metrics"),
	}
}

// CycleStats is what one check cycle reports.
type CycleStats struct {
	Scraped         int
	Persisted       int
	Duplicates      int
	Errors          int
	RewriteFailures int
	Duration        time.Duration
}

// ObserveCycle records a finished cycle for source.
func (m *Metrics) ObserveCycle(source string, s CycleStats) {
	if m == nil {
		return
	}
	m.ItemsScraped.WithLabelValues(source).Add(float64(s.Scraped))
	m.ItemsPersisted.WithLabelValues(source).Add(float64(s.Persisted))
	m.ItemsDuplicate.WithLabelValues(source).Add(float64(s.Duplicates))
	m.CycleErrors.WithLabelValues(source).Add(float64(s.Errors))
	m.RewriteFailures.WithLabelValues(source).Add(float64(s.RewriteFailures))
	m.CycleDuration.WithLabelValues(source).Observe(s.Duration.Seconds())
}

// CycleFailed counts a cycle that aborted before processing items.
func (m *Metrics) CycleFailed(source string) {
	if m == nil {
		return
	}
	m.CycleErrors.WithLabelValues(source).Inc()
}

// SetMonitorsRunning sets the running monitor gauge.
func (m *Metrics) SetMonitorsRunning(n int) {
	if m == nil {
		return
	}
	m.MonitorsRunning.Set(float64(n))
}

// WatchdogAction counts one reconcile action ("start", "stop", "restart").
func (m *Metrics) WatchdogAction(action string) {
	if m == nil {
		return
	}
	m.WatchdogActions.WithLabelValues(action).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// StartServer serves metrics on port until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}
