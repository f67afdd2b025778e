package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/lock"
	"github.com/IshaanNene/NewsHound/internal/monitor"
	"github.com/IshaanNene/NewsHound/internal/observability"
	"github.com/IshaanNene/NewsHound/internal/storage"
	"github.com/IshaanNene/NewsHound/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type idleScraper struct{}

func (idleScraper) Scrape(context.Context) []*types.Item { return nil }
func (idleScraper) FetchFullContent(context.Context, string) (string, bool) { return "", false }

type nopStore struct {
	mu   sync.Mutex
	urls map[string]bool
}

func (s *nopStore) Name() string { return "nop" }
func (s *nopStore) Close() error { return nil }

func (s *nopStore) ExistsBySourceURL(_ context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.urls[url], nil
}

func (s *nopStore) Create(_ context.Context, a *storage.Article) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.urls == nil {
		s.urls = make(map[string]bool)
	}
	s.urls[a.SourceURL] = true
	return a.SourceURL, nil
}

func newTestServer(t *testing.T) (*Server, *monitor.Manager, *lock.Manager) {
	t.Helper()
	locks, err := lock.NewManager(t.TempDir(), time.Minute, testLogger)
	require.NoError(t, err)

	store := &nopStore{}
	factory := func(src config.SourceConfig) (*monitor.Monitor, error) {
		return monitor.New(src, idleScraper{}, monitor.Options{Store: store, Locks: locks, Logger: testLogger}), nil
	}
	mg := monitor.NewManager(factory, nil, nil, testLogger)
	for _, name := range []string{"Comune", "Youtube"} {
		_, err := mg.Add(config.SourceConfig{
			Name:     name,
			Kind:     config.KindWordPress,
			BaseURL:  "https://example.it",
			Interval: time.Hour,
			Active:   true,
		})
		require.NoError(t, err)
	}
	t.Cleanup(func() { mg.StopAll() })

	metrics := observability.NewMetrics(testLogger)
	return NewServer(0, mg, metrics, testLogger), mg, locks
}

func do(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec, body := do(t, s, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, config.Version, body["version"])
}

func TestStartStopMonitor(t *testing.T) {
	s, mg, _ := newTestServer(t)

	rec, body := do(t, s, http.MethodPost, "/api/monitors/Comune/start")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "started", body["status"])

	m, ok := mg.Get("Comune")
	require.True(t, ok)
	assert.True(t, m.Running())

	rec, _ = do(t, s, http.MethodPost, "/api/monitors/Comune/start")
	assert.Equal(t, http.StatusConflict, rec.Code, "already running")

	rec, body = do(t, s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["running"])
	assert.EqualValues(t, 2, body["total"])
	monitors, ok := body["monitors"].([]any)
	require.True(t, ok)
	first := monitors[0].(map[string]any)
	assert.Equal(t, "Comune", first["name"])
	assert.Equal(t, true, first["running"])

	rec, body = do(t, s, http.MethodGet, "/api/monitors/Comune")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Comune", body["name"])

	rec, _ = do(t, s, http.MethodPost, "/api/monitors/Comune/stop")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, m.Running())

	rec, _ = do(t, s, http.MethodPost, "/api/monitors/Comune/stop")
	assert.Equal(t, http.StatusConflict, rec.Code, "already stopped")
}

func TestUnknownMonitor(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, path := range []string{"/api/monitors/Nessuno/start", "/api/monitors/Nessuno/stop"} {
		rec, body := do(t, s, http.MethodPost, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, body["error"], "monitor not found")
	}
	rec, _ := do(t, s, http.MethodGet, "/api/monitors/Nessuno")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartLockedElsewhere(t *testing.T) {
	s, _, locks := newTestServer(t)

	held := locks.SourceLock("youtube")
	ok, err := held.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Release()

	rec, body := do(t, s, http.MethodPost, "/api/monitors/Youtube/start")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body["error"], "locked")
}

func TestMetricsEndpoint(t *testing.T) {
	s, mg, _ := newTestServer(t)
	_, err := mg.Start(context.Background(), "Comune")
	require.NoError(t, err)

	rec, _ := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "newshound_monitors_running")
}

func TestNilManager(t *testing.T) {
	s := NewServer(0, nil, nil, testLogger)
	rec, _ := do(t, s, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardPage(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec, _ := do(t, s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/api/status")
	assert.Contains(t, rec.Body.String(), "NewsHound "+config.Version)
}
