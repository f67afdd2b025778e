package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/dashboard"
	"github.com/IshaanNene/NewsHound/internal/monitor"
	"github.com/IshaanNene/NewsHound/internal/observability"
	"github.com/IshaanNene/NewsHound/internal/types"
)

// Server provides a REST API for inspecting and controlling running monitors.
type Server struct {
	router  *chi.Mux
	port    int
	manager *monitor.Manager
	metrics *observability.Metrics
	logger  *slog.Logger

	// loops started through the API run under this context
	baseCtx context.Context
}

// NewServer creates a new API server. metrics may be nil, in which case
// /metrics is not mounted.
func NewServer(port int, manager *monitor.Manager, metrics *observability.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		port:    port,
		manager: manager,
		metrics: metrics,
		logger:  logger.With("component", "api_server"),
		baseCtx: context.Background(),
	}

	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves the API until ctx is cancelled. Monitors started through the
// API inherit ctx.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("API server starting", "addr", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Method(http.MethodGet, "/", dashboard.Handler())
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)

	r.Route("/api/monitors/{name}", func(r chi.Router) {
		r.Get("/", s.handleMonitor)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not initialized"})
		return
	}
	statuses := s.manager.Status()
	running := 0
	for _, st := range statuses {
		if st.Running {
			running++
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"running":  running,
		"total":    len(statuses),
		"monitors": statuses,
	})
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not initialized"})
		return
	}
	name := chi.URLParam(r, "name")
	m, ok := s.manager.Get(name)
	if !ok {
		s.jsonResponse(w, http.StatusNotFound, map[string]string{"error": "monitor not found"})
		return
	}
	s.jsonResponse(w, http.StatusOK, m.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not initialized"})
		return
	}
	name := chi.URLParam(r, "name")
	started, err := s.manager.Start(s.baseCtx, name)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if !started {
		s.jsonResponse(w, http.StatusConflict, map[string]string{"error": "source is locked by another process"})
		return
	}
	s.logger.Info("monitor started via API", "source", name)
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "started", "source": name})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not initialized"})
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.manager.Stop(name); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.logger.Info("monitor stopped via API", "source", name)
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "stopped", "source": name})
}

func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrMonitorNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrMonitorRunning),
		errors.Is(err, types.ErrMonitorStopped),
		errors.Is(err, types.ErrLockContention):
		status = http.StatusConflict
	}
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
