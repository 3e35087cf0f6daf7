// Package httpapi serves reduced job histories and snapshots over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"jobevents/internal/model"
	"jobevents/internal/pipeline"
	"jobevents/internal/sessionkey"
	"jobevents/internal/storage"
)

// SnapshotLoader returns a materialized job snapshot as JSON.
type SnapshotLoader interface {
	LoadJobSnapshot(ctx context.Context, jobID string) (json.RawMessage, bool, error)
}

// Config wires the server's dependencies. Snapshots and Gatherer are optional.
type Config struct {
	Events         storage.EventSource
	Snapshots      SnapshotLoader
	Pipeline       *pipeline.Pipeline
	Keys           sessionkey.Keys
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

type Server struct {
	cfg    Config
	router chi.Router
	logger *zap.Logger
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = pipeline.New(nil, pipeline.Config{Logger: cfg.Logger})
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	srv := &Server{cfg: cfg, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(srv.requestLogger)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", srv.handleHealth)
	r.Get("/jobs/{jobID}", srv.handleJob)
	r.Get("/jobs/{jobID}/events", srv.handleJobEvents)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	srv.router = r
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("req_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("dur", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleJobEvents returns the enriched event sequence of a job. Content is resolved
// only when ?resolve=true is given.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	raw, ok := s.loadEvents(w, r, jobID)
	if !ok {
		return
	}

	var events []model.JobEventWithDiffs
	if resolve := strings.ToLower(r.URL.Query().Get("resolve")); resolve == "true" || resolve == "1" {
		events = s.cfg.Pipeline.ProcessAndResolve(r.Context(), jobID, raw, s.cfg.Keys)
	} else {
		events = s.cfg.Pipeline.Process(jobID, raw)
	}
	writeJSON(w, http.StatusOK, events)
}

// handleJob serves the materialized snapshot when one exists and otherwise reduces
// the job's events on the fly.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if s.cfg.Snapshots != nil {
		snapshot, found, err := s.cfg.Snapshots.LoadJobSnapshot(r.Context(), jobID)
		if err != nil {
			s.logger.Warn("load snapshot", zap.String("job_id", jobID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load snapshot")
			return
		}
		if found {
			writeJSON(w, http.StatusOK, snapshot)
			return
		}
	}

	raw, ok := s.loadEvents(w, r, jobID)
	if !ok {
		return
	}
	events := s.cfg.Pipeline.Process(jobID, raw)
	writeJSON(w, http.StatusOK, events[len(events)-1].Job)
}

func (s *Server) loadEvents(w http.ResponseWriter, r *http.Request, jobID string) ([]model.RawEvent, bool) {
	if s.cfg.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "no event source configured")
		return nil, false
	}
	raw, err := s.cfg.Events.LoadJobEvents(r.Context(), jobID)
	if err != nil {
		s.logger.Warn("load job events", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job events")
		return nil, false
	}
	if len(raw) == 0 {
		writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	return raw, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
