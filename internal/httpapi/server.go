// Package httpapi exposes job and execution management over HTTP: CRUD on
// job definitions, paginated run history, per-job stats, a websocket event
// stream and Prometheus metrics. All JSON endpoints answer with a
// {code, data, message} envelope.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"researchd/internal/store"
	logx "researchd/pkg/logx"
)

const (
	defaultReadRate  = 60 // requests per minute per client
	defaultWriteRate = 30
)

// Tracker is the scheduler-side state the API reads and pokes.
type Tracker interface {
	Executing() int
	Forget(jobID int64)
}

type Config struct {
	Addr            string
	ReadRatePerMin  int
	WriteRatePerMin int
}

type Server struct {
	cfg     Config
	jobs    *store.JobRepository
	execs   *store.ExecutionRepository
	tracker Tracker
	events  http.Handler
	log     logx.Logger

	srv   *http.Server
	start time.Time
}

func NewServer(cfg Config, jobs *store.JobRepository, execs *store.ExecutionRepository, tracker Tracker, events http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.ReadRatePerMin == 0 {
		cfg.ReadRatePerMin = defaultReadRate
	}
	if cfg.WriteRatePerMin == 0 {
		cfg.WriteRatePerMin = defaultWriteRate
	}
	s := &Server{
		cfg:     cfg,
		jobs:    jobs,
		execs:   execs,
		tracker: tracker,
		events:  events,
		log:     log,
		start:   time.Now(),
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the full router. Exposed so tests can drive the handlers
// through httptest without binding a port.
func (s *Server) Routes() http.Handler {
	reads := rateLimit(newLimiterPool(s.cfg.ReadRatePerMin))
	writes := rateLimit(newLimiterPool(s.cfg.WriteRatePerMin))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		if s.events != nil {
			r.Handle("/events", s.events)
		}

		r.Route("/jobs", func(r chi.Router) {
			r.With(reads).Get("/", s.handleListJobs)
			r.With(writes).Post("/", s.handleCreateJob)
			r.Route("/{id}", func(r chi.Router) {
				r.With(reads).Get("/", s.handleGetJob)
				r.With(writes).Put("/", s.handleUpdateJob)
				r.With(writes).Delete("/", s.handleDeleteJob)
				r.With(writes).Post("/toggle", s.handleToggleJob)
				r.With(reads).Get("/executions/latest", s.handleLatestExecution)
				r.With(reads).Get("/stats", s.handleJobStats)
			})
		})

		r.Route("/executions", func(r chi.Router) {
			r.With(reads).Get("/", s.handleListExecutions)
			r.With(reads).Get("/{id}", s.handleGetExecution)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Start binds and serves until Shutdown. Blocks; run it under the
// supervisor.
func (s *Server) Start() error {
	s.log.Info("http api listening", logx.String("addr", s.cfg.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.start) / time.Second),
		"runs_in_flight": s.tracker.Executing(),
	})
}
