package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Noofbiz/fluCast/features"
	"github.com/Noofbiz/fluCast/forecast"
	"github.com/Noofbiz/fluCast/store"
	"github.com/Noofbiz/fluCast/waves"
)

// Options carries the server's data dependencies. Evaluation may be nil, the
// forecast endpoints then report not found. Store may be nil, the run
// history endpoints are then not routed at all.
type Options struct {
	Table      *features.Table
	Evaluation *forecast.Evaluation
	Store      *store.Store
	Metrics    *Metrics
	Logger     *slog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *Metrics

	table      *features.Table
	eval       *forecast.Evaluation
	runs       *store.Store
	thresholds waves.Thresholds
}

// New assembles the router and the underlying http.Server.
func New(cfg Config, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	s := &Server{
		logger:     logger,
		metrics:    metrics,
		table:      opts.Table,
		eval:       opts.Evaluation,
		runs:       opts.Store,
		thresholds: cfg.Thresholds(),
	}
	if s.table != nil {
		metrics.DatasetRows.Set(float64(s.table.NumRows()))
		metrics.DatasetStates.Set(float64(len(s.table.States())))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/states", s.handleStates)
		r.Get("/seasons", s.handleSeasons)
		r.Get("/rates", s.handleRates)
		r.Get("/waves", s.handleWaves)
		r.Get("/evaluation", s.handleEvaluation)
		r.Get("/forecast/{season}", s.handleForecast)
		if s.runs != nil {
			r.Get("/waves/stored", s.handleStoredWaves)
			r.Get("/runs", s.handleRuns)
			r.Get("/runs/{id}", s.handleRun)
			r.Get("/runs/{id}/results", s.handleRunResults)
			r.Get("/runs/{id}/predictions", s.handleRunPredictions)
		}
	})

	r.Get("/plots/{chart}.png", s.handlePlot)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// instrument records the request counter and an access log line per request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.table == nil || s.table.NumRows() == 0 {
		s.renderError(w, r, http.StatusServiceUnavailable, "feature table not loaded")
		return
	}
	if s.runs != nil {
		if err := s.runs.Ping(r.Context()); err != nil {
			s.renderError(w, r, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}
