// Package api exposes scans, progress and findings over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"git.home.luguber.info/inful/linkscan/internal/foundation/errors"
	"git.home.luguber.info/inful/linkscan/internal/model"
	"git.home.luguber.info/inful/linkscan/internal/progress"
	"git.home.luguber.info/inful/linkscan/internal/store"
)

// ScanService is the scan lifecycle driven by the API.
type ScanService interface {
	Start(ctx context.Context, req model.ScanRequest) (model.ScanID, error)
	Stop(ctx context.Context, id model.ScanID) error
	Progress(ctx context.Context, id model.ScanID) (progress.Snapshot, error)
	Current() (model.ScanID, bool)
}

// Options configures a Server.
type Options struct {
	Addr  string
	Scans ScanService
	Store store.Store
	// Defaults fill fields a start request leaves out.
	Defaults    model.ScanRequest
	CORSOrigins []string
	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
	Logger      *slog.Logger
}

// Server is the API server.
type Server struct {
	Addr     string
	router   *chi.Mux
	server   *http.Server
	scans    ScanService
	store    store.Store
	defaults model.ScanRequest
	errs     *errors.HTTPErrorAdapter
	logger   *slog.Logger
}

// NewServer creates a server with all routes mounted.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Addr:     opts.Addr,
		router:   chi.NewRouter(),
		scans:    opts.Scans,
		store:    opts.Store,
		defaults: opts.Defaults.Normalize(),
		errs:     errors.NewHTTPErrorAdapter(logger),
		logger:   logger,
	}
	s.setupRoutes(opts)

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	s.router.Get("/health", s.handleHealth)
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.Method(http.MethodGet, path, opts.Metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post("/scans", s.handleStartScan)
		r.Get("/scans", s.handleListScans)
		r.Get("/scans/current", s.handleCurrentScan)
		r.Get("/scans/{id}", s.handleGetScan)
		r.Get("/scans/{id}/progress", s.handleProgress)
		r.Post("/scans/{id}/stop", s.handleStopScan)

		r.Get("/findings", s.handleListFindings)
		r.Post("/findings/{id}/fix", s.handleFixFinding)
		r.Get("/export", s.handleExport)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("API server listening", slog.String("addr", s.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Response is the envelope of successful responses.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// Success writes a success response.
func (s *Server) Success(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

// Error writes a classified error response.
func (s *Server) Error(w http.ResponseWriter, r *http.Request, err error) {
	s.errs.WriteErrorResponse(w, r, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
