// Package server exposes health probes, the status snapshot and the job API
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/3leaps/edison/internal/errors"
	"github.com/3leaps/edison/internal/server/handlers"
	"github.com/3leaps/edison/internal/server/middleware"
	"github.com/3leaps/edison/pkg/jobs"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the build info served on /version.
func WithVersion(info handlers.VersionInfo) Option {
	return func(s *Server) { s.version = info }
}

// WithHealthManager serves probes from m. Without it the probes report
// healthy with no checks.
func WithHealthManager(m *handlers.HealthManager) Option {
	return func(s *Server) { s.health = m }
}

// WithErrorResponder sets how error responses are written by every route.
// nil keeps handlers.DefaultErrorResponder.
func WithErrorResponder(responder handlers.HTTPErrorResponder) Option {
	return func(s *Server) { s.respondErr = responder }
}

// WithJobs mounts the job endpoints under basePath.
func WithJobs(svc handlers.JobService, basePath string) Option {
	return func(s *Server) {
		s.jobs = svc
		if basePath != "" {
			s.jobsBase = basePath
		}
	}
}

// WithStatus serves the status snapshot on /internal/status.
func WithStatus(source handlers.SnapshotSource) Option {
	return func(s *Server) { s.status = source }
}

// WithTriggerLimit limits job trigger requests to r per second with the
// given burst. r <= 0 disables limiting.
func WithTriggerLimit(r float64, burst int) Option {
	return func(s *Server) {
		if r <= 0 {
			s.triggerLimit = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.triggerLimit = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithTimeouts sets the http.Server timeouts.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.readTimeout, s.writeTimeout, s.idleTimeout = read, write, idle
	}
}

// Server is the HTTP surface of the service.
type Server struct {
	host   string
	port   int
	logger *zap.Logger

	version      handlers.VersionInfo
	respondErr   handlers.HTTPErrorResponder
	health       *handlers.HealthManager
	jobs         handlers.JobService
	jobsBase     string
	status       handlers.SnapshotSource
	triggerLimit *rate.Limiter

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	router     chi.Router
	httpServer *http.Server
}

// New builds the router. The server does not listen until Start.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:         host,
		port:         port,
		logger:       zap.NewNop(),
		version:      handlers.VersionInfo{Version: "dev"},
		jobsBase:     jobs.DefaultURIBase,
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.respondErr == nil {
		s.respondErr = handlers.DefaultErrorResponder
	}
	if s.health == nil {
		s.health = handlers.NewHealthManager(s.version.Version)
	}
	s.health.SetErrorResponder(s.respondErr)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondErr(w, r, apperrors.New(http.StatusNotFound, apperrors.CodeNotFound,
			fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path)))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondErr(w, r, apperrors.New(http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed,
			fmt.Sprintf("method %s not allowed for %s", r.Method, r.URL.Path)))
	})

	r.Get("/health", s.health.HealthHandler)
	r.Get("/health/live", s.health.LivenessHandler)
	r.Get("/health/ready", s.health.ReadinessHandler)
	r.Get("/health/startup", s.health.StartupHandler)
	r.Get("/version", handlers.VersionHandler(s.version))

	if s.status != nil {
		r.Get("/internal/status", handlers.StatusHandler(s.status))
	}

	if s.jobs != nil {
		h := handlers.NewJobHandlers(s.jobs, s.logger).WithErrorResponder(s.respondErr)
		r.Route(s.jobsBase, func(r chi.Router) {
			r.Get("/", h.List)
			r.Delete("/", h.Delete)
			r.Get("/{id}", h.Get)
			r.With(middleware.RateLimit(s.triggerLimit)).Post("/{jobType}", h.Start)
			r.Post("/{id}/kill", h.Kill)
		})
		r.Get("/internal/jobdefinitions", h.Definitions)
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
