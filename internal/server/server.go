package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/me/wftemplates/internal/config"
	"github.com/me/wftemplates/internal/store"
	"github.com/me/wftemplates/pkg/model"
)

// Templates is the read side of the template repository.
type Templates interface {
	Get(id string) (*model.Template, bool)
	List() []*model.Template
	Len() int
}

// Server is the workflow template REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.Config
	baseURL   string
	startTime time.Time
	templates Templates
	store     store.Store  // optional; load history
	metrics   http.Handler // optional; Prometheus exposition
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore enables the load history endpoints.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a new Server with all routes registered under the
// configured application path.
func New(cfg config.Config, templates Templates, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		baseURL:   cfg.BaseURL(),
		startTime: time.Now(),
		templates: templates,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverer(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	api := chi.NewRouter()
	api.NotFound(handleNotFound)
	api.MethodNotAllowed(handleMethodNotAllowed)

	// Template API
	api.Get("/", s.handleServiceDescriptor)
	api.Get("/templates", s.handleListTemplates)
	api.Get("/templates/{id}", s.handleGetTemplate)

	// Operations
	api.Get("/health", s.handleHealth)
	if s.metrics != nil {
		api.Handle("/metrics", s.metrics)
	}
	api.Route("/loads", func(r chi.Router) {
		r.Get("/", s.handleListLoads)
		r.Get("/{id}", s.handleGetLoad)
	})

	prefix := s.config.Server.AppPath
	if prefix == "" {
		prefix = "/"
	}
	r.Mount(prefix, api)
}
