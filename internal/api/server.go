// Package api exposes the assessment engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abhisek/riskdrill/internal/catalog"
	"github.com/abhisek/riskdrill/internal/itemgen"
	"github.com/abhisek/riskdrill/internal/session"
)

// Checker reports the health of one dependency.
type Checker func(ctx context.Context) error

// Deps are the collaborators of a Server. Sessions and Generator are
// required.
type Deps struct {
	Sessions  *session.Orchestrator
	Generator itemgen.Generator
	Catalog   *catalog.Catalog

	// Checks are run by /healthz, keyed by dependency name.
	Checks map[string]Checker

	// Registry backs /metrics and the HTTP metrics. Nil disables both.
	Registry *prometheus.Registry

	// RequestTimeout bounds every request. Zero means 60s.
	RequestTimeout time.Duration
}

// Server is the HTTP API server.
type Server struct {
	sessions  *session.Orchestrator
	generator itemgen.Generator
	catalog   *catalog.Catalog
	checks    map[string]Checker
	registry  *prometheus.Registry
	metrics   *httpMetrics
	timeout   time.Duration
	router    *chi.Mux
}

// NewServer creates a Server and configures its routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		sessions:  deps.Sessions,
		generator: deps.Generator,
		catalog:   deps.Catalog,
		checks:    deps.Checks,
		registry:  deps.Registry,
		timeout:   deps.RequestTimeout,
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	if s.registry != nil {
		s.metrics = mustNewHTTPMetrics(s.registry)
	}
	s.setupRouter()
	return s
}

// Router returns the configured router.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleStartSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Post("/responses", s.handleSubmitResponse)
				r.Post("/pause", s.handlePause)
				r.Post("/resume", s.handleResume)
				r.Post("/abandon", s.handleAbandon)
				r.Post("/finalize", s.handleFinalize)
				r.Get("/results", s.handleResults)
				r.Post("/reviews", s.handleReview)
			})
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Get("/{id}", s.handleGetTemplate)
		})

		r.Post("/items/generate", s.handleGenerateItems)
	})

	s.router = r
}
