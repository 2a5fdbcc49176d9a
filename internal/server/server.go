package server

import (
	"log/slog"
	"net/http"

	"github.com/claude/fittrack/internal/metrics"
	"github.com/claude/fittrack/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds dependencies for the record API handlers.
type Server struct {
	store    storage.RecordStore
	log      *slog.Logger
	apiKey   string
	metrics  *metrics.HTTP
	gatherer prometheus.Gatherer
	identity func(http.Handler) http.Handler
	router   chi.Router
}

// Options configures optional parts of the server.
type Options struct {
	// APIKey guards the record routes when non-empty.
	APIKey string
	// Metrics and Gatherer enable request metrics and /metrics.
	Metrics  *metrics.HTTP
	Gatherer prometheus.Gatherer
	// Identity resolves the caller; DevIdentity when nil.
	Identity func(http.Handler) http.Handler
}

// New creates a new Server with all routes configured.
func New(store storage.RecordStore, opts Options, log *slog.Logger) *Server {
	s := &Server{
		store:    store,
		log:      log,
		apiKey:   opts.APIKey,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		identity: opts.Identity,
		router:   chi.NewRouter(),
	}
	if s.identity == nil {
		s.identity = DevIdentity
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	if s.metrics != nil {
		s.router.Use(RequestMetrics(s.metrics))
	}
	s.router.Use(CORS)
	s.router.Use(s.identity)

	s.router.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	s.router.Get("/api/v1/me", s.handleMe)

	s.router.Route("/api/v1/tables/{table}/records", func(r chi.Router) {
		if s.apiKey != "" {
			r.Use(APIKeyAuth(s.apiKey))
		}
		r.Get("/", s.handleListRecords)
		r.Get("/{id}", s.handleGetRecord)
		r.Post("/", s.handleCreateRecords)
		r.Patch("/", s.handleUpdateRecords)
		r.Delete("/", s.handleDeleteRecords)
	})
}
