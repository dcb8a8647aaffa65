// Package httpapi exposes the ingestion pipeline over HTTP.
//
// Routes:
//
//	POST /api/ingest-user   enrich and store one profile
//	GET  /api/users/{fid}   read back a stored profile (without embedding)
//	GET  /healthz, /readyz  liveness and readiness checks
//	GET  /metrics           Prometheus scrape endpoint
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/frameingest/internal/health"
	"github.com/MrWong99/frameingest/internal/ingest"
	"github.com/MrWong99/frameingest/internal/observe"
	"github.com/MrWong99/frameingest/internal/profile"
	"github.com/MrWong99/frameingest/pkg/profilestore"
)

const (
	// DefaultMaxBodyBytes caps the ingestion request body.
	DefaultMaxBodyBytes = 1 << 20

	// DefaultRetryAfter is advertised on transient enrichment failures.
	DefaultRetryAfter = 5 * time.Second
)

// Ingester runs one ingestion. *ingest.Pipeline satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, req profile.Request) (*ingest.Result, error)
}

// ProfileReader loads stored profiles. profilestore.Store satisfies it.
type ProfileReader interface {
	Get(ctx context.Context, fid int64) (*profilestore.Profile, error)
}

// Server holds the handlers and their dependencies.
type Server struct {
	ingester       Ingester
	reader         ProfileReader
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	maxBodyBytes   int64
	retryAfter     time.Duration
	requestTimeout time.Duration
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records HTTP metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMaxBodyBytes overrides [DefaultMaxBodyBytes].
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

// WithRetryAfter overrides [DefaultRetryAfter].
func WithRetryAfter(d time.Duration) Option {
	return func(s *Server) { s.retryAfter = d }
}

// WithRequestTimeout bounds every ingestion. Zero means only the client's
// own disconnect ends a request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// New creates a Server. reader may be nil, in which case the read-back
// route is not mounted.
func New(ing Ingester, reader ProfileReader, opts ...Option) *Server {
	s := &Server{
		ingester:     ing,
		reader:       reader,
		maxBodyBytes: DefaultMaxBodyBytes,
		retryAfter:   DefaultRetryAfter,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Routes returns the router with all endpoints mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	if s.health != nil {
		s.health.Register(r)
	}
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest-user", s.handleIngest)
		if s.reader != nil {
			r.Get("/users/{fid}", s.handleGetUser)
		}
	})
	return r
}
