// Package api exposes the control surface of the fleet orchestrator as an
// HTTP/JSON service: a placement RPC, a routing RPC, a cycle-trigger RPC,
// and read-only fleet state. Every response carries explicit success or
// failure fields; nothing is signalled through logs.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signalsfoundry/fleet-orchestrator/core"
	"github.com/signalsfoundry/fleet-orchestrator/internal/logging"
	"github.com/signalsfoundry/fleet-orchestrator/model"
	"github.com/signalsfoundry/fleet-orchestrator/registry"
)

// FleetCore is the slice of the engine the API needs.
type FleetCore interface {
	Place(ctx context.Context, serviceName string, replicas int) ([]string, error)
	Reconcile(ctx context.Context, serviceName string, target int) (core.ScaleResult, error)
	SubmitRequest(ctx context.Context, origin, contentID string) core.RoutingResult
	RunCycle(ctx context.Context) (core.CycleSummary, error)
	Snapshot() model.FleetSnapshot
}

// PoolReader is the read-only registry slice the API needs.
type PoolReader interface {
	GetPool(id string) (model.Pool, error)
	ListPools(filter registry.PoolFilter) []model.Pool
}

// MetricsSource provides the /metrics handler and per-route middleware.
// Satisfied by observability.FleetCollector; nil disables both.
type MetricsSource interface {
	Handler() http.Handler
	Middleware(route string) func(http.Handler) http.Handler
}

// Server serves the control API.
type Server struct {
	log     logging.Logger
	fleet   FleetCore
	pools   PoolReader
	metrics MetricsSource
	addr    string

	server *http.Server
}

// New builds a server listening on addr (e.g. ":8080").
func New(log logging.Logger, fleet FleetCore, pools PoolReader, metrics MetricsSource, addr string) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{
		log:     log,
		fleet:   fleet,
		pools:   pools,
		metrics: metrics,
		addr:    addr,
	}
}

// Routes assembles the chi router. Exposed separately so tests can drive
// the handlers without a listening socket.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogging)

	r.Get("/-/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.With(s.instrument("/v1/placements")).Post("/placements", s.handlePlace)
		r.With(s.instrument("/v1/scale")).Post("/scale", s.handleScale)
		r.With(s.instrument("/v1/route")).Post("/route", s.handleRoute)
		r.With(s.instrument("/v1/cycles")).Post("/cycles", s.handleRunCycle)
		r.With(s.instrument("/v1/snapshot")).Get("/snapshot", s.handleSnapshot)
		r.With(s.instrument("/v1/pools")).Get("/pools", s.handleListPools)
		r.With(s.instrument("/v1/pools/{poolID}")).Get("/pools/{poolID}", s.handleGetPool)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return r
}

func (s *Server) instrument(route string) func(http.Handler) http.Handler {
	if s.metrics == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.metrics.Middleware(route)
}

// requestLogging attaches a request_id to the context and logs one line
// per request.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, log := logging.WithRequestLogger(r.Context(), s.log)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		log.Debug(ctx, "request handled",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Any("duration", time.Since(start)),
		)
	})
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info(context.Background(), "control API listening", logging.String("addr", s.addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control API: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
