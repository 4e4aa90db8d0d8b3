// Package api implements the Status API (spec.md §4.7, C7): a read-only
// HTTP surface plus start/stop control, bounded-time, never blocking on
// the poller.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/shieldedusdc/relayer/internal/chain"
	"github.com/shieldedusdc/relayer/internal/config"
	"github.com/shieldedusdc/relayer/internal/metrics"
	"github.com/shieldedusdc/relayer/internal/store"
)

// Server is the Status API's HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// PollerHeartbeat is the subset of *attestation.Poller the health check
// needs to detect a stalled poller goroutine, kept as an interface so
// api does not need to import attestation.
type PollerHeartbeat interface {
	LastTickAt() time.Time
	Interval() time.Duration
}

// Deps bundles everything the Status API's handlers need to read a
// consistent snapshot without touching the poller directly.
type Deps struct {
	Config    *config.Config
	Store     *store.Store
	Metrics   *metrics.Registry
	IsRunning *atomic.Bool
	// Connectors holds one chain.Connector per configured chain, keyed
	// by chain name, used only by /health's per-chain reachability
	// checks (never by the hot request/dispatch path).
	Connectors map[string]chain.Connector
	// Poller reports the Attestation Poller's tick heartbeat for the
	// /health "poller" liveness check.
	Poller PollerHeartbeat
	// OnStart/OnStop are invoked by POST /start and POST /stop. They
	// must return quickly; long-running work happens on the
	// Supervisor's own goroutines, not the request goroutine.
	OnStart func() error
	OnStop  func() error
}

// pollerStaleAfter bounds how many missed ticks the "poller" health
// check tolerates before reporting unhealthy.
const pollerStaleAfter = 4

// New builds a Server bound to addr (":PORT"). Routes are registered
// per spec.md §4.7, plus GET /metrics (SPEC_FULL.md §4.7 addition).
func New(addr string, deps Deps, logger *zap.Logger) *Server {
	router := mux.NewRouter()
	h := &handlers{deps: deps, logger: logger.With(zap.String("component", "status-api"))}

	checker := health.NewChecker(
		append(h.perChainChecks(), health.WithCheck(health.Check{
			Name: "poller",
			Check: func(ctx context.Context) error {
				return h.pollerHealth()
			},
		}))...,
	)
	h.healthChecker = checker

	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/pending", h.handlePending).Methods(http.MethodGet)
	router.HandleFunc("/start", h.handleStart).Methods(http.MethodPost)
	router.HandleFunc("/stop", h.handleStop).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run starts serving and blocks until ctx is cancelled, then shuts down
// gracefully within a short grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
