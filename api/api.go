// Package api exposes the s4 HTTP surface: the authenticated identity
// check and the SQL execution endpoint, plus health and metrics.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"s4/config"
	"s4/storage"
)

// SQLStore is the storage surface the gateway depends on. One call to
// Query covers the whole per-request connection lifecycle: acquire,
// execute, materialize, release.
type SQLStore interface {
	Query(ctx context.Context, sqlText string) ([]storage.RowRecord, error)
	Ping(ctx context.Context) error
}

// rateLimiterEntry holds a rate limiter with last seen time.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// API holds the gateway HTTP server.
type API struct {
	router   *mux.Router
	server   *http.Server
	store    SQLStore
	instance *config.InstanceConfig
	config   *config.Config
	logger   *zap.SugaredLogger

	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
}

// New creates the gateway API. The instance configuration is read-only
// after this point; the secret it carries gates every protected route.
func New(store SQLStore, instance *config.InstanceConfig, cfg *config.Config, logger *zap.SugaredLogger) *API {
	a := &API{
		router:       mux.NewRouter(),
		store:        store,
		instance:     instance,
		config:       cfg,
		logger:       logger,
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	a.setupRoutes()
	go a.cleanupRateLimiters()
	return a
}

// setupRoutes wires the routes. Ordering is fixed: request ID and rate
// limiting run on everything; the secret-key gate runs before any
// database work on the protected routes. Health and metrics stay open.
func (a *API) setupRoutes() {
	a.router.Use(a.requestIDMiddleware)
	a.router.Use(a.recoverMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	protected := a.router.PathPrefix("/").Subrouter()
	protected.Use(a.secretKeyMiddleware)
	protected.HandleFunc("/", a.verifyConnection).Methods("GET")
	protected.HandleFunc("/api/sql", a.executeSQL).Methods("POST")
}

// Handler returns the root handler, used by tests and embedding
// servers.
func (a *API) Handler() http.Handler {
	return a.router
}

// Start starts the API server.
func (a *API) Start(addr string) error {
	a.server = &http.Server{
		Addr:    addr,
		Handler: a.router,
	}
	return a.server.ListenAndServe()
}

// Stop stops the API server.
func (a *API) Stop(ctx context.Context) error {
	close(a.stopCh)
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}
