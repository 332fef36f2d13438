// Package api exposes the scorers and the model registry over HTTP. It
// serves JSON scoring endpoints, model management endpoints and a
// websocket stream for fraud scoring.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"risk-engine/internal/ensemble"
	"risk-engine/internal/storage"
)

// VersionStore is the artifact store behind the model management routes.
type VersionStore interface {
	ensemble.Source
	Versions(family string) ([]storage.Version, error)
	Activate(family, version string) error
	Rollback(family string) (storage.Version, error)
}

// Metrics records request outcomes and streaming clients.
type Metrics interface {
	RequestInc(route string, code int)
	StreamClientsAdd(delta float64)
}

type noopMetrics struct{}

func (noopMetrics) RequestInc(string, int)   {}
func (noopMetrics) StreamClientsAdd(float64) {}

// Options configures the server.
type Options struct {
	Port           int
	RequestTimeout time.Duration
	StreamPing     time.Duration
}

// Server is the scoring API.
type Server struct {
	reg      *ensemble.Registry
	fraud    *ensemble.FraudScorer
	credit   *ensemble.CreditScorer
	store    VersionStore // nil disables reload and version routes
	metrics  Metrics
	opts     Options
	upgrader websocket.Upgrader
	router   *mux.Router
	server   *http.Server
}

// New builds the router. store and metrics may be nil.
func New(reg *ensemble.Registry, fraud *ensemble.FraudScorer, credit *ensemble.CreditScorer, store VersionStore, metrics Metrics, opts Options) *Server {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.StreamPing <= 0 {
		opts.StreamPing = 15 * time.Second
	}
	s := &Server{
		reg:      reg,
		fraud:    fraud,
		credit:   credit,
		store:    store,
		metrics:  metrics,
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}

	r := mux.NewRouter()
	r.Use(s.requestID, s.instrument)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/fraud/score", s.handleFraudScore).Methods(http.MethodPost)
	v1.HandleFunc("/fraud/explain", s.handleFraudExplain).Methods(http.MethodPost)
	v1.HandleFunc("/fraud/record", s.handleFraudRecord).Methods(http.MethodPost)
	v1.HandleFunc("/fraud/stream", s.handleFraudStream).Methods(http.MethodGet)
	v1.HandleFunc("/credit/assess", s.handleCreditAssess).Methods(http.MethodPost)
	v1.HandleFunc("/credit/explain", s.handleCreditExplain).Methods(http.MethodPost)
	v1.HandleFunc("/credit/rules", s.handleCreditRules).Methods(http.MethodGet)
	v1.HandleFunc("/models", s.handleModels).Methods(http.MethodGet)
	v1.HandleFunc("/models/{family}/drift", s.handleDrift).Methods(http.MethodGet)
	v1.HandleFunc("/models/{family}/versions", s.handleVersions).Methods(http.MethodGet)
	v1.HandleFunc("/models/{family}/reload", s.handleReload).Methods(http.MethodPost)
	v1.HandleFunc("/models/{family}/activate/{version}", s.handleActivate).Methods(http.MethodPost)
	v1.HandleFunc("/models/{family}/rollback", s.handleRollback).Methods(http.MethodPost)
	s.router = r

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           r,
		ReadHeaderTimeout: opts.RequestTimeout,
		ReadTimeout:       opts.RequestTimeout,
		WriteTimeout:      2 * opts.RequestTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("address", s.server.Addr).Msg("Starting scoring API")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
