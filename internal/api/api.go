// Package api exposes the challenge engine over HTTP.
//
// It provides RESTful endpoints for the challenge catalog, enrollment
// lifecycle, daily record submission, and progress views, plus health and
// metrics endpoints for operations.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumohealth/challenge-engine/internal/ingest"
	"github.com/lumohealth/challenge-engine/internal/lifecycle"
	"github.com/lumohealth/challenge-engine/internal/store"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server wires HTTP handlers to the engine modules.
type Server struct {
	st       store.Store
	manager  *lifecycle.Manager
	ingestor *ingest.Ingestor
	httpSrv  *http.Server
}

// NewServer creates an API server over the given engine modules.
func NewServer(st store.Store, manager *lifecycle.Manager, ingestor *ingest.Ingestor, opts ...Option) *Server {
	cfg := Opts{Addr: ":8080"}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{st: st, manager: manager, ingestor: ingestor}

	mux := http.NewServeMux()
	mux.HandleFunc("/challenges", s.challengesHandler)
	mux.HandleFunc("/challenges/join", s.joinHandler)
	mux.HandleFunc("/enrollments", s.enrollmentsHandler)
	mux.HandleFunc("/enrollments/approve", s.approveHandler)
	mux.HandleFunc("/enrollments/cancel", s.cancelHandler)
	mux.HandleFunc("/records", s.recordsHandler)
	mux.HandleFunc("/progress", s.progressHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("API server listening", "addr", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down")
	return s.httpSrv.Shutdown(ctx)
}
