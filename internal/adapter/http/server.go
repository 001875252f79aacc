// Package http exposes the ETL process's operational endpoints:
// liveness, snapshot readiness, and Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/sapflow-etl/internal/config"
)

// readinessTimeout bounds one readiness probe. The check is an in-memory
// flag read; anything slower means the process is wedged, not busy.
const readinessTimeout = 2 * time.Second

// ReadinessChecker reports whether the pipeline has published at least
// one aggregate snapshot. Implemented by pipeline.Pipeline.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// probeResponse is the JSON body of the liveness and readiness probes.
// Reason is set only when the probe fails, carrying the checker's
// explanation (e.g. no snapshot published yet).
type probeResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Server serves /healthz, /readyz, and /metrics for the ETL process.
type Server struct {
	httpServer *http.Server
	checker    ReadinessChecker
	logger     *slog.Logger
}

// NewServer builds the operational HTTP server on cfg.HTTPAddr with the
// configured connection timeouts.
func NewServer(cfg *config.Config, checker ReadinessChecker, logger *slog.Logger) *Server {
	s := &Server{checker: checker, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleHealthz reports process liveness. It says nothing about whether
// snapshots are flowing; that is the readiness probe's job.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, probeResponse{Status: "healthy"})
}

// handleReadyz reports 200 once the pipeline has published a snapshot,
// 503 with the checker's reason until then. Orchestrators use this to
// hold traffic off a freshly started consumer that is still rebalancing.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := s.checker.CheckReadiness(ctx); err != nil {
		s.logger.Debug("readiness probe failed", "reason", err)
		s.respond(w, http.StatusServiceUnavailable, probeResponse{
			Status: "not ready",
			Reason: err.Error(),
		})
		return
	}
	s.respond(w, http.StatusOK, probeResponse{Status: "ready"})
}

func (s *Server) respond(w http.ResponseWriter, status int, body probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("write probe response failed", "error", err)
	}
}
