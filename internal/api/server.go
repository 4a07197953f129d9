package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/driveflow/driveflow-api/internal/config"
)

// Server wraps the HTTP listener serving the task API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router and the listener around it.
func NewServer(cfg config.ServerConfig, tasks *TaskHandler, quota *QuotaHandler, health *HealthHandler, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewRouter(tasks, quota, health),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger.With("component", "http_server"),
	}
}

// ListenAndServe blocks serving requests until Shutdown is called or the
// listener fails.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("draining HTTP server")
	return s.httpServer.Shutdown(ctx)
}
