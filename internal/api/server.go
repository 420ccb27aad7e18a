// Package api exposes builds, build results and cross-reference queries
// over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"srcweb/internal/analysis"
	"srcweb/internal/build"
	"srcweb/internal/config"
	"srcweb/internal/editor"
	"srcweb/internal/filecache"
	"srcweb/internal/jobs"
	"srcweb/internal/pull"
	"srcweb/internal/query"
)

// Deps are the process-wide services the handlers use. Jobs may be nil
// when history is disabled, Editor when no edit command is configured.
type Deps struct {
	Config     *config.Config
	ProjectDir string
	Host       *analysis.Host
	Query      *query.Engine
	Files      *filecache.Cache
	Pull       *pull.Cache
	Builds     *build.Orchestrator
	Jobs       *jobs.Runner
	Editor     *editor.Launcher
	Logger     *slog.Logger
}

// Server represents the HTTP API server
type Server struct {
	Deps
	router  *http.ServeMux
	server  *http.Server
	addr    string
	started time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		Deps:    deps,
		addr:    addr,
		router:  http.NewServeMux(),
		started: time.Now(),
	}

	s.registerRoutes()

	// No WriteTimeout: /build and /pull?wait=1 hold responses open.
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.applyMiddleware(s.router),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.Logger.Info("Starting HTTP server", "addr", s.addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("Shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	handler = RecoveryMiddleware(s.Logger)(handler)
	handler = LoggingMiddleware(s.Logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware()(handler)
	return handler
}
