// Package server provides HTTP server initialization and management.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/AtRiskMedia/preloader-go/internal/application/container"
	"github.com/AtRiskMedia/preloader-go/internal/presentation/http/routes"
)

// Server wraps the HTTP server with configuration and dependency injection
type Server struct {
	httpServer *http.Server
	container  *container.Container
}

// New creates a new HTTP server instance with dependency injection
func New(container *container.Container) *Server {
	cfg := container.Config
	router := routes.SetupRoutes(container)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return &Server{
		httpServer: httpServer,
		container:  container,
	}
}

// Listen binds the listening socket so requests can be accepted as soon as
// Serve runs.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return ln, nil
}

// Serve accepts HTTP requests on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.container.Logger.System().Info("Serving HTTP", "address", ln.Addr().String())

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.container.Logger.Shutdown().Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
