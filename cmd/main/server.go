package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/CTAG07/tplsource/pkg/provider"
)

// Server exposes one Provider over HTTP.
type Server struct {
	config      *Config
	logger      *slog.Logger
	p           *provider.Provider
	templateAPI *TemplateAPI
	serverAPI   *ServerAPI
	apiMux      *http.ServeMux
}

// NewServer wires the API handlers for p onto a fresh mux.
func NewServer(config *Config, logger *slog.Logger, p *provider.Provider) *Server {
	server := &Server{
		config:      config,
		logger:      logger,
		p:           p,
		templateAPI: NewTemplateAPI(p, config, logger),
		serverAPI:   NewServerAPI(logger),
		apiMux:      http.NewServeMux(),
	}
	server.templateAPI.RegisterRoutes(server.apiMux)
	server.serverAPI.RegisterRoutes(server.apiMux)
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.apiMux
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.ApiAddr,
		Handler:           s.apiMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting template api server", "address", httpServer.Addr, "root", s.p.Root())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok {
			s.logger.Error("Api server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Stopping api server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Api server shutdown failed", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped.")
	return nil
}
