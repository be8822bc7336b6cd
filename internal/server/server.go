package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/guided-traffic/http-body-tracer/internal/config"
	"github.com/guided-traffic/http-body-tracer/internal/server/handlers/health"
	"github.com/guided-traffic/http-body-tracer/internal/server/middleware"
	"github.com/sirupsen/logrus"
)

// Server is the HTTP server whose request bodies are traced
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	logger     *logrus.Entry

	requestTracker *middleware.RequestTracker
	bodyBuffer     *middleware.BodyBuffer
	bodyTracer     *middleware.BodyTracer
	httpLogger     *middleware.Logger
	healthHandler  *health.Handler

	shutdownMu        sync.RWMutex
	shutdownInitiated bool
	shutdownTime      time.Time
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("failed to create server: config is nil")
	}

	logger := logrus.WithField("component", "server")

	server := &Server{
		router: mux.NewRouter(),
		config: cfg,
		logger: logger,
	}
	server.setupMiddleware()
	server.setupRoutes(server.router)

	server.httpServer = &http.Server{
		Addr:         cfg.BindAddress,
		Handler:      server.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetBuildInfo sets the version reported by the version endpoint
func (s *Server) SetBuildInfo(version, commit string) {
	s.healthHandler.SetBuildInfo(version, commit)
}

// Start starts the server and blocks until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	serverErrChan := make(chan error, 1)
	go func() {
		if s.config.TLS.Enabled {
			s.logger.WithFields(logrus.Fields{
				"address":   s.config.BindAddress,
				"cert_file": s.config.TLS.CertFile,
				"key_file":  s.config.TLS.KeyFile,
			}).Info("Starting HTTPS server")

			if err := s.httpServer.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
				serverErrChan <- fmt.Errorf("HTTPS server failed: %w", err)
			}
		} else {
			s.logger.WithField("address", s.config.BindAddress).Info("Starting HTTP server")
			if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrChan <- fmt.Errorf("HTTP server failed: %w", err)
			}
		}
	}()

	select {
	case err := <-serverErrChan:
		return err
	case <-ctx.Done():
	}

	s.markShutdown()
	s.logger.WithField("active_requests", s.requestTracker.Active()).Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.config.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Failed to gracefully shutdown server")
		return err
	}

	s.logger.Info("Server stopped")
	return nil
}

func (s *Server) markShutdown() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	s.shutdownInitiated = true
	s.shutdownTime = time.Now()
}

// shutdownState reports whether shutdown has started and when
func (s *Server) shutdownState() (bool, time.Time) {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.shutdownInitiated, s.shutdownTime
}
