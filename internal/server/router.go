package server

import (
	"github.com/gorilla/mux"
	"github.com/guided-traffic/http-body-tracer/internal/monitoring"
	"github.com/guided-traffic/http-body-tracer/internal/server/handlers/echo"
	"github.com/guided-traffic/http-body-tracer/internal/server/handlers/health"
)

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes(router *mux.Router) {
	if s.config.Monitoring.Enabled {
		router.Use(monitoring.HTTPMiddleware)
	}
	router.Use(s.requestTracker.Middleware)

	s.healthHandler = health.NewHandler(s.logger, s.config.LogHealthRequests)
	s.healthHandler.SetShutdownStateHandler(s.shutdownState)
	s.healthHandler.SetActiveRequests(s.requestTracker.Active)

	// Health and version endpoints are never traced
	healthRouter := router.NewRoute().Subrouter()
	healthRouter.HandleFunc("/health", s.healthHandler.Health).Methods("GET")
	healthRouter.HandleFunc("/version", s.healthHandler.Version).Methods("GET")

	// Everything else is served by the echo handler with body tracing.
	// Order matters: the body is buffered before the tracer runs.
	appRouter := router.NewRoute().Subrouter()
	if s.config.Trace.Enabled {
		if s.config.Trace.BufferBodies {
			appRouter.Use(s.bodyBuffer.Middleware)
		}
		appRouter.Use(s.bodyTracer.Middleware)
	}
	appRouter.Use(s.httpLogger.Middleware)

	echoHandler := echo.NewHandler(s.logger)
	appRouter.PathPrefix("/").Handler(echoHandler)
}
