package server

import (
	"github.com/guided-traffic/http-body-tracer/internal/server/middleware"
)

// setupMiddleware sets up the middleware for the server
func (s *Server) setupMiddleware() {
	s.requestTracker = middleware.NewRequestTracker(s.logger)
	s.httpLogger = middleware.NewLogger(s.logger, s.config.LogHealthRequests)

	traceLogger := s.logger.WithField("component", "body-tracer")
	s.bodyBuffer = middleware.NewBodyBuffer(traceLogger)
	s.bodyTracer = middleware.NewBodyTracer(traceLogger, s.config.Trace.Encoding, s.config.Trace.MaxLoggedChars)
}
