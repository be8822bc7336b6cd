package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// RequestTracker counts in-flight requests for graceful shutdown
type RequestTracker struct {
	logger *logrus.Entry
	active atomic.Int64
}

// NewRequestTracker creates a new request tracker middleware
func NewRequestTracker(logger *logrus.Entry) *RequestTracker {
	return &RequestTracker{
		logger: logger,
	}
}

// Active returns the number of requests currently being served
func (rt *RequestTracker) Active() int64 {
	return rt.active.Load()
}

// Middleware returns the HTTP middleware function
func (rt *RequestTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := rt.active.Add(1)
		defer rt.active.Add(-1)

		rt.logger.WithField("active_requests", n).Trace("Request started")
		next.ServeHTTP(w, r)
	})
}
