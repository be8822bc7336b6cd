package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler handles health and version endpoints
type Handler struct {
	logger               *logrus.Entry
	logHealthRequests    bool
	shutdownStateHandler func() (bool, time.Time)
	activeRequests       func() int64
	version              string
	commit               string
}

// NewHandler creates a new health handler
func NewHandler(logger *logrus.Entry, logHealthRequests bool) *Handler {
	return &Handler{
		logger:            logger,
		logHealthRequests: logHealthRequests,
		version:           "dev",
		commit:            "unknown",
	}
}

// SetShutdownStateHandler sets the handler to check shutdown state
func (h *Handler) SetShutdownStateHandler(handler func() (bool, time.Time)) {
	h.shutdownStateHandler = handler
}

// SetActiveRequests sets the source of the in-flight request count
func (h *Handler) SetActiveRequests(active func() int64) {
	h.activeRequests = active
}

// SetBuildInfo sets the version reported by the version endpoint
func (h *Handler) SetBuildInfo(version, commit string) {
	h.version = version
	h.commit = commit
}

// Health handles the health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.logHealthRequests {
		h.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
		}).Debug("Health check request")
	}

	var active int64
	if h.activeRequests != nil {
		active = h.activeRequests()
	}

	w.Header().Set("Content-Type", "application/json")

	if h.shutdownStateHandler != nil {
		if shutdownInitiated, shutdownTime := h.shutdownStateHandler(); shutdownInitiated {
			w.WriteHeader(http.StatusServiceUnavailable)

			response := map[string]interface{}{
				"status":          "shutting_down",
				"shutdown_time":   shutdownTime.Format(time.RFC3339),
				"active_requests": active,
				"message":         "Server is shutting down gracefully",
			}

			if err := json.NewEncoder(w).Encode(response); err != nil {
				h.logger.WithError(err).Error("Failed to write health response")
			}
			return
		}
	}

	w.WriteHeader(http.StatusOK)

	response := map[string]interface{}{
		"status":          "healthy",
		"active_requests": active,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to write health response")
	}
}

// Version handles the version endpoint
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	if h.logHealthRequests {
		h.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
		}).Debug("Version check request")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]string{
		"version": h.version,
		"commit":  h.commit,
		"service": "http-body-tracer",
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to write version response")
	}
}
