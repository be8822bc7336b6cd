package echo

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/guided-traffic/http-body-tracer/internal/bodytrace"
	"github.com/sirupsen/logrus"
)

// Response describes what the handler received
type Response struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	Query      string `json:"query,omitempty"`
	Bytes      int64  `json:"bytes"`
	FormFields int    `json:"form_fields,omitempty"`
}

// Handler consumes request bodies the way an application would and reports
// what it saw. It is the downstream consumer the body tracer must not disturb.
type Handler struct {
	logger *logrus.Entry
}

// NewHandler creates a new echo handler
func NewHandler(logger *logrus.Entry) *Handler {
	return &Handler{
		logger: logger,
	}
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := Response{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
	}

	if bodytrace.IsFormURLEncoded(r.Header.Get("Content-Type")) {
		if err := r.ParseForm(); err != nil {
			h.logger.WithError(err).Debug("Failed to parse form body")
			http.Error(w, "malformed form body", http.StatusBadRequest)
			return
		}
		resp.FormFields = len(r.PostForm)
	} else if r.Body != nil {
		n, err := bodytrace.CopyBytes(io.Discard, r.Body)
		if err != nil {
			h.logger.WithError(err).Error("Failed to read request body")
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		resp.Bytes = n
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.WithError(err).Error("Failed to write echo response")
	}
}
