package middleware

import (
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/guided-traffic/http-body-tracer/internal/bodytrace"
	"github.com/guided-traffic/http-body-tracer/internal/monitoring"
	"github.com/sirupsen/logrus"
)

// BodyTracer logs the body of every traceable request once the handler is done with it
type BodyTracer struct {
	logger    *logrus.Entry
	extractor *bodytrace.Extractor
	encoding  string
	maxChars  int
}

// NewBodyTracer creates a new body tracing middleware. Bodies longer than
// maxChars runes are truncated in the log; 0 disables truncation.
func NewBodyTracer(logger *logrus.Entry, encoding string, maxChars int) *BodyTracer {
	return &BodyTracer{
		logger:    logger,
		extractor: bodytrace.NewExtractor(logger),
		encoding:  encoding,
		maxChars:  maxChars,
	}
}

// Middleware returns the HTTP middleware function
func (bt *BodyTracer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		bt.Trace(r)
	})
}

// Trace extracts and logs the body of r
func (bt *BodyTracer) Trace(r *http.Request) {
	req := bodytrace.FromHTTP(r)
	strategy := bodytrace.SelectStrategy(req)
	monitoring.RecordStrategy(r.Context(), strategy.String())
	if strategy == bodytrace.StrategySkipped {
		return
	}

	body, ok, err := bt.extractor.Extract(req, bt.encoding)

	entry := bt.logger.WithFields(logrus.Fields{
		"trace_id": uuid.NewString(),
		"method":   req.Method,
		"url":      bodytrace.URLWithQuery(req.URL, req.RawQuery),
		"strategy": strategy.String(),
	})

	switch {
	case err != nil:
		monitoring.RecordBodyExtraction(strategy.String(), "error")
		entry.WithError(err).Error("Failed to extract request body")
	case !ok:
		monitoring.RecordBodyExtraction(strategy.String(), "absent")
		entry.Debug("Request body not available for tracing")
	default:
		monitoring.RecordBodyExtraction(strategy.String(), "extracted")
		monitoring.RecordTracedChars(utf8.RuneCountInString(body))
		entry.WithFields(logrus.Fields{
			"content_type": req.ContentType,
			"body":         truncate(body, bt.maxChars),
		}).Info("HTTP request body")
	}
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	return string([]rune(s)[:maxChars]) + "...(truncated)"
}
