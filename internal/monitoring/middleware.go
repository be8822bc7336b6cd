package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// StrategyUntraced labels requests the body tracer never looked at
const StrategyUntraced = "untraced"

// observation collects what inner middlewares learn about a request
type observation struct {
	status   int
	strategy string
}

type observationKey struct{}

// RecordStrategy notes which extraction strategy the tracer chose for the
// request owning ctx. It is a no-op outside HTTPMiddleware.
func RecordStrategy(ctx context.Context, strategy string) {
	if obs, ok := ctx.Value(observationKey{}).(*observation); ok {
		obs.strategy = strategy
	}
}

type statusRecorder struct {
	http.ResponseWriter
	obs *observation
}

func (s *statusRecorder) WriteHeader(code int) {
	s.obs.status = code
	s.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware counts requests per route template, status and tracing strategy
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		obs := &observation{status: http.StatusOK, strategy: StrategyUntraced}

		ActiveConnections.Inc()
		defer ActiveConnections.Dec()

		r = r.WithContext(context.WithValue(r.Context(), observationKey{}, obs))
		next.ServeHTTP(&statusRecorder{ResponseWriter: w, obs: obs}, r)

		endpoint := routeTemplate(r)
		RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(obs.status), obs.strategy).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unknown"
	}
	template, err := route.GetPathTemplate()
	if err != nil {
		return "unknown"
	}
	return template
}
