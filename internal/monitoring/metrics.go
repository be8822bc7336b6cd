package monitoring

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// KubernetesLabels holds Kubernetes metadata labels
var (
	kubernetesNamespace = os.Getenv("KUBERNETES_NAMESPACE")
	kubernetesPodName   = os.Getenv("KUBERNETES_POD_NAME")
	helmReleaseName     = os.Getenv("HELM_RELEASE_NAME")
	helmChartVersion    = os.Getenv("HELM_CHART_VERSION")
)

// getKubernetesLabels returns the Kubernetes labels for metrics
func getKubernetesLabels() prometheus.Labels {
	labels := prometheus.Labels{}

	if kubernetesNamespace != "" {
		labels["kubernetes_namespace"] = kubernetesNamespace
	}
	if kubernetesPodName != "" {
		labels["kubernetes_pod_name"] = kubernetesPodName
	}
	if helmReleaseName != "" {
		labels["helm_release"] = helmReleaseName
	}
	if helmChartVersion != "" {
		labels["helm_chart_version"] = helmChartVersion
	}

	return labels
}

// Registry with Kubernetes labels
var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(prometheus.WrapRegistererWith(getKubernetesLabels(), registry))
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	// HTTP Request metrics
	RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbt_requests_total",
			Help: "Total number of HTTP requests by body tracing strategy",
		},
		[]string{"method", "endpoint", "status_code", "strategy"},
	)

	RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hbt_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ActiveConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "hbt_active_connections",
			Help: "Number of active connections",
		},
	)

	// Body tracing metrics
	BodyExtractionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hbt_body_extractions_total",
			Help: "Body extraction attempts by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	TracedCharacters = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "hbt_traced_characters_total",
			Help: "Characters of request bodies written to the trace log",
		},
	)

	BufferedBytes = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hbt_buffered_body_bytes",
			Help:    "Bytes held in memory per buffered request body",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		},
	)

	// Server metrics
	ServerInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hbt_server_info",
			Help: "Server build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// Registry returns the registry holding all tracer metrics
func Registry() *prometheus.Registry {
	return registry
}

// SetServerInfo sets server build information
func SetServerInfo(version, commit, buildTime string) {
	ServerInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// RecordBodyExtraction counts one extraction attempt
func RecordBodyExtraction(strategy, outcome string) {
	BodyExtractionsTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordTracedChars adds to the traced characters counter
func RecordTracedChars(n int) {
	TracedCharacters.Add(float64(n))
}

// RecordBufferedBytes observes the size of a buffered body
func RecordBufferedBytes(n int) {
	BufferedBytes.Observe(float64(n))
}
