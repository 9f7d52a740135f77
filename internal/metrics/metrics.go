// Package metrics provides Prometheus metrics for the advisor service,
// exported at /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts requests by method, route and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ccopt",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method/path/status",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ccopt",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RecommendationRequests counts recommendation listings served.
	RecommendationRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ccopt",
			Name:      "recommendation_requests_total",
			Help:      "Total recommendation listings computed",
		},
	)

	// InferenceLatency tracks classifier scoring duration.
	InferenceLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ccopt",
			Name:      "inference_latency_seconds",
			Help:      "Latency of downsize classifier scoring",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ModelInfo exposes the loaded artifact version as a labelled gauge
	// pinned to 1.
	ModelInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ccopt",
			Name:      "model_info",
			Help:      "Loaded classifier artifact (value is always 1)",
		},
		[]string{"model_version"},
	)

	// VerifyActions counts right-sizing verification attempts by result
	// (verified/mismatch/error).
	VerifyActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ccopt",
			Name:      "verify_actions_total",
			Help:      "Verification attempts by result",
		},
		[]string{"result"},
	)

	// IngestedSamples counts utilization observations stored, by source.
	IngestedSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ccopt",
			Name:      "ingested_samples_total",
			Help:      "Utilization observations stored, by ingestion source",
		},
		[]string{"source"},
	)
)

// RecordHTTPRequest records one completed request.
func RecordHTTPRequest(method, path string, status int, seconds float64) {
	HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// SetModelInfo pins the info gauge to the loaded version, clearing any
// previously exported version label.
func SetModelInfo(modelVersion string) {
	ModelInfo.Reset()
	if modelVersion != "" {
		ModelInfo.WithLabelValues(modelVersion).Set(1)
	}
}

// IncVerifyResult counts one verification outcome.
func IncVerifyResult(result string) {
	VerifyActions.WithLabelValues(result).Inc()
}
