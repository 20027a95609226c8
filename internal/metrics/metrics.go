// Package metrics provides Prometheus metrics for the content pipelines and
// the article API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "guidesync"

var (
	// PipelineRecords counts pipeline records by outcome.
	PipelineRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_records_total",
			Help:      "Records handled by the import and export pipelines",
		},
		[]string{"pipeline", "outcome"},
	)

	// PipelineDuration measures whole pipeline runs.
	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"pipeline"},
	)

	// BlobTransfers counts blob store calls.
	BlobTransfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_operations_total",
			Help:      "Blob store operations",
		},
		[]string{"operation", "status"},
	)

	// HTTPRequests counts API requests.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	// HTTPDuration measures API request latency.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func RecordOutcome(pipeline, outcome string) {
	PipelineRecords.WithLabelValues(pipeline, outcome).Inc()
}

func RecordRun(pipeline string, seconds float64) {
	PipelineDuration.WithLabelValues(pipeline).Observe(seconds)
}

// RecordBlob records a blob store call. A nil error counts as success.
func RecordBlob(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	BlobTransfers.WithLabelValues(operation, status).Inc()
}

func RecordRequest(method, route, code string, seconds float64) {
	HTTPRequests.WithLabelValues(method, route, code).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}
