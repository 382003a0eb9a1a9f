package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/vanish/internal/pipeline"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanish_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vanish_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Analysis metrics
	analyzeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanish_analyze_requests_total",
			Help: "Total number of analysis requests",
		},
		[]string{"type", "status"}, // type: image, batch, redact, websocket
	)

	detectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vanish_detection_duration_seconds",
			Help:    "Label detection duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	editingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vanish_editing_duration_seconds",
			Help:    "Region removal duration in seconds",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	peopleRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vanish_people_removed_total",
			Help: "Total number of images that had person regions removed",
		},
	)

	boxesAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vanish_boxes_applied_total",
			Help: "Total number of regions overwritten with background",
		},
	)

	boxesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanish_boxes_skipped_total",
			Help: "Total number of regions skipped during removal",
		},
		[]string{"reason"}, // reason: degenerate, no_donor
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanish_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // type: minute, hour, requests, data
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vanish_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024, 100 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vanish_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vanish_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

// recordAnalysisMetrics records the per-result metrics shared by every
// analysis entry point.
func recordAnalysisMetrics(requestType string, res *pipeline.AnalysisResult) {
	analyzeRequestsTotal.WithLabelValues(requestType, "success").Inc()
	detectionDuration.Observe(float64(res.Processing.DetectionNs) / 1e9)

	if res.PeopleRemoved {
		peopleRemovedTotal.Inc()
		editingDuration.Observe(float64(res.Processing.EditingNs) / 1e9)
	}
	if res.Edit.Applied > 0 {
		boxesAppliedTotal.Add(float64(res.Edit.Applied))
	}
	if res.Edit.SkippedDegenerate > 0 {
		boxesSkippedTotal.WithLabelValues("degenerate").Add(float64(res.Edit.SkippedDegenerate))
	}
	if res.Edit.SkippedNoDonor > 0 {
		boxesSkippedTotal.WithLabelValues("no_donor").Add(float64(res.Edit.SkippedNoDonor))
	}
}
