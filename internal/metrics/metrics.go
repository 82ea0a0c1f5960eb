// Package metrics holds the Prometheus collectors for the service.
package metrics

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shift_reports"

var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	uploadsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_submitted_total",
			Help:      "Uploads accepted at intake",
		},
		[]string{"report_type"},
	)

	intakeRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_rejected_total",
			Help:      "Submissions rejected before a ledger row existed",
		},
		[]string{"reason"},
	)

	uploadsDeduplicated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_deduplicated_total",
			Help:      "Submissions answered by an existing row with the same content",
		},
		[]string{"report_type"},
	)

	pipelineOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_outcomes_total",
			Help:      "Final pipeline status per upload",
		},
		[]string{"report_type", "status"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each pipeline stage",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage", "report_type"},
	)

	extractRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_retries_total",
			Help:      "Extraction attempts retried after a retryable failure",
		},
		[]string{"provider"},
	)

	recordsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Domain rows persisted",
		},
		[]string{"report_type"},
	)

	recordsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Extracted elements dropped by validation or insert failure",
		},
		[]string{"report_type", "reason"},
	)

	inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_in_flight",
			Help:      "Uploads currently being processed",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting in the async queue",
		},
	)

	databaseConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_open",
			Help:      "Open database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_idle",
			Help:      "Idle database connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		apiRequestsTotal,
		apiRequestDuration,
		uploadsSubmitted,
		intakeRejected,
		uploadsDeduplicated,
		pipelineOutcomes,
		stageDuration,
		extractRetries,
		recordsWritten,
		recordsSkipped,
		inFlight,
		queueDepth,
		databaseConnectionsOpen,
		databaseConnectionsIdle,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordAPIRequest(method, path string, status int, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordSubmitted(reportType string) { uploadsSubmitted.WithLabelValues(reportType).Inc() }

func RecordIntakeRejected(reason string) { intakeRejected.WithLabelValues(reason).Inc() }

func RecordDeduplicated(reportType string) { uploadsDeduplicated.WithLabelValues(reportType).Inc() }

func RecordOutcome(reportType, status string) {
	pipelineOutcomes.WithLabelValues(reportType, status).Inc()
}

func ObserveStage(stage, reportType string, d time.Duration) {
	stageDuration.WithLabelValues(stage, reportType).Observe(d.Seconds())
}

func RecordRetry(provider string) { extractRetries.WithLabelValues(provider).Inc() }

func RecordWrite(reportType string, written, skipped, failed int) {
	recordsWritten.WithLabelValues(reportType).Add(float64(written))
	if skipped > 0 {
		recordsSkipped.WithLabelValues(reportType, "invalid").Add(float64(skipped))
	}
	if failed > 0 {
		recordsSkipped.WithLabelValues(reportType, "persist").Add(float64(failed))
	}
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func TrackInFlight() func() {
	inFlight.Inc()
	return inFlight.Dec
}

func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

func UpdateDatabaseStats(s sql.DBStats) {
	databaseConnectionsOpen.Set(float64(s.OpenConnections))
	databaseConnectionsIdle.Set(float64(s.Idle))
}
