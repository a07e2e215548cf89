// Package metrics exposes Prometheus collectors for the tracker service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapeRequestsTotal        *prometheus.CounterVec
	scrapeRecordsTotal         *prometheus.CounterVec
	scrapeCountMismatchTotal   prometheus.Counter
	reconcileChangesTotal      *prometheus.CounterVec
	syncOperationsTotal        *prometheus.CounterVec
	pipelineRunsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_scrape_requests_total",
				Help: "Total source requests, labeled by region and outcome.",
			},
			[]string{"region", "status"},
		)

		scrapeRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_scrape_records_total",
				Help: "Total normalized records scraped, labeled by region.",
			},
			[]string{"region"},
		)

		scrapeCountMismatchTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tracker_scrape_count_mismatch_total",
				Help: "Responses whose declared category counts disagreed with the returned lists.",
			},
		)

		reconcileChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_reconcile_changes_total",
				Help: "Reconciliation decisions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		syncOperationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_sync_operations_total",
				Help: "Workspace sync operations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_pipeline_runs_total",
				Help: "Full pipeline runs, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// ObserveScrapeRequest records one source request outcome.
func ObserveScrapeRequest(region, status string) {
	if scrapeRequestsTotal != nil {
		scrapeRequestsTotal.WithLabelValues(region, status).Inc()
	}
}

// AddScrapeRecords counts normalized records for a region.
func AddScrapeRecords(region string, n int) {
	if scrapeRecordsTotal != nil {
		scrapeRecordsTotal.WithLabelValues(region).Add(float64(n))
	}
}

// ObserveCountMismatch counts a declared-count disagreement.
func ObserveCountMismatch() {
	if scrapeCountMismatchTotal != nil {
		scrapeCountMismatchTotal.Inc()
	}
}

// ObserveReconcileChange records one reconciliation decision.
func ObserveReconcileChange(outcome string) {
	if reconcileChangesTotal != nil {
		reconcileChangesTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveSyncOperation records one sync outcome.
func ObserveSyncOperation(outcome string) {
	if syncOperationsTotal != nil {
		syncOperationsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObservePipelineRun records a full pipeline run.
func ObservePipelineRun(status string) {
	if pipelineRunsTotal != nil {
		pipelineRunsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveHTTPRequest records a handled HTTP request's latency.
func ObserveHTTPRequest(method, route string, duration time.Duration) {
	if httpRequestDurationSeconds != nil {
		httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
