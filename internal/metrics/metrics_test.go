package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if scrapeRequestsTotal == nil || reconcileChangesTotal == nil ||
		syncOperationsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveScrapeRequest("eur", "ok")
	if val := testutil.ToFloat64(scrapeRequestsTotal.WithLabelValues("eur", "ok")); val != 1 {
		t.Errorf("expected scrapeRequestsTotal{eur,ok} to be 1, got %f", val)
	}

	AddScrapeRecords("eur", 3)
	if val := testutil.ToFloat64(scrapeRecordsTotal.WithLabelValues("eur")); val != 3 {
		t.Errorf("expected scrapeRecordsTotal{eur} to be 3, got %f", val)
	}

	ObserveReconcileChange("created")
	ObserveSyncOperation("updated")
	ObservePipelineRun("ok")
	ObserveHTTPRequest("GET", "/v1/statistics", 50*time.Millisecond)
}

func TestObserversTolerateUninitializedCollectors(t *testing.T) {
	// Observers are no-ops before Init; they must not panic.
	saved := scrapeRequestsTotal
	scrapeRequestsTotal = nil
	defer func() { scrapeRequestsTotal = saved }()

	ObserveScrapeRequest("eur", "ok")
}
