package tracker

import "time"

// Expected business outcomes travel in these result objects rather than
// as errors; only stage-fatal conditions (storage transaction failures,
// configuration problems) are raised to the caller.

// ScanStats reports the throughput of one full source scan.
type ScanStats struct {
	Elapsed        time.Duration `json:"elapsed_seconds"`
	Requests       int           `json:"requests"`
	Records        int           `json:"records"`
	Combinations   int           `json:"combinations"`
	FailedFetches  int           `json:"failed_fetches"`
	CountMismatch  int           `json:"count_mismatches"`
	DuplicatesCut  int           `json:"duplicates_removed"`
	RecordsPerSec  float64       `json:"records_per_second"`
	AvgRequestTime float64       `json:"avg_request_seconds"`
}

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	Skipped        int      `json:"skipped"`
	Deactivated    int      `json:"deactivated"`
	JSONAPIRecords int      `json:"json_api_records"`
	LegacyRecords  int      `json:"legacy_records"`
	Errors         []string `json:"errors"`
}

// SyncResult summarizes one workspace sync run.
type SyncResult struct {
	Created        int           `json:"created"`
	Updated        int           `json:"updated"`
	Skipped        int           `json:"skipped"`
	TotalProcessed int           `json:"total_processed"`
	JSONAPIRecords int           `json:"json_api_records"`
	LegacyRecords  int           `json:"legacy_records"`
	Elapsed        time.Duration `json:"sync_seconds"`
	Errors         []string      `json:"errors"`
}

// RefreshResult reports a mapping refresh. Success=false with a reason
// models total discovery failure without raising, so callers can keep
// using stale mappings.
type RefreshResult struct {
	Success     bool     `json:"success"`
	Reason      string   `json:"reason,omitempty"`
	NewPairs    int      `json:"new_mappings"`
	Verified    int      `json:"updated_mappings"`
	Deactivated int64    `json:"deactivated_mappings"`
	TotalActive int      `json:"total_active"`
	Regions     []string `json:"regions"`
}

// Statistics aggregates stored-data counts for the presentation layer.
type Statistics struct {
	Organizations      int64            `json:"total_organizations"`
	Distributors       int64            `json:"total_distributors"`
	ActiveDistributors int64            `json:"active_distributors"`
	MasterDistributors int64            `json:"master_distributors"`
	SyncedDistributors int64            `json:"synced_distributors"`
	TotalChanges       int64            `json:"total_changes"`
	RegionDistribution map[string]int64 `json:"region_distribution"`
	SourceDistribution map[string]int64 `json:"source_distribution"`
}

// MappingStatistics aggregates mapping lifecycle counts.
type MappingStatistics struct {
	TotalActive        int64            `json:"total_active_mappings"`
	TotalInactive      int64            `json:"total_inactive_mappings"`
	ActiveRegions      int64            `json:"active_regions"`
	RegionDistribution map[string]int64 `json:"region_distribution"`
}

// RunSummary is the outcome of one full pipeline run, also the payload
// published to the events topic.
type RunSummary struct {
	StartedAt time.Time        `json:"started_at"`
	Elapsed   time.Duration    `json:"elapsed_seconds"`
	Scan      ScanStats        `json:"scan"`
	Reconcile *ReconcileResult `json:"reconcile,omitempty"`
	Sync      *SyncResult      `json:"sync,omitempty"`
	Mapping   *RefreshResult   `json:"mapping_refresh,omitempty"`
}
