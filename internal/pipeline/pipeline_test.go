package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uitrack/distributor-tracker/internal/publisher/memory"
	"github.com/uitrack/distributor-tracker/internal/storage/archive"
	"github.com/uitrack/distributor-tracker/internal/tracker"
)

var runAt = time.Date(2026, 8, 5, 3, 0, 0, 0, time.UTC)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type fakeMappings struct {
	refresh    *tracker.RefreshResult
	refreshErr error
	current    tracker.Mapping
}

func (f *fakeMappings) Refresh(context.Context) (*tracker.RefreshResult, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refresh, nil
}

func (f *fakeMappings) Current(context.Context) (tracker.Mapping, error) {
	return f.current, nil
}

type fakeScanner struct {
	records []tracker.Record
	stats   tracker.ScanStats
	err     error
	gotMap  tracker.Mapping
}

func (f *fakeScanner) ScanAll(_ context.Context, m tracker.Mapping) ([]tracker.Record, tracker.ScanStats, error) {
	f.gotMap = m
	return f.records, f.stats, f.err
}

type fakeReconciler struct {
	result       *tracker.ReconcileResult
	err          error
	gotBatch     []tracker.Record
	prunedWindow time.Duration
}

func (f *fakeReconciler) Reconcile(_ context.Context, records []tracker.Record) (*tracker.ReconcileResult, error) {
	f.gotBatch = records
	return f.result, f.err
}

func (f *fakeReconciler) PruneHistory(_ context.Context, horizon time.Duration) (int64, error) {
	f.prunedWindow = horizon
	return 0, nil
}

type fakeSyncer struct {
	result *tracker.SyncResult
	calls  int
}

func (f *fakeSyncer) Run(context.Context) (*tracker.SyncResult, error) {
	f.calls++
	return f.result, nil
}

func testBatch() []tracker.Record {
	return []tracker.Record{{
		Name:        "Acme Networks",
		PartnerType: tracker.PartnerSimple,
		Address:     "1 Main St",
		Region:      "eur",
		DataSource:  tracker.SourceJSONAPI,
		ScrapedAt:   runAt,
	}}
}

func newTestPipeline(mappings *fakeMappings, scanner *fakeScanner, reconciler *fakeReconciler,
	syncer Syncer, archiver tracker.Archiver, publisher tracker.Publisher, cfg Config) *Pipeline {
	return New(mappings, scanner, reconciler, syncer, archiver, publisher,
		fixedClock{at: runAt}, zap.NewNop(), cfg)
}

func TestRunChainsAllStages(t *testing.T) {
	t.Parallel()

	mappings := &fakeMappings{
		refresh: &tracker.RefreshResult{Success: true},
		current: tracker.Mapping{"eur": {"DE"}},
	}
	scanner := &fakeScanner{records: testBatch(), stats: tracker.ScanStats{Records: 1}}
	reconciler := &fakeReconciler{result: &tracker.ReconcileResult{Created: 1}}
	syncer := &fakeSyncer{result: &tracker.SyncResult{Created: 1}}
	archiver := archive.NewMemory()
	publisher := memory.New()

	summary, err := newTestPipeline(mappings, scanner, reconciler, syncer, archiver, publisher,
		Config{SyncEnabled: true, RetentionHorizon: 90 * 24 * time.Hour}).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, tracker.Mapping{"eur": {"DE"}}, scanner.gotMap)
	require.Len(t, reconciler.gotBatch, 1)
	require.Equal(t, 1, syncer.calls)
	require.Equal(t, 90*24*time.Hour, reconciler.prunedWindow)
	require.Equal(t, 1, archiver.Len())
	require.Len(t, publisher.Payloads(), 1)
	require.Equal(t, 1, summary.Reconcile.Created)
	require.NotNil(t, summary.Sync)
}

func TestRunToleratesFailedRefresh(t *testing.T) {
	t.Parallel()

	mappings := &fakeMappings{
		refresh: &tracker.RefreshResult{Success: false, Reason: "no mappings discovered"},
		current: tracker.Mapping{"eur": {"DE"}},
	}
	scanner := &fakeScanner{records: testBatch()}
	reconciler := &fakeReconciler{result: &tracker.ReconcileResult{}}

	summary, err := newTestPipeline(mappings, scanner, reconciler, nil, nil, nil, Config{}).
		Run(context.Background())
	require.NoError(t, err, "stale mappings keep the run alive")
	require.False(t, summary.Mapping.Success)
	require.Equal(t, tracker.Mapping{"eur": {"DE"}}, scanner.gotMap)
}

func TestRunAbortsWithoutCombinations(t *testing.T) {
	t.Parallel()

	mappings := &fakeMappings{
		refresh: &tracker.RefreshResult{Success: false, Reason: "no mappings discovered"},
		current: tracker.Mapping{},
	}
	_, err := newTestPipeline(mappings, &fakeScanner{}, &fakeReconciler{}, nil, nil, nil, Config{}).
		Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no scan combinations")
}

func TestRunSkipsSyncWhenDisabled(t *testing.T) {
	t.Parallel()

	mappings := &fakeMappings{
		refresh: &tracker.RefreshResult{Success: true},
		current: tracker.Mapping{"eur": {"DE"}},
	}
	syncer := &fakeSyncer{result: &tracker.SyncResult{}}
	reconciler := &fakeReconciler{result: &tracker.ReconcileResult{}}

	summary, err := newTestPipeline(mappings, &fakeScanner{records: testBatch()}, reconciler,
		syncer, nil, nil, Config{SyncEnabled: false}).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, syncer.calls)
	require.Nil(t, summary.Sync)
}

func TestRunSurfacesReconcileFailure(t *testing.T) {
	t.Parallel()

	mappings := &fakeMappings{
		refresh: &tracker.RefreshResult{Success: true},
		current: tracker.Mapping{"eur": {"DE"}},
	}
	reconciler := &fakeReconciler{err: errors.New("tx failed")}

	_, err := newTestPipeline(mappings, &fakeScanner{records: testBatch()}, reconciler,
		nil, nil, nil, Config{}).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "reconcile batch")
}
