// Package pipeline chains mapping refresh, scan, reconcile and sync
// into one run.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uitrack/distributor-tracker/internal/metrics"
	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// MappingSource refreshes and serves the scan combinations.
type MappingSource interface {
	Refresh(ctx context.Context) (*tracker.RefreshResult, error)
	Current(ctx context.Context) (tracker.Mapping, error)
}

// Scanner walks every combination and returns the normalized batch.
type Scanner interface {
	ScanAll(ctx context.Context, mapping tracker.Mapping) ([]tracker.Record, tracker.ScanStats, error)
}

// Reconciler applies a batch to storage and maintains the history.
type Reconciler interface {
	Reconcile(ctx context.Context, records []tracker.Record) (*tracker.ReconcileResult, error)
	PruneHistory(ctx context.Context, horizon time.Duration) (int64, error)
}

// Syncer mirrors storage into the workspace.
type Syncer interface {
	Run(ctx context.Context) (*tracker.SyncResult, error)
}

// Config tunes the optional pipeline stages.
type Config struct {
	SyncEnabled      bool
	RetentionHorizon time.Duration
}

// Pipeline runs the full scrape cycle. The archiver and publisher are
// optional; a nil syncer skips the sync stage regardless of config.
type Pipeline struct {
	mappings   MappingSource
	scanner    Scanner
	reconciler Reconciler
	syncer     Syncer
	archiver   tracker.Archiver
	publisher  tracker.Publisher
	clock      tracker.Clock
	logger     *zap.Logger
	cfg        Config
}

// New wires a pipeline.
func New(mappings MappingSource, scanner Scanner, reconciler Reconciler, syncer Syncer,
	archiver tracker.Archiver, publisher tracker.Publisher,
	clock tracker.Clock, logger *zap.Logger, cfg Config) *Pipeline {
	return &Pipeline{
		mappings:   mappings,
		scanner:    scanner,
		reconciler: reconciler,
		syncer:     syncer,
		archiver:   archiver,
		publisher:  publisher,
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run executes one full cycle and returns its summary. A failed mapping
// refresh falls back to the stored combinations; scan or reconcile
// failures abort the run.
func (p *Pipeline) Run(ctx context.Context) (*tracker.RunSummary, error) {
	started := p.clock.Now()
	summary := &tracker.RunSummary{StartedAt: started}

	refresh, err := p.mappings.Refresh(ctx)
	if err != nil {
		metrics.ObservePipelineRun("failed")
		return nil, fmt.Errorf("refresh mappings: %w", err)
	}
	summary.Mapping = refresh
	if !refresh.Success {
		p.logger.Warn("mapping refresh unsuccessful, using stored combinations",
			zap.String("reason", refresh.Reason))
	}

	current, err := p.mappings.Current(ctx)
	if err != nil {
		metrics.ObservePipelineRun("failed")
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	if current.Total() == 0 {
		metrics.ObservePipelineRun("failed")
		return nil, fmt.Errorf("no scan combinations available")
	}

	records, scanStats, err := p.scanner.ScanAll(ctx, current)
	if err != nil {
		metrics.ObservePipelineRun("failed")
		return nil, fmt.Errorf("scan source: %w", err)
	}
	summary.Scan = scanStats

	p.archiveBatch(ctx, started, records)

	reconcileRes, err := p.reconciler.Reconcile(ctx, records)
	if err != nil {
		metrics.ObservePipelineRun("failed")
		return nil, fmt.Errorf("reconcile batch: %w", err)
	}
	summary.Reconcile = reconcileRes

	if p.cfg.RetentionHorizon > 0 {
		if _, err := p.reconciler.PruneHistory(ctx, p.cfg.RetentionHorizon); err != nil {
			p.logger.Error("history prune failed", zap.Error(err))
		}
	}

	if p.cfg.SyncEnabled && p.syncer != nil {
		syncRes, err := p.syncer.Run(ctx)
		if err != nil {
			metrics.ObservePipelineRun("failed")
			return nil, fmt.Errorf("sync workspace: %w", err)
		}
		summary.Sync = syncRes
	}

	summary.Elapsed = p.clock.Now().Sub(started)
	metrics.ObservePipelineRun("ok")
	p.publishSummary(ctx, summary)

	p.logger.Info("pipeline run complete",
		zap.Duration("elapsed", summary.Elapsed),
		zap.Int("records", summary.Scan.Records),
		zap.Int("created", reconcileRes.Created),
		zap.Int("updated", reconcileRes.Updated),
		zap.Int("deactivated", reconcileRes.Deactivated))
	return summary, nil
}

// archiveBatch stores the normalized batch; failures are logged, never
// fatal.
func (p *Pipeline) archiveBatch(ctx context.Context, started time.Time, records []tracker.Record) {
	if p.archiver == nil || len(records) == 0 {
		return
	}
	data, err := json.Marshal(records)
	if err != nil {
		p.logger.Error("encode batch for archive", zap.Error(err))
		return
	}
	objectName := fmt.Sprintf("runs/%s.json", started.UTC().Format("2006-01-02T15-04-05Z"))
	if err := p.archiver.Save(ctx, objectName, data); err != nil {
		p.logger.Error("archive batch failed",
			zap.String("object", objectName),
			zap.Error(err))
		return
	}
	p.logger.Debug("batch archived", zap.String("object", objectName))
}

func (p *Pipeline) publishSummary(ctx context.Context, summary *tracker.RunSummary) {
	if p.publisher == nil {
		return
	}
	id, err := p.publisher.Publish(ctx, summary)
	if err != nil {
		p.logger.Error("publish run summary failed", zap.Error(err))
		return
	}
	p.logger.Debug("run summary published", zap.String("message_id", id))
}
