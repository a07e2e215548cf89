// Package syncer mirrors stored distributors into the external
// workspace, batched and paced to stay inside the workspace's rate
// limits.
package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uitrack/distributor-tracker/internal/metrics"
	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// Config tunes the batch shape of a sync run.
type Config struct {
	BatchSize  int
	BatchPause time.Duration
}

// Engine pushes distributor rows to the workspace.
type Engine struct {
	store     tracker.DistributorStore
	workspace tracker.Workspace
	clock     tracker.Clock
	logger    *zap.Logger
	cfg       Config
}

// New builds a sync engine. A zero or negative batch size falls back
// to 10.
func New(store tracker.DistributorStore, workspace tracker.Workspace, clock tracker.Clock, logger *zap.Logger, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Engine{
		store:     store,
		workspace: workspace,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run syncs every candidate row. Per-row failures are collected into the
// result and marked on the row; only storage or context failures abort
// the run. Re-running against an unchanged table is idempotent: rows
// resolve to the same remote pages and are updated in place.
func (e *Engine) Run(ctx context.Context) (*tracker.SyncResult, error) {
	started := e.clock.Now()
	candidates, err := e.store.SyncCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sync candidates: %w", err)
	}

	res := &tracker.SyncResult{}
	for start := 0; start < len(candidates); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			e.syncOne(ctx, &candidates[i], res)
		}
		e.logger.Debug("sync batch done",
			zap.Int("processed", end),
			zap.Int("total", len(candidates)))
		if end < len(candidates) && e.cfg.BatchPause > 0 {
			if err := sleep(ctx, e.cfg.BatchPause); err != nil {
				return nil, err
			}
		}
	}

	res.TotalProcessed = len(candidates)
	res.Elapsed = e.clock.Now().Sub(started)
	e.logger.Info("workspace sync complete",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

func (e *Engine) syncOne(ctx context.Context, d *tracker.Distributor, res *tracker.SyncResult) {
	switch d.DataSource {
	case tracker.SourceHTMLLegacy:
		res.LegacyRecords++
	default:
		res.JSONAPIRecords++
	}

	now := e.clock.Now()
	props := buildProperties(d, now)

	pageRef, err := e.findRemote(ctx, d)
	if err != nil {
		e.recordFailure(ctx, d, res, fmt.Errorf("find remote page: %w", err))
		return
	}

	if pageRef != "" {
		if err := e.workspace.Update(ctx, pageRef, props); err != nil {
			e.recordFailure(ctx, d, res, fmt.Errorf("update page %s: %w", pageRef, err))
			return
		}
		res.Updated++
		metrics.ObserveSyncOperation("updated")
	} else {
		pageRef, err = e.workspace.Create(ctx, props)
		if err != nil {
			e.recordFailure(ctx, d, res, fmt.Errorf("create page: %w", err))
			return
		}
		if pageRef == "" {
			e.logger.Warn("create returned no page reference",
				zap.Int64("distributor_id", d.ID),
				zap.String("company", d.OrganizationName))
			res.Skipped++
			metrics.ObserveSyncOperation("skipped")
			return
		}
		res.Created++
		metrics.ObserveSyncOperation("created")
	}

	if err := e.store.UpdateSyncBookkeeping(ctx, d.ID, pageRef, tracker.SyncSynced, now); err != nil {
		res.Errors = append(res.Errors,
			fmt.Sprintf("%s: record sync state: %v", d.OrganizationName, err))
	}
}

// findRemote resolves the remote page for a row. The stored reference
// wins when it still resolves; otherwise the source id, then the
// name+address pair. An empty result means the page must be created.
func (e *Engine) findRemote(ctx context.Context, d *tracker.Distributor) (string, error) {
	if d.PageRef != "" {
		ok, err := e.workspace.Retrieve(ctx, d.PageRef)
		if err != nil {
			return "", err
		}
		if ok {
			return d.PageRef, nil
		}
		e.logger.Warn("stored page reference no longer resolves",
			zap.Int64("distributor_id", d.ID),
			zap.String("page_ref", d.PageRef))
	}

	if d.SourceID != nil {
		refs, err := e.workspace.Query(ctx, sourceIDFilter(*d.SourceID))
		if err != nil {
			return "", err
		}
		if len(refs) > 0 {
			return refs[0], nil
		}
	}

	refs, err := e.workspace.Query(ctx, nameAddressFilter(d.OrganizationName, d.Address))
	if err != nil {
		return "", err
	}
	if len(refs) > 0 {
		return refs[0], nil
	}
	return "", nil
}

func (e *Engine) recordFailure(ctx context.Context, d *tracker.Distributor, res *tracker.SyncResult, err error) {
	e.logger.Error("distributor sync failed",
		zap.Int64("distributor_id", d.ID),
		zap.String("company", d.OrganizationName),
		zap.Error(err))
	res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", d.OrganizationName, err))
	metrics.ObserveSyncOperation("error")
	if err := e.store.UpdateSyncBookkeeping(ctx, d.ID, d.PageRef, tracker.SyncError, e.clock.Now()); err != nil {
		e.logger.Error("failed to mark sync error", zap.Int64("distributor_id", d.ID), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
