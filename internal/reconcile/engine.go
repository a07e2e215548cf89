// Package reconcile applies a normalized fetch batch to storage,
// recording every lifecycle transition in the change history.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uitrack/distributor-tracker/internal/metrics"
	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// Engine drives one reconciliation pass. The whole batch runs inside a
// single storage transaction; per-record problems are collected into the
// result instead of aborting the pass.
type Engine struct {
	store   tracker.DistributorStore
	history tracker.HistoryStore
	clock   tracker.Clock
	logger  *zap.Logger
}

// New builds a reconcile engine.
func New(store tracker.DistributorStore, history tracker.HistoryStore, clock tracker.Clock, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		history: history,
		clock:   clock,
		logger:  logger,
	}
}

// Reconcile matches the batch against storage and applies creations,
// updates and deactivations. An empty batch is a no-op; it never sweeps
// the table, so a failed scan can't mass-deactivate listings.
func (e *Engine) Reconcile(ctx context.Context, records []tracker.Record) (*tracker.ReconcileResult, error) {
	res := &tracker.ReconcileResult{}
	for _, rec := range records {
		switch rec.DataSource {
		case tracker.SourceHTMLLegacy:
			res.LegacyRecords++
		default:
			res.JSONAPIRecords++
		}
	}
	if len(records) == 0 {
		e.logger.Warn("reconcile called with empty batch, skipping")
		return res, nil
	}

	now := e.clock.Now()
	present := batchKeys(records)
	err := e.store.WithTx(ctx, func(tx tracker.ReconcileTx) error {
		for _, rec := range records {
			if err := e.reconcileOne(ctx, tx, rec, now, res); err != nil {
				e.logger.Error("record reconciliation failed",
					zap.String("identity", rec.IdentityKey()),
					zap.Error(err))
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.IdentityKey(), err))
			}
		}
		return e.deactivateMissing(ctx, tx, present, now, res)
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile transaction: %w", err)
	}

	e.logger.Info("reconciliation complete",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("deactivated", res.Deactivated),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

// reconcileOne applies a single record.
func (e *Engine) reconcileOne(ctx context.Context, tx tracker.ReconcileTx, rec tracker.Record, now time.Time, res *tracker.ReconcileResult) error {
	orgID, err := e.ensureOrganization(ctx, tx, rec, now)
	if err != nil {
		return err
	}

	existing, err := e.findDistributor(ctx, tx, rec, orgID)
	if err != nil {
		return err
	}

	if existing == nil {
		d := distributorFromRecord(rec, orgID, now)
		id, err := tx.CreateDistributor(ctx, d)
		if err != nil {
			return fmt.Errorf("create distributor: %w", err)
		}
		d.ID = id
		entry := tracker.ChangeEntry{
			DistributorID: &id,
			Kind:          tracker.ChangeCreated,
			NewData:       d.Snapshot(),
			DetectedAt:    now,
		}
		if err := tx.AppendChange(ctx, entry); err != nil {
			return fmt.Errorf("record creation change: %w", err)
		}
		res.Created++
		metrics.ObserveReconcileChange("created")
		return nil
	}

	before := existing.Snapshot()
	if !applyRecord(existing, rec, orgID, now) {
		res.Skipped++
		metrics.ObserveReconcileChange("skipped")
		return nil
	}
	if err := tx.UpdateDistributor(ctx, existing); err != nil {
		return fmt.Errorf("update distributor %d: %w", existing.ID, err)
	}
	entry := tracker.ChangeEntry{
		DistributorID: &existing.ID,
		Kind:          tracker.ChangeUpdated,
		OldData:       before,
		NewData:       existing.Snapshot(),
		DetectedAt:    now,
	}
	if err := tx.AppendChange(ctx, entry); err != nil {
		return fmt.Errorf("record update change: %w", err)
	}
	res.Updated++
	metrics.ObserveReconcileChange("updated")
	return nil
}

// ensureOrganization resolves the owning organization by name, creating
// it on first sight and refreshing its website when the source reports a
// different one.
func (e *Engine) ensureOrganization(ctx context.Context, tx tracker.ReconcileTx, rec tracker.Record, now time.Time) (int64, error) {
	org, err := tx.OrganizationByName(ctx, rec.Name)
	if err != nil {
		return 0, fmt.Errorf("lookup organization: %w", err)
	}
	if org == nil {
		id, err := tx.CreateOrganization(ctx, rec.Name, rec.WebsiteURL, now)
		if err != nil {
			return 0, fmt.Errorf("create organization: %w", err)
		}
		return id, nil
	}
	if rec.WebsiteURL != "" && rec.WebsiteURL != org.WebsiteURL {
		if err := tx.UpdateOrganizationWebsite(ctx, org.ID, rec.WebsiteURL, now); err != nil {
			return 0, fmt.Errorf("update organization website: %w", err)
		}
	}
	return org.ID, nil
}

// findDistributor resolves the stored row for a record. The source id
// wins when present; the (organization, address) pair is the fallback so
// legacy records without ids still converge on the same row.
func (e *Engine) findDistributor(ctx context.Context, tx tracker.ReconcileTx, rec tracker.Record, orgID int64) (*tracker.Distributor, error) {
	if rec.SourceID != nil {
		d, err := tx.DistributorBySourceID(ctx, *rec.SourceID)
		if err != nil {
			return nil, fmt.Errorf("lookup by source id: %w", err)
		}
		if d != nil {
			return d, nil
		}
	}
	d, err := tx.DistributorByOrgAddress(ctx, orgID, rec.Address)
	if err != nil {
		return nil, fmt.Errorf("lookup by address: %w", err)
	}
	return d, nil
}

// batchKeys collects both identity forms of every record so the sweep
// can match rows whichever way they key. Membership is decided by the
// batch itself, not by which records processed cleanly.
func batchKeys(records []tracker.Record) map[string]struct{} {
	keys := make(map[string]struct{}, 2*len(records))
	for _, rec := range records {
		keys[rec.IdentityKey()] = struct{}{}
		keys[rec.PairKey()] = struct{}{}
	}
	return keys
}

// deactivateMissing soft-deletes active rows absent from the batch. The
// change is recorded as an update since the row survives.
func (e *Engine) deactivateMissing(ctx context.Context, tx tracker.ReconcileTx, present map[string]struct{}, now time.Time, res *tracker.ReconcileResult) error {
	active, err := tx.ActiveDistributors(ctx)
	if err != nil {
		return fmt.Errorf("list active distributors: %w", err)
	}
	for i := range active {
		d := &active[i]
		if _, ok := present[d.IdentityKey()]; ok {
			continue
		}
		if _, ok := present[d.PairKey()]; ok {
			continue
		}
		before := d.Snapshot()
		if err := tx.DeactivateDistributor(ctx, d.ID, now); err != nil {
			return fmt.Errorf("deactivate distributor %d: %w", d.ID, err)
		}
		d.Active = false
		entry := tracker.ChangeEntry{
			DistributorID: &d.ID,
			Kind:          tracker.ChangeUpdated,
			OldData:       before,
			NewData:       d.Snapshot(),
			DetectedAt:    now,
		}
		if err := tx.AppendChange(ctx, entry); err != nil {
			return fmt.Errorf("record deactivation change: %w", err)
		}
		res.Deactivated++
		metrics.ObserveReconcileChange("deactivated")
		e.logger.Info("distributor deactivated",
			zap.Int64("id", d.ID),
			zap.String("company", d.OrganizationName))
	}
	return nil
}

// PruneHistory deletes change entries older than the retention horizon.
func (e *Engine) PruneHistory(ctx context.Context, horizon time.Duration) (int64, error) {
	cutoff := e.clock.Now().Add(-horizon)
	removed, err := e.history.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune change history: %w", err)
	}
	if removed > 0 {
		e.logger.Info("change history pruned",
			zap.Int64("removed", removed),
			zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// distributorFromRecord builds a fresh row from a normalized record.
func distributorFromRecord(rec tracker.Record, orgID int64, now time.Time) *tracker.Distributor {
	scraped := rec.ScrapedAt
	return &tracker.Distributor{
		OrganizationID:   orgID,
		OrganizationName: rec.Name,
		WebsiteURL:       rec.WebsiteURL,
		PartnerType:      rec.PartnerType,
		Address:          rec.Address,
		Latitude:         rec.Latitude,
		Longitude:        rec.Longitude,
		Phone:            rec.Phone,
		Email:            rec.Email,
		ContactURL:       rec.ContactURL,
		Region:           rec.Region,
		CountryState:     rec.CountryState,
		Active:           true,
		SourceID:         rec.SourceID,
		LastModified:     rec.LastModified,
		OrderWeight:      rec.OrderWeight,
		LogoURL:          rec.LogoURL,
		SunMaxMember:     rec.SunMaxMember,
		DataSource:       rec.DataSource,
		ScrapedAt:        &scraped,
		SyncStatus:       tracker.SyncPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// applyRecord copies the record's tracked fields onto the stored row and
// reports whether anything changed. A row seen again is always forced
// back to active.
func applyRecord(d *tracker.Distributor, rec tracker.Record, orgID int64, now time.Time) bool {
	changed := false

	setStr := func(dst *string, v string) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}
	setStr(&d.Address, rec.Address)
	setStr(&d.Phone, rec.Phone)
	setStr(&d.Email, rec.Email)
	setStr(&d.ContactURL, rec.ContactURL)
	setStr(&d.Region, rec.Region)
	setStr(&d.CountryState, rec.CountryState)
	setStr(&d.LogoURL, rec.LogoURL)
	if rec.WebsiteURL != "" {
		setStr(&d.WebsiteURL, rec.WebsiteURL)
	}

	if d.PartnerType != rec.PartnerType {
		d.PartnerType = rec.PartnerType
		changed = true
	}
	if d.OrganizationID != orgID {
		d.OrganizationID = orgID
		changed = true
	}
	if !tracker.EqualCoord(d.Latitude, rec.Latitude) {
		d.Latitude = rec.Latitude
		changed = true
	}
	if !tracker.EqualCoord(d.Longitude, rec.Longitude) {
		d.Longitude = rec.Longitude
		changed = true
	}
	if !equalInt64Ptr(d.SourceID, rec.SourceID) && rec.SourceID != nil {
		d.SourceID = rec.SourceID
		changed = true
	}
	if !equalIntPtr(d.OrderWeight, rec.OrderWeight) {
		d.OrderWeight = rec.OrderWeight
		changed = true
	}
	if !equalBoolPtr(d.SunMaxMember, rec.SunMaxMember) {
		d.SunMaxMember = rec.SunMaxMember
		changed = true
	}
	if !equalTimePtr(d.LastModified, rec.LastModified) {
		d.LastModified = rec.LastModified
		changed = true
	}
	if d.DataSource != rec.DataSource {
		d.DataSource = rec.DataSource
		changed = true
	}
	if !d.Active {
		d.Active = true
		changed = true
	}

	if changed {
		scraped := rec.ScrapedAt
		d.ScrapedAt = &scraped
		d.UpdatedAt = now
	}
	return changed
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalBoolPtr(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
