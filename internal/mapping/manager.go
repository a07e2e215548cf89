package mapping

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// Manager owns the persisted mapping lifecycle: discover, upsert,
// soft-deactivate drifted pairs, and serve the active set.
type Manager struct {
	discoverer *Discoverer
	store      tracker.MappingStore
	clock      tracker.Clock
	logger     *zap.Logger
}

// NewManager builds a Manager.
func NewManager(discoverer *Discoverer, store tracker.MappingStore, clock tracker.Clock, logger *zap.Logger) *Manager {
	return &Manager{
		discoverer: discoverer,
		store:      store,
		clock:      clock,
		logger:     logger,
	}
}

// Current returns the active pairs grouped by region.
func (m *Manager) Current(ctx context.Context) (tracker.Mapping, error) {
	mapping, err := m.store.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active mappings: %w", err)
	}
	return mapping, nil
}

// Refresh runs a full discovery and folds the result into storage.
// Total discovery failure is an explicit non-success result, not an
// error: callers may keep scanning with stale mappings.
func (m *Manager) Refresh(ctx context.Context) (*tracker.RefreshResult, error) {
	discovered := m.discoverer.Discover(ctx)
	if len(discovered) == 0 {
		m.logger.Warn("mapping discovery returned nothing; keeping stale mappings")
		return &tracker.RefreshResult{Success: false, Reason: "no mappings discovered"}, nil
	}

	now := m.clock.Now()
	created, verified, err := m.store.Upsert(ctx, discovered, now)
	if err != nil {
		return nil, fmt.Errorf("upsert mappings: %w", err)
	}
	deactivated, err := m.store.DeactivateMissing(ctx, discovered, now)
	if err != nil {
		return nil, fmt.Errorf("deactivate missing mappings: %w", err)
	}

	stats, err := m.store.Statistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("mapping statistics: %w", err)
	}

	result := &tracker.RefreshResult{
		Success:     true,
		NewPairs:    created,
		Verified:    verified,
		Deactivated: deactivated,
		TotalActive: int(stats.TotalActive),
		Regions:     discovered.Regions(),
	}
	m.logger.Info("mapping refresh completed",
		zap.Int("new", result.NewPairs),
		zap.Int("verified", result.Verified),
		zap.Int64("deactivated", result.Deactivated),
		zap.Int("total_active", result.TotalActive))
	return result, nil
}

// Statistics reports mapping lifecycle counts.
func (m *Manager) Statistics(ctx context.Context) (*tracker.MappingStatistics, error) {
	stats, err := m.store.Statistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("mapping statistics: %w", err)
	}
	return stats, nil
}
