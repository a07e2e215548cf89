package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// MappingStore persists the (region, country/state) combination
// lifecycle.
type MappingStore struct {
	pool dbPool
}

// NewMappingStore connects a mapping store to Postgres.
func NewMappingStore(ctx context.Context, cfg Config) (*MappingStore, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &MappingStore{pool: pool}, nil
}

// NewMappingStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewMappingStoreWithPool(pool dbPool) (*MappingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &MappingStore{pool: pool}, nil
}

// Upsert inserts newly discovered pairs and bumps last_verified_at on
// known ones, reactivating pairs previously marked inactive. The
// (xmax = 0) probe distinguishes a fresh insert from a conflict update.
func (s *MappingStore) Upsert(ctx context.Context, m tracker.Mapping, now time.Time) (created, verified int, err error) {
	for _, region := range m.Regions() {
		for _, country := range m[region] {
			var inserted bool
			err = s.pool.QueryRow(ctx, `
INSERT INTO region_mappings (region, country_state, is_active, discovered_at, last_verified_at)
VALUES ($1, $2, TRUE, $3, $3)
ON CONFLICT (region, country_state)
DO UPDATE SET is_active = TRUE, last_verified_at = $3
RETURNING (xmax = 0)`, region, country, now).Scan(&inserted)
			if err != nil {
				return created, verified, fmt.Errorf("upsert mapping %s/%s: %w", region, country, err)
			}
			if inserted {
				created++
			} else {
				verified++
			}
		}
	}
	return created, verified, nil
}

// DeactivateMissing soft-removes active pairs the latest discovery did
// not verify. An empty mapping is a no-op so a failed discovery never
// wipes the table.
func (s *MappingStore) DeactivateMissing(ctx context.Context, m tracker.Mapping, now time.Time) (int64, error) {
	if m.Total() == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE region_mappings
SET is_active = FALSE
WHERE is_active AND last_verified_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate missing mappings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Active returns the active pairs grouped by region, ordered.
func (s *MappingStore) Active(ctx context.Context) (tracker.Mapping, error) {
	rows, err := s.pool.Query(ctx, `
SELECT region, country_state
FROM region_mappings
WHERE is_active
ORDER BY region, country_state`)
	if err != nil {
		return nil, fmt.Errorf("query active mappings: %w", err)
	}
	defer rows.Close()

	out := tracker.Mapping{}
	for rows.Next() {
		var region, country string
		if err := rows.Scan(&region, &country); err != nil {
			return nil, fmt.Errorf("scan mapping row: %w", err)
		}
		out[region] = append(out[region], country)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mappings: %w", err)
	}
	return out, nil
}

// Statistics reports mapping lifecycle counts.
func (s *MappingStore) Statistics(ctx context.Context) (*tracker.MappingStatistics, error) {
	stats := &tracker.MappingStatistics{
		RegionDistribution: map[string]int64{},
	}
	err := s.pool.QueryRow(ctx, `
SELECT count(*) FILTER (WHERE is_active),
	count(*) FILTER (WHERE NOT is_active),
	count(DISTINCT region) FILTER (WHERE is_active)
FROM region_mappings`).Scan(
		&stats.TotalActive, &stats.TotalInactive, &stats.ActiveRegions)
	if err != nil {
		return nil, fmt.Errorf("count mappings: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
SELECT region, count(*)
FROM region_mappings
WHERE is_active
GROUP BY region`)
	if err != nil {
		return nil, fmt.Errorf("query mapping distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var region string
		var n int64
		if err := rows.Scan(&region, &n); err != nil {
			return nil, fmt.Errorf("scan mapping distribution: %w", err)
		}
		stats.RegionDistribution[region] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mapping distribution: %w", err)
	}
	return stats, nil
}
