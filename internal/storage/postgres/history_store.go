package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// HistoryStore reads and prunes the append-only change history. Writes
// happen inside the reconcile transaction.
type HistoryStore struct {
	pool dbPool
}

// NewHistoryStore connects a history store to Postgres.
func NewHistoryStore(ctx context.Context, cfg Config) (*HistoryStore, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &HistoryStore{pool: pool}, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewHistoryStoreWithPool(pool dbPool) (*HistoryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &HistoryStore{pool: pool}, nil
}

// Prune deletes entries detected before the cutoff.
func (s *HistoryStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
DELETE FROM change_history WHERE detected_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune change history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ChangesForDistributor lists the most recent entries for one row.
func (s *HistoryStore) ChangesForDistributor(ctx context.Context, distributorID int64, limit int) ([]tracker.ChangeEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, distributor_id, change_type, old_data, new_data, detected_at
FROM change_history
WHERE distributor_id = $1
ORDER BY detected_at DESC
LIMIT $2`, distributorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var out []tracker.ChangeEntry
	for rows.Next() {
		var (
			entry   tracker.ChangeEntry
			kind    string
			oldData []byte
			newData []byte
		)
		if err := rows.Scan(&entry.ID, &entry.DistributorID, &kind, &oldData, &newData, &entry.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan change entry: %w", err)
		}
		entry.Kind = tracker.ChangeKind(kind)
		if entry.OldData, err = decodeSnapshot(oldData); err != nil {
			return nil, err
		}
		if entry.NewData, err = decodeSnapshot(newData); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return out, nil
}

// RecentSummary counts entries by kind since the given time.
func (s *HistoryStore) RecentSummary(ctx context.Context, since time.Time) (map[tracker.ChangeKind]int64, error) {
	rows, err := s.pool.Query(ctx, `
SELECT change_type, count(*)
FROM change_history
WHERE detected_at >= $1
GROUP BY change_type`, since)
	if err != nil {
		return nil, fmt.Errorf("query change summary: %w", err)
	}
	defer rows.Close()

	out := map[tracker.ChangeKind]int64{}
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan change summary: %w", err)
		}
		out[tracker.ChangeKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change summary: %w", err)
	}
	return out, nil
}

func decodeSnapshot(data []byte) (tracker.Snapshot, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var snap tracker.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
