package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// DistributorStore persists organizations and distributors.
type DistributorStore struct {
	pool dbPool
}

// NewDistributorStore connects a store to Postgres.
func NewDistributorStore(ctx context.Context, cfg Config) (*DistributorStore, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &DistributorStore{pool: pool}, nil
}

// NewDistributorStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewDistributorStoreWithPool(pool dbPool) (*DistributorStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &DistributorStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *DistributorStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// WithTx runs fn inside one transaction; any error rolls the whole
// batch back.
func (s *DistributorStore) WithTx(ctx context.Context, fn func(tracker.ReconcileTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&reconcileTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const distributorColumns = `
	d.id, d.organization_id, o.name, o.website_url, d.partner_type,
	d.address, d.latitude, d.longitude, d.phone, d.contact_email,
	d.contact_url, d.region, d.country_state, d.is_active, d.unifi_id,
	d.last_modified_at, d.order_weight, d.logo_url, d.sunmax_partner,
	d.data_source, d.scraped_at, d.notion_page_id, d.notion_last_sync,
	d.notion_sync_status, d.created_at, d.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDistributor(row rowScanner) (*tracker.Distributor, error) {
	var (
		d          tracker.Distributor
		partner    string
		dataSource string
		syncStatus string
	)
	err := row.Scan(
		&d.ID, &d.OrganizationID, &d.OrganizationName, &d.WebsiteURL, &partner,
		&d.Address, &d.Latitude, &d.Longitude, &d.Phone, &d.Email,
		&d.ContactURL, &d.Region, &d.CountryState, &d.Active, &d.SourceID,
		&d.LastModified, &d.OrderWeight, &d.LogoURL, &d.SunMaxMember,
		&dataSource, &d.ScrapedAt, &d.PageRef, &d.LastSyncedAt,
		&syncStatus, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.PartnerType = tracker.PartnerType(partner)
	d.DataSource = tracker.DataSource(dataSource)
	d.SyncStatus = tracker.SyncStatus(syncStatus)
	return &d, nil
}

// SyncCandidates returns every distributor with its organization joined,
// active rows first, JSON-sourced first, heaviest order weight first,
// newest first.
func (s *DistributorStore) SyncCandidates(ctx context.Context) ([]tracker.Distributor, error) {
	query := `
SELECT` + distributorColumns + `
FROM distributors d
JOIN organizations o ON o.id = d.organization_id
ORDER BY d.is_active DESC, d.data_source DESC,
	d.order_weight DESC NULLS LAST, d.created_at DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sync candidates: %w", err)
	}
	defer rows.Close()

	var out []tracker.Distributor
	for rows.Next() {
		d, err := scanDistributor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync candidate: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync candidates: %w", err)
	}
	return out, nil
}

// UpdateSyncBookkeeping writes back the remote page reference and sync
// status for one row.
func (s *DistributorStore) UpdateSyncBookkeeping(ctx context.Context, id int64, pageRef string, status tracker.SyncStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE distributors
SET notion_page_id = $2, notion_last_sync = $3, notion_sync_status = $4
WHERE id = $1`, id, pageRef, at, string(status))
	if err != nil {
		return fmt.Errorf("update sync bookkeeping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("distributor %d not found", id)
	}
	return nil
}

// Statistics aggregates stored-data counts.
func (s *DistributorStore) Statistics(ctx context.Context) (*tracker.Statistics, error) {
	stats := &tracker.Statistics{
		RegionDistribution: map[string]int64{},
		SourceDistribution: map[string]int64{},
	}

	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM organizations`).Scan(&stats.Organizations)
	if err != nil {
		return nil, fmt.Errorf("count organizations: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
SELECT count(*),
	count(*) FILTER (WHERE is_active),
	count(*) FILTER (WHERE partner_type = 'master'),
	count(*) FILTER (WHERE notion_sync_status = 'synced')
FROM distributors`).Scan(
		&stats.Distributors, &stats.ActiveDistributors,
		&stats.MasterDistributors, &stats.SyncedDistributors)
	if err != nil {
		return nil, fmt.Errorf("count distributors: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT count(*) FROM change_history`).Scan(&stats.TotalChanges)
	if err != nil {
		return nil, fmt.Errorf("count changes: %w", err)
	}

	if err := s.distribution(ctx, `
SELECT region, count(*) FROM distributors
WHERE is_active AND region <> ''
GROUP BY region`, stats.RegionDistribution); err != nil {
		return nil, err
	}
	if err := s.distribution(ctx, `
SELECT data_source, count(*) FROM distributors
GROUP BY data_source`, stats.SourceDistribution); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *DistributorStore) distribution(ctx context.Context, query string, into map[string]int64) error {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan distribution: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

// reconcileTx implements tracker.ReconcileTx over one pgx transaction.
type reconcileTx struct {
	tx pgx.Tx
}

func (t *reconcileTx) OrganizationByName(ctx context.Context, name string) (*tracker.Organization, error) {
	var org tracker.Organization
	err := t.tx.QueryRow(ctx, `
SELECT id, name, website_url, created_at, updated_at
FROM organizations
WHERE lower(name) = lower($1)`, name).Scan(
		&org.ID, &org.Name, &org.WebsiteURL, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query organization: %w", err)
	}
	return &org, nil
}

func (t *reconcileTx) CreateOrganization(ctx context.Context, name, websiteURL string, now time.Time) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
INSERT INTO organizations (name, website_url, created_at, updated_at)
VALUES ($1, $2, $3, $3)
RETURNING id`, name, websiteURL, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert organization: %w", err)
	}
	return id, nil
}

func (t *reconcileTx) UpdateOrganizationWebsite(ctx context.Context, id int64, websiteURL string, now time.Time) error {
	_, err := t.tx.Exec(ctx, `
UPDATE organizations SET website_url = $2, updated_at = $3
WHERE id = $1`, id, websiteURL, now)
	if err != nil {
		return fmt.Errorf("update organization website: %w", err)
	}
	return nil
}

func (t *reconcileTx) DistributorBySourceID(ctx context.Context, sourceID int64) (*tracker.Distributor, error) {
	row := t.tx.QueryRow(ctx, `
SELECT`+distributorColumns+`
FROM distributors d
JOIN organizations o ON o.id = d.organization_id
WHERE d.unifi_id = $1`, sourceID)
	d, err := scanDistributor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query distributor by source id: %w", err)
	}
	return d, nil
}

func (t *reconcileTx) DistributorByOrgAddress(ctx context.Context, orgID int64, address string) (*tracker.Distributor, error) {
	row := t.tx.QueryRow(ctx, `
SELECT`+distributorColumns+`
FROM distributors d
JOIN organizations o ON o.id = d.organization_id
WHERE d.organization_id = $1 AND lower(d.address) = lower($2)`, orgID, address)
	d, err := scanDistributor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query distributor by address: %w", err)
	}
	return d, nil
}

func (t *reconcileTx) CreateDistributor(ctx context.Context, d *tracker.Distributor) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
INSERT INTO distributors (
	organization_id, partner_type, address, latitude, longitude,
	phone, contact_email, contact_url, region, country_state, is_active,
	unifi_id, last_modified_at, order_weight, logo_url, sunmax_partner,
	data_source, scraped_at, notion_sync_status, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
	$12, $13, $14, $15, $16, $17, $18, $19, $20, $21
)
RETURNING id`,
		d.OrganizationID, string(d.PartnerType), d.Address, d.Latitude, d.Longitude,
		d.Phone, d.Email, d.ContactURL, d.Region, d.CountryState, d.Active,
		d.SourceID, d.LastModified, d.OrderWeight, d.LogoURL, d.SunMaxMember,
		string(d.DataSource), d.ScrapedAt, string(d.SyncStatus), d.CreatedAt, d.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert distributor: %w", err)
	}
	return id, nil
}

func (t *reconcileTx) UpdateDistributor(ctx context.Context, d *tracker.Distributor) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE distributors SET
	organization_id = $2, partner_type = $3, address = $4, latitude = $5,
	longitude = $6, phone = $7, contact_email = $8, contact_url = $9,
	region = $10, country_state = $11, is_active = $12, unifi_id = $13,
	last_modified_at = $14, order_weight = $15, logo_url = $16,
	sunmax_partner = $17, data_source = $18, scraped_at = $19,
	updated_at = $20
WHERE id = $1`,
		d.ID, d.OrganizationID, string(d.PartnerType), d.Address, d.Latitude,
		d.Longitude, d.Phone, d.Email, d.ContactURL,
		d.Region, d.CountryState, d.Active, d.SourceID,
		d.LastModified, d.OrderWeight, d.LogoURL,
		d.SunMaxMember, string(d.DataSource), d.ScrapedAt,
		d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update distributor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("distributor %d not found", d.ID)
	}
	return nil
}

func (t *reconcileTx) ActiveDistributors(ctx context.Context) ([]tracker.Distributor, error) {
	rows, err := t.tx.Query(ctx, `
SELECT`+distributorColumns+`
FROM distributors d
JOIN organizations o ON o.id = d.organization_id
WHERE d.is_active
ORDER BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("query active distributors: %w", err)
	}
	defer rows.Close()

	var out []tracker.Distributor
	for rows.Next() {
		d, err := scanDistributor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active distributor: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active distributors: %w", err)
	}
	return out, nil
}

func (t *reconcileTx) DeactivateDistributor(ctx context.Context, id int64, now time.Time) error {
	_, err := t.tx.Exec(ctx, `
UPDATE distributors SET is_active = FALSE, updated_at = $2
WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("deactivate distributor: %w", err)
	}
	return nil
}

func (t *reconcileTx) AppendChange(ctx context.Context, entry tracker.ChangeEntry) error {
	oldData, newData, err := encodeSnapshots(entry.OldData, entry.NewData)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO change_history (distributor_id, change_type, old_data, new_data, detected_at)
VALUES ($1, $2, $3, $4, $5)`,
		entry.DistributorID, string(entry.Kind), oldData, newData, entry.DetectedAt)
	if err != nil {
		return fmt.Errorf("insert change entry: %w", err)
	}
	return nil
}

func encodeSnapshots(oldData, newData tracker.Snapshot) ([]byte, []byte, error) {
	var (
		oldJSON []byte
		newJSON []byte
		err     error
	)
	if oldData != nil {
		if oldJSON, err = json.Marshal(oldData); err != nil {
			return nil, nil, fmt.Errorf("marshal old snapshot: %w", err)
		}
	}
	if newData != nil {
		if newJSON, err = json.Marshal(newData); err != nil {
			return nil, nil, fmt.Errorf("marshal new snapshot: %w", err)
		}
	}
	return oldJSON, newJSON, nil
}
