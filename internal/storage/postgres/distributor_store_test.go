package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/uitrack/distributor-tracker/internal/tracker"
)

var storedAt = time.Date(2026, 8, 4, 8, 0, 0, 0, time.UTC)

var distributorCols = []string{
	"id", "organization_id", "name", "website_url", "partner_type",
	"address", "latitude", "longitude", "phone", "contact_email",
	"contact_url", "region", "country_state", "is_active", "unifi_id",
	"last_modified_at", "order_weight", "logo_url", "sunmax_partner",
	"data_source", "scraped_at", "notion_page_id", "notion_last_sync",
	"notion_sync_status", "created_at", "updated_at",
}

func fullDistributorRow() []any {
	sourceID := int64(42)
	lat, lng := 52.52, 13.405
	order := 3
	sunmax := false
	scraped := storedAt
	return []any{
		int64(1), int64(10), "Acme Networks", "https://acme.example.com", "master",
		"1 Main St", &lat, &lng, "+49 30 1", "sales@acme.example.com",
		"", "eur", "DE", true, &sourceID,
		(*time.Time)(nil), &order, "", &sunmax,
		"json_api", &scraped, "page-7", (*time.Time)(nil),
		"pending", storedAt, storedAt,
	}
}

func TestSyncCandidatesScansJoinedRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDistributorStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery(`ORDER BY d\.is_active DESC, d\.data_source DESC`).
		WillReturnRows(pgxmock.NewRows(distributorCols).AddRow(fullDistributorRow()...))

	candidates, err := store.SyncCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	d := candidates[0]
	require.Equal(t, int64(1), d.ID)
	require.Equal(t, "Acme Networks", d.OrganizationName)
	require.Equal(t, tracker.PartnerMaster, d.PartnerType)
	require.Equal(t, tracker.SourceJSONAPI, d.DataSource)
	require.Equal(t, tracker.SyncPending, d.SyncStatus)
	require.Equal(t, "page-7", d.PageRef)
	require.NotNil(t, d.Latitude)
	require.InDelta(t, 52.52, *d.Latitude, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSyncBookkeeping(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDistributorStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE distributors").
		WithArgs(int64(5), "page-1", storedAt, "synced").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.UpdateSyncBookkeeping(context.Background(), 5, "page-1", tracker.SyncSynced, storedAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSyncBookkeepingMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDistributorStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE distributors").
		WithArgs(int64(99), "page-1", storedAt, "synced").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.UpdateSyncBookkeeping(context.Background(), 99, "page-1", tracker.SyncSynced, storedAt)
	require.Error(t, err)
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDistributorStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO organizations").
		WithArgs("Acme Networks", "https://acme.example.com", storedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	err = store.WithTx(context.Background(), func(tx tracker.ReconcileTx) error {
		id, err := tx.CreateOrganization(context.Background(), "Acme Networks", "https://acme.example.com", storedAt)
		require.NoError(t, err)
		require.Equal(t, int64(7), id)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDistributorStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = store.WithTx(context.Background(), func(tracker.ReconcileTx) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupsReturnNilOnMiss(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDistributorStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, website_url").
		WithArgs("Nobody Inc").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`WHERE d\.unifi_id`).
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	err = store.WithTx(context.Background(), func(tx tracker.ReconcileTx) error {
		org, err := tx.OrganizationByName(context.Background(), "Nobody Inc")
		require.NoError(t, err)
		require.Nil(t, org)

		d, err := tx.DistributorBySourceID(context.Background(), 404)
		require.NoError(t, err)
		require.Nil(t, d)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendChangeEncodesSnapshots(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDistributorStoreWithPool(mock)
	require.NoError(t, err)

	distID := int64(3)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO change_history").
		WithArgs(&distID, "updated", []byte(`{"phone":"+49 30 1"}`), []byte(`{"phone":"+49 30 2"}`), storedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = store.WithTx(context.Background(), func(tx tracker.ReconcileTx) error {
		return tx.AppendChange(context.Background(), tracker.ChangeEntry{
			DistributorID: &distID,
			Kind:          tracker.ChangeUpdated,
			OldData:       tracker.Snapshot{"phone": "+49 30 1"},
			NewData:       tracker.Snapshot{"phone": "+49 30 2"},
			DetectedAt:    storedAt,
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
