package tracker

import (
	"context"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// FetchStats carries the declared category counts of one source
// response, used to cross-check the actual list lengths.
type FetchStats struct {
	ResellersCount       int
	MasterResellersCount int
}

// Total sums the declared counts.
func (s FetchStats) Total() int {
	return s.ResellersCount + s.MasterResellersCount
}

// SourcePayload is the structured body returned by the source endpoint
// for one (region, country) combination.
type SourcePayload struct {
	Resellers            []RawListing `json:"resellers"`
	MasterResellers      []RawListing `json:"master_resellers"`
	ResellersCount       int          `json:"resellers_count"`
	MasterResellersCount int          `json:"master_resellers_count"`
}

// RawListing is one untrusted record as delivered by the source. String
// fields arrive unsanitized; coordinates may be strings, numbers or
// garbage and are validated during normalization.
type RawListing struct {
	ID           *int64     `json:"id"`
	Name         string     `json:"name"`
	Address      string     `json:"address"`
	Phone        string     `json:"phone"`
	Email        string     `json:"email"`
	URL          string     `json:"url"`
	Latitude     FlexString `json:"latitude"`
	Longitude    FlexString `json:"longitude"`
	LastModified string     `json:"last_modified"`
	Order        *int       `json:"order"`
	Logo         string     `json:"logo"`
	SunMax       *bool      `json:"sunmax"`
}

// SourceClient fetches from the vendor's public site. Implementations
// own transport-level retries and timeouts; a failed fetch surfaces as
// an error to be logged and skipped, never as a process-fatal condition.
type SourceClient interface {
	// FetchListings requests the structured payload for one combination.
	FetchListings(ctx context.Context, region, country string) (*SourcePayload, FetchStats, error)
	// FetchPage retrieves the discovery page HTML.
	FetchPage(ctx context.Context) (string, error)
}

// ReconcileTx is the storage surface the reconcile engine drives inside
// one transaction. Lookup methods return (nil, nil) when no row matches.
type ReconcileTx interface {
	OrganizationByName(ctx context.Context, name string) (*Organization, error)
	CreateOrganization(ctx context.Context, name, websiteURL string, now time.Time) (int64, error)
	UpdateOrganizationWebsite(ctx context.Context, id int64, websiteURL string, now time.Time) error

	DistributorBySourceID(ctx context.Context, sourceID int64) (*Distributor, error)
	DistributorByOrgAddress(ctx context.Context, orgID int64, address string) (*Distributor, error)
	CreateDistributor(ctx context.Context, d *Distributor) (int64, error)
	UpdateDistributor(ctx context.Context, d *Distributor) error
	ActiveDistributors(ctx context.Context) ([]Distributor, error)
	DeactivateDistributor(ctx context.Context, id int64, now time.Time) error

	AppendChange(ctx context.Context, entry ChangeEntry) error
}

// DistributorStore persists organizations and distributors.
type DistributorStore interface {
	// WithTx runs fn inside one transaction; any error rolls the whole
	// batch back.
	WithTx(ctx context.Context, fn func(ReconcileTx) error) error
	// SyncCandidates returns all distributors joined with their
	// organization, ordered active-first, JSON-sourced-first, by order
	// weight descending, then newest-first.
	SyncCandidates(ctx context.Context) ([]Distributor, error)
	// UpdateSyncBookkeeping writes back the remote page reference and
	// sync status for one row.
	UpdateSyncBookkeeping(ctx context.Context, id int64, pageRef string, status SyncStatus, at time.Time) error
	// Statistics reports aggregate counts over the stored data.
	Statistics(ctx context.Context) (*Statistics, error)
}

// HistoryStore persists the append-only change history.
type HistoryStore interface {
	// Prune deletes entries detected before the cutoff and reports how
	// many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	// ChangesForDistributor lists recent entries for one distributor.
	ChangesForDistributor(ctx context.Context, distributorID int64, limit int) ([]ChangeEntry, error)
	// RecentSummary counts entries by kind since the given time.
	RecentSummary(ctx context.Context, since time.Time) (map[ChangeKind]int64, error)
}

// MappingStore persists the (region, country) combination lifecycle.
type MappingStore interface {
	// Upsert inserts newly discovered pairs and bumps last_verified_at on
	// known ones, reactivating pairs previously marked inactive.
	Upsert(ctx context.Context, m Mapping, now time.Time) (created, verified int, err error)
	// DeactivateMissing soft-removes active pairs absent from the
	// discovery result.
	DeactivateMissing(ctx context.Context, m Mapping, now time.Time) (int64, error)
	// Active returns the active pairs grouped by region, ordered.
	Active(ctx context.Context) (Mapping, error)
	// Statistics reports mapping lifecycle counts.
	Statistics(ctx context.Context) (*MappingStatistics, error)
}

// Workspace exposes the external workspace's record primitives. The sync
// engine composes filters; implementations only transport them.
type Workspace interface {
	// Query returns matching page references for a filter expression.
	Query(ctx context.Context, filter map[string]any) ([]string, error)
	// Retrieve reports whether a page reference still resolves.
	Retrieve(ctx context.Context, pageRef string) (bool, error)
	// Create inserts a new page and returns its reference.
	Create(ctx context.Context, properties map[string]any) (string, error)
	// Update rewrites properties on an existing page.
	Update(ctx context.Context, pageRef string, properties map[string]any) error
}

// Publisher emits run-summary events to interested downstreams.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Archiver stores a raw batch blob for later inspection or replay.
type Archiver interface {
	Save(ctx context.Context, objectName string, data []byte) error
}
