// Package tracker defines the domain model shared across the scrape,
// reconcile and sync stages, plus the interfaces their collaborators
// implement.
package tracker

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// PartnerType classifies a distributor listing.
type PartnerType string

// Partner tiers accepted by the source.
const (
	PartnerMaster PartnerType = "master"
	PartnerSimple PartnerType = "simple"
)

// Valid reports whether the partner type is one of the closed enum values.
func (p PartnerType) Valid() bool {
	return p == PartnerMaster || p == PartnerSimple
}

// DataSource tags which ingestion path produced a record.
type DataSource string

// Known data sources.
const (
	SourceJSONAPI    DataSource = "json_api"
	SourceHTMLLegacy DataSource = "html_legacy"
)

// SyncStatus tracks the state of a distributor's mirror in the workspace.
type SyncStatus string

// Sync bookkeeping states.
const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// ChangeKind names one lifecycle event in the change history.
type ChangeKind string

// Change kinds recorded by the reconcile engine. Deactivation is stored
// as ChangeUpdated; the distributor row itself is never deleted.
const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Record is one normalized listing produced by the fetch stage. Both the
// JSON API and the legacy HTML path normalize into this shape; downstream
// stages never see the raw payloads.
type Record struct {
	Name         string
	PartnerType  PartnerType
	WebsiteURL   string
	Address      string
	Phone        string
	Email        string
	ContactURL   string
	Latitude     *float64
	Longitude    *float64
	Region       string
	CountryState string

	SourceID     *int64
	LastModified *time.Time
	OrderWeight  *int
	LogoURL      string
	SunMaxMember *bool

	DataSource DataSource
	ScrapedAt  time.Time
}

// IdentityKey returns the deduplication key for the record. The
// source-assigned numeric id wins when present; otherwise the normalized
// (name, address) pair is used.
func (r Record) IdentityKey() string {
	if r.SourceID != nil {
		return fmt.Sprintf("id:%d", *r.SourceID)
	}
	return r.PairKey()
}

// PairKey is the (name, address) identity form regardless of whether a
// source id is present.
func (r Record) PairKey() string {
	return "name_addr:" + NormalizeKey(r.Name) + ":" + NormalizeKey(r.Address)
}

// Organization owns distributor listings. Identity is the normalized
// name; organizations are created implicitly and never deleted.
type Organization struct {
	ID         int64
	Name       string
	WebsiteURL string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Distributor is one persisted listing.
type Distributor struct {
	ID               int64
	OrganizationID   int64
	OrganizationName string
	WebsiteURL       string
	PartnerType      PartnerType
	Address          string
	Latitude         *float64
	Longitude        *float64
	Phone            string
	Email            string
	ContactURL       string
	Region           string
	CountryState     string
	Active           bool

	SourceID     *int64
	LastModified *time.Time
	OrderWeight  *int
	LogoURL      string
	SunMaxMember *bool
	DataSource   DataSource
	ScrapedAt    *time.Time

	PageRef      string
	LastSyncedAt *time.Time
	SyncStatus   SyncStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IdentityKey mirrors Record.IdentityKey for persisted rows so a fetch
// batch can be matched against storage.
func (d *Distributor) IdentityKey() string {
	if d.SourceID != nil {
		return fmt.Sprintf("id:%d", *d.SourceID)
	}
	return d.PairKey()
}

// PairKey mirrors Record.PairKey for persisted rows.
func (d *Distributor) PairKey() string {
	return "name_addr:" + NormalizeKey(d.OrganizationName) + ":" + NormalizeKey(d.Address)
}

// Snapshot captures the tracked fields of a distributor for the change
// history. Keys are stable; coordinate values are formatted strings so
// snapshots survive the stored decimal precision.
type Snapshot map[string]any

// Snapshot builds the change-history snapshot of the distributor's
// tracked fields.
func (d *Distributor) Snapshot() Snapshot {
	return Snapshot{
		"company_name":  d.OrganizationName,
		"partner_type":  string(d.PartnerType),
		"address":       d.Address,
		"latitude":      FormatCoord(d.Latitude),
		"longitude":     FormatCoord(d.Longitude),
		"phone":         d.Phone,
		"contact_email": d.Email,
		"contact_url":   d.ContactURL,
		"region":        d.Region,
		"country_state": d.CountryState,
		"is_active":     d.Active,
	}
}

// ChangeEntry is one immutable change-history row.
type ChangeEntry struct {
	ID            int64
	DistributorID *int64
	Kind          ChangeKind
	OldData       Snapshot
	NewData       Snapshot
	DetectedAt    time.Time
}

// Mapping holds the active (region, country/state) combinations keyed by
// region code. Country lists are kept sorted for deterministic scans.
type Mapping map[string][]string

// Total counts the combinations across all regions.
func (m Mapping) Total() int {
	n := 0
	for _, countries := range m {
		n += len(countries)
	}
	return n
}

// Regions returns the region codes in sorted order.
func (m Mapping) Regions() []string {
	regions := make([]string, 0, len(m))
	for region := range m {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}

// Contains reports whether the (region, country) pair is part of the
// mapping.
func (m Mapping) Contains(region, country string) bool {
	for _, c := range m[region] {
		if c == country {
			return true
		}
	}
	return false
}

// MappingRow is one persisted (region, country) combination with its
// discovery lifecycle timestamps.
type MappingRow struct {
	ID             int64
	Region         string
	Country        string
	Active         bool
	DiscoveredAt   time.Time
	LastVerifiedAt time.Time
}

// NormalizeKey lowercases and trims a string for identity comparison.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// coordPrecision matches the scale of the stored decimal columns.
const coordPrecision = 1e8

// EqualCoord compares two optional coordinates at the precision of the
// stored decimal type.
func EqualCoord(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Round(*a*coordPrecision) == math.Round(*b*coordPrecision)
}

// FormatCoord renders an optional coordinate for snapshots; nil stays nil.
func FormatCoord(v *float64) any {
	if v == nil {
		return nil
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", *v), "0"), ".")
}
