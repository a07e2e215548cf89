package tracker

import (
	"encoding/json"
	"testing"
)

func int64Ptr(v int64) *int64     { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestIdentityKeyPrefersSourceID(t *testing.T) {
	t.Parallel()

	withID := Record{Name: "Acme", Address: "1 Main St", SourceID: int64Ptr(101)}
	if got := withID.IdentityKey(); got != "id:101" {
		t.Fatalf("IdentityKey() = %q, want id:101", got)
	}

	withoutID := Record{Name: "  Acme  ", Address: "1 Main St"}
	if got := withoutID.IdentityKey(); got != "name_addr:acme:1 main st" {
		t.Fatalf("IdentityKey() = %q, want normalized name_addr key", got)
	}
}

func TestIdentityKeyMatchesPersistedRow(t *testing.T) {
	t.Parallel()

	rec := Record{Name: "Acme", Address: "1 Main St", SourceID: int64Ptr(7)}
	row := Distributor{OrganizationName: "ACME", Address: "1 MAIN ST", SourceID: int64Ptr(7)}
	if rec.IdentityKey() != row.IdentityKey() {
		t.Fatalf("record and row keys differ: %q vs %q", rec.IdentityKey(), row.IdentityKey())
	}

	rec.SourceID = nil
	row.SourceID = nil
	if rec.IdentityKey() != row.IdentityKey() {
		t.Fatalf("fallback keys differ: %q vs %q", rec.IdentityKey(), row.IdentityKey())
	}
}

func TestEqualCoordToleratesStoredPrecision(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b *float64
		want bool
	}{
		{"both nil", nil, nil, true},
		{"one nil", floatPtr(1), nil, false},
		{"equal", floatPtr(48.85661), floatPtr(48.85661), true},
		{"below precision", floatPtr(48.856610000001), floatPtr(48.85661), true},
		{"above precision", floatPtr(48.8567), floatPtr(48.85661), false},
	}
	for _, tc := range cases {
		if got := EqualCoord(tc.a, tc.b); got != tc.want {
			t.Fatalf("%s: EqualCoord = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFlexStringAcceptsStringsAndNumbers(t *testing.T) {
	t.Parallel()

	var payload struct {
		Lat FlexString `json:"lat"`
		Lng FlexString `json:"lng"`
		Bad FlexString `json:"bad"`
	}
	raw := []byte(`{"lat":"48.85661","lng":2.3522219,"bad":null}`)
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Lat.String() != "48.85661" {
		t.Fatalf("lat = %q", payload.Lat)
	}
	if payload.Lng.String() != "2.3522219" {
		t.Fatalf("lng = %q", payload.Lng)
	}
	if payload.Bad.String() != "" {
		t.Fatalf("null should decode to empty, got %q", payload.Bad)
	}
}

func TestSnapshotFormatsCoordinates(t *testing.T) {
	t.Parallel()

	d := Distributor{
		OrganizationName: "Acme",
		PartnerType:      PartnerMaster,
		Address:          "1 Main St",
		Latitude:         floatPtr(48.5),
		Active:           true,
	}
	snap := d.Snapshot()
	if snap["latitude"] != "48.5" {
		t.Fatalf("latitude snapshot = %v", snap["latitude"])
	}
	if snap["longitude"] != nil {
		t.Fatalf("nil longitude should snapshot as nil, got %v", snap["longitude"])
	}
	if snap["is_active"] != true {
		t.Fatalf("is_active snapshot = %v", snap["is_active"])
	}
}

func TestMappingHelpers(t *testing.T) {
	t.Parallel()

	m := Mapping{"eur": {"DE", "FR"}, "usa": {"CA"}}
	if m.Total() != 3 {
		t.Fatalf("Total() = %d, want 3", m.Total())
	}
	if got := m.Regions(); len(got) != 2 || got[0] != "eur" || got[1] != "usa" {
		t.Fatalf("Regions() = %v", got)
	}
	if !m.Contains("eur", "FR") || m.Contains("usa", "FR") {
		t.Fatal("Contains() misbehaved")
	}
}
