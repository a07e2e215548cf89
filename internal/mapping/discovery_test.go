package mapping

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// fakeSource scripts the source client for discovery tests.
type fakeSource struct {
	page     string
	pageErr  error
	listings map[string]*tracker.SourcePayload
	fetches  int
}

func (f *fakeSource) FetchListings(_ context.Context, region, country string) (*tracker.SourcePayload, tracker.FetchStats, error) {
	f.fetches++
	payload, ok := f.listings[region+"-"+country]
	if !ok {
		return nil, tracker.FetchStats{}, errors.New("no data")
	}
	return payload, tracker.FetchStats{}, nil
}

func (f *fakeSource) FetchPage(context.Context) (string, error) {
	return f.page, f.pageErr
}

func listingPayload(n int) *tracker.SourcePayload {
	p := &tracker.SourcePayload{}
	for i := 0; i < n; i++ {
		p.Resellers = append(p.Resellers, tracker.RawListing{
			Name:    fmt.Sprintf("Dist %d", i),
			Address: fmt.Sprintf("%d Main St", i),
		})
	}
	p.ResellersCount = n
	return p
}

func newTestDiscoverer(src tracker.SourceClient) *Discoverer {
	limiter := rate.NewLimiter(rate.Inf, 1)
	return NewDiscoverer(src, limiter, DiscovererConfig{ProbeCountryCap: 3, ValidateCap: 3}, zap.NewNop())
}

func TestExtractFromMetadataParsesRelaxedLiteral(t *testing.T) {
	t.Parallel()

	html := `<html><script>
		var mainRegionsData = [
			{s: 'eur', n: 'Europe', i: [{s: 'DE', n: 'Germany'}, {s: 'FR', n: 'France'},]},
			{s: 'usa', n: 'USA', i: [{s: 'CA', n: 'California'},]},
		];
	</script></html>`

	d := newTestDiscoverer(&fakeSource{})
	m := d.ExtractFromMetadata(html)
	require.NotNil(t, m)
	require.Equal(t, []string{"DE", "FR"}, m["eur"])
	require.Equal(t, []string{"CA"}, m["usa"])
}

func TestExtractFromMetadataReturnsNilOnGarbage(t *testing.T) {
	t.Parallel()

	d := newTestDiscoverer(&fakeSource{})
	require.Nil(t, d.ExtractFromMetadata("<html>no blob here</html>"))
	require.Nil(t, d.ExtractFromMetadata(`var mainRegionsData = [{s: 'eur', i: [}];`))
}

func TestDiscoverFallsThroughOnMalformedMetadata(t *testing.T) {
	t.Parallel()

	// Broken blob plus form controls whose combinations probe clean.
	html := `<html><script>var mainRegionsData = [{s: 'eur', i: [}];</script>
		<select name="region"><option value="eur">Europe</option></select>
		<select name="country_state"><option value="">All</option><option value="DE">Germany</option><option value="ZZ">Nowhere</option></select>
	</html>`

	src := &fakeSource{
		page: html,
		listings: map[string]*tracker.SourcePayload{
			"eur-DE": listingPayload(2),
		},
	}
	d := newTestDiscoverer(src)

	m := d.Discover(context.Background())
	require.Equal(t, tracker.Mapping{"eur": {"DE"}}, m)
}

func TestExtractFromFormControlsValidatesByProbe(t *testing.T) {
	t.Parallel()

	html := `<html>
		<select name="region"><option value="eur"></option><option value="usa"></option></select>
		<select name="country_state"><option value="DE"></option><option value="CA"></option></select>
	</html>`

	src := &fakeSource{
		listings: map[string]*tracker.SourcePayload{
			"eur-DE": listingPayload(1),
			"usa-CA": listingPayload(1),
		},
	}
	d := newTestDiscoverer(src)

	m := d.ExtractFromFormControls(context.Background(), html)
	require.Equal(t, tracker.Mapping{"eur": {"DE"}, "usa": {"CA"}}, m)
}

func TestExploratoryDiscoveryCapsAcceptedCountries(t *testing.T) {
	t.Parallel()

	listings := map[string]*tracker.SourcePayload{}
	for _, c := range candidateCountries {
		listings["eur-"+c] = listingPayload(1)
	}
	src := &fakeSource{listings: listings}
	d := newTestDiscoverer(src)

	m := d.ExploratoryDiscovery(context.Background())
	require.Len(t, m["eur"], 3, "accepted countries should be capped")
}

func TestExploratoryDiscoveryProbesDuplicateCodesOnce(t *testing.T) {
	t.Parallel()

	// "DE" sits in the catalog as both an ISO code and a US state code.
	src := &fakeSource{listings: map[string]*tracker.SourcePayload{"eur-DE": listingPayload(1)}}
	d := newTestDiscoverer(src)

	m := d.ExploratoryDiscovery(context.Background())
	require.Equal(t, []string{"DE"}, m["eur"])

	distinct := map[string]struct{}{}
	for _, c := range candidateCountries {
		distinct[c] = struct{}{}
	}
	require.Equal(t, len(knownRegions)*len(distinct), src.fetches,
		"each code is probed once per region")
}

func TestDiscoverSurvivesPageFetchFailure(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		pageErr: errors.New("boom"),
		listings: map[string]*tracker.SourcePayload{
			"eur-DE": listingPayload(1),
		},
	}
	d := newTestDiscoverer(src)

	m := d.Discover(context.Background())
	require.Equal(t, []string{"DE"}, m["eur"])
}

// fakeMappingStore records lifecycle calls for manager tests.
type fakeMappingStore struct {
	active      tracker.Mapping
	created     int
	verified    int
	deactivated int64
	upserted    tracker.Mapping
}

func (f *fakeMappingStore) Upsert(_ context.Context, m tracker.Mapping, _ time.Time) (int, int, error) {
	f.upserted = m
	return f.created, f.verified, nil
}

func (f *fakeMappingStore) DeactivateMissing(_ context.Context, _ tracker.Mapping, _ time.Time) (int64, error) {
	return f.deactivated, nil
}

func (f *fakeMappingStore) Active(context.Context) (tracker.Mapping, error) {
	return f.active, nil
}

func (f *fakeMappingStore) Statistics(context.Context) (*tracker.MappingStatistics, error) {
	return &tracker.MappingStatistics{TotalActive: int64(f.upserted.Total())}, nil
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func TestManagerRefreshPersistsDiscovery(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		page: `<script>var mainRegionsData = [{s: 'eur', i: [{s: 'DE'}]}];</script>`,
	}
	store := &fakeMappingStore{created: 1, verified: 0, deactivated: 2}
	mgr := NewManager(newTestDiscoverer(src), store, fixedClock{at: time.Unix(1700000000, 0)}, zap.NewNop())

	result, err := mgr.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.NewPairs)
	require.EqualValues(t, 2, result.Deactivated)
	require.Equal(t, []string{"eur"}, result.Regions)
	require.Equal(t, tracker.Mapping{"eur": {"DE"}}, store.upserted)
}

func TestManagerRefreshReportsTotalFailureAsResult(t *testing.T) {
	t.Parallel()

	src := &fakeSource{page: "<html></html>"}
	store := &fakeMappingStore{}
	mgr := NewManager(newTestDiscoverer(src), store, fixedClock{at: time.Unix(1700000000, 0)}, zap.NewNop())

	result, err := mgr.Refresh(context.Background())
	require.NoError(t, err, "total discovery failure is a result, not an error")
	require.False(t, result.Success)
	require.Equal(t, "no mappings discovered", result.Reason)
}
