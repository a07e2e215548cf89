package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchListingsParsesPayload(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		require.Equal(t, "eur", r.URL.Query().Get("region"))
		require.Equal(t, "DE", r.URL.Query().Get("country_state"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"resellers": [{"id": 11, "name": "Acme", "address": "1 Main St", "latitude": "48.1", "longitude": 11.5}],
			"master_resellers": [{"name": "Hub GmbH", "address": "2 Ring Rd"}],
			"resellers_count": 1,
			"master_resellers_count": 1
		}`))
	})

	client := New(Config{BaseURL: srv.URL, UserAgent: "test-agent", Timeout: 5 * time.Second})
	payload, stats, err := client.FetchListings(context.Background(), "eur", "DE")
	require.NoError(t, err)
	require.Len(t, payload.Resellers, 1)
	require.Len(t, payload.MasterResellers, 1)
	require.Equal(t, 2, stats.Total())

	r := payload.Resellers[0]
	require.NotNil(t, r.ID)
	require.EqualValues(t, 11, *r.ID)
	require.Equal(t, "48.1", r.Latitude.String())
	require.Equal(t, "11.5", r.Longitude.String())
}

func TestFetchListingsRejectsNonJSON(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	})

	client := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, _, err := client.FetchListings(context.Background(), "eur", "DE")
	require.Error(t, err)
	require.Contains(t, err.Error(), "non-JSON")
}

func TestFetchListingsSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	client := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, _, err := client.FetchListings(context.Background(), "eur", "DE")
	require.Error(t, err)
}

func TestFetchPageReturnsHTML(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><select name=\"region\"></select></html>"))
	})

	client := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	html, err := client.FetchPage(context.Background())
	require.NoError(t, err)
	require.Contains(t, html, "select")
}

func TestFetchListingsCanceledContext(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, _, err := client.FetchListings(ctx, "eur", "DE")
	require.Error(t, err)
}
