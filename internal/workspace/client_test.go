package workspace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:    srv.URL,
		Token:      "secret-token",
		DatabaseID: "db-123",
	}, zap.NewNop())
}

func TestQuerySendsFilterAndHeaders(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/databases/db-123/query", r.URL.Path)
		require.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		require.Equal(t, apiVersion, r.Header.Get("Notion-Version"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		filter := body["filter"].(map[string]any)
		require.Equal(t, "unifi_id", filter["property"])

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"id": "page-1"}, {"id": "page-2"}},
		})
	})

	refs, err := client.Query(context.Background(), map[string]any{
		"property": "unifi_id",
		"number":   map[string]any{"equals": 42},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"page-1", "page-2"}, refs)
}

func TestRetrieveDistinguishesMissingFromError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pages/page-live":
			json.NewEncoder(w).Encode(map[string]any{"id": "page-live"})
		case "/pages/page-gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	ok, err := client.Retrieve(context.Background(), "page-live")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.Retrieve(context.Background(), "page-gone")
	require.NoError(t, err, "a missing page is a clean negative")
	require.False(t, ok)

	_, err = client.Retrieve(context.Background(), "page-broken")
	require.Error(t, err)
}

func TestCreateTargetsConfiguredDatabase(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/pages", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		parent := body["parent"].(map[string]any)
		require.Equal(t, "db-123", parent["database_id"])
		require.Contains(t, body["properties"], "Company Name")

		json.NewEncoder(w).Encode(map[string]any{"id": "page-new"})
	})

	ref, err := client.Create(context.Background(), map[string]any{
		"Company Name": map[string]any{"title": []any{}},
	})
	require.NoError(t, err)
	require.Equal(t, "page-new", ref)
}

func TestUpdateSurfacesAPIErrors(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  400,
			"code":    "validation_error",
			"message": "Partner Type is not a select",
		})
	})

	err := client.Update(context.Background(), "page-1", map[string]any{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "validation_error")
	require.Contains(t, err.Error(), "Partner Type is not a select")
}
