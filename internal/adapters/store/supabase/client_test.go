package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/visprobe/internal/domain"
	"github.com/probelab/visprobe/internal/ports"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient("", "key", nil)
	require.Error(t, err)

	_, err = NewClient("https://example.supabase.co", "  ", nil)
	require.Error(t, err)

	client, err := NewClient("https://example.supabase.co/", "key", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.supabase.co", client.baseURL)
}

func TestQueryLeasableBuildsPostgRESTQuery(t *testing.T) {
	t.Parallel()

	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"email":"a@example.com","password":"pw","failures":1,"usages":4,"created_at":"2026-08-29T10:00:00Z"},
			{"email":"b@example.com","password":"pw2","failures":0,"usages":0,"created_at":"2026-08-28T10:00:00Z"}
		]`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "secret", server.Client())
	require.NoError(t, err)

	accounts, err := client.QueryLeasable(context.Background(), 3, 1000)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "a@example.com", accounts[0].Email)
	assert.Equal(t, "pw", accounts[0].Password)
	assert.Equal(t, 1, accounts[0].Failures)
	assert.Equal(t, 4, accounts[0].Usages)
	assert.False(t, accounts[0].CreatedAt.IsZero())

	require.NotNil(t, captured)
	assert.Equal(t, http.MethodGet, captured.Method)
	assert.Equal(t, "/rest/v1/chatgpt_accounts", captured.URL.Path)
	params := captured.URL.Query()
	assert.Equal(t, "lt.3", params.Get("failures"))
	assert.Equal(t, "created_at.desc", params.Get("order"))
	assert.Equal(t, "1000", params.Get("limit"))
	assert.Equal(t, "secret", captured.Header.Get("apikey"))
	assert.Equal(t, "Bearer secret", captured.Header.Get("Authorization"))
}

func TestAdjustCountersCallsRPC(t *testing.T) {
	t.Parallel()

	var (
		capturedPath string
		capturedBody map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&capturedBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "secret", server.Client())
	require.NoError(t, err)

	err = client.AdjustCounters(context.Background(), "a@example.com", ports.CounterDelta{Failures: 100})
	require.NoError(t, err)

	assert.Equal(t, "/rest/v1/rpc/adjust_account_counters", capturedPath)
	assert.Equal(t, "a@example.com", capturedBody["target_email"])
	assert.Equal(t, float64(100), capturedBody["failures_delta"])
	assert.Equal(t, float64(0), capturedBody["usages_delta"])
}

func TestInsertResultReturnsRepresentation(t *testing.T) {
	t.Parallel()

	var (
		capturedPrefer string
		capturedRow    scrapeRow
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPrefer = r.Header.Get("Prefer")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&capturedRow))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"row-42","customer":"acme","account_email":"a@example.com","query":"best crm","cited_sources":["acme.com"],"candidates":["acme"],"best_candidate":"acme","customer_mentioned":true,"customer_top_ranked":true,"created_at":"2026-08-29T10:00:00Z"}]`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "secret", server.Client())
	require.NoError(t, err)

	inserted, err := client.InsertResult(context.Background(), domain.Record{
		Customer:          "acme",
		AccountEmail:      "a@example.com",
		Query:             "best crm",
		CitedSources:      []string{"acme.com"},
		BestCandidate:     "acme",
		CustomerMentioned: true,
		CustomerTopRanked: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "return=representation", capturedPrefer)
	assert.Equal(t, "acme", capturedRow.Customer)
	assert.NotNil(t, capturedRow.Candidates)
	assert.Equal(t, "row-42", inserted.ID)
	assert.False(t, inserted.CreatedAt.IsZero())
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "wrong", server.Client())
	require.NoError(t, err)

	_, err = client.QueryLeasable(context.Background(), 3, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestParseTimeLayouts(t *testing.T) {
	t.Parallel()

	assert.False(t, parseTime("2026-08-29T10:00:00Z").IsZero())
	assert.False(t, parseTime("2026-08-29T10:00:00.123456").IsZero())
	assert.True(t, parseTime("").IsZero())
	assert.True(t, parseTime("not-a-time").IsZero())
}
