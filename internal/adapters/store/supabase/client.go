// Package supabase implements the account datastore against a
// Supabase PostgREST endpoint: accounts in chatgpt_accounts, probe
// results in chatgpt_scrapes, and counter adjustments through an RPC
// so concurrent deltas serialize server-side.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/probelab/visprobe/internal/domain"
	"github.com/probelab/visprobe/internal/ports"
)

const (
	accountsTable      = "chatgpt_accounts"
	scrapesTable       = "chatgpt_scrapes"
	adjustCountersRPC  = "adjust_account_counters"
	maxResponseBodyLen = 1 << 20
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ ports.AccountStore = (*Client)(nil)

func NewClient(baseURL, apiKey string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("supabase base URL is empty")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("supabase API key is empty")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}, nil
}

type accountRow struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Failures  int    `json:"failures"`
	Usages    int    `json:"usages"`
	CreatedAt string `json:"created_at"`
}

type scrapeRow struct {
	ID                string   `json:"id,omitempty"`
	Customer          string   `json:"customer"`
	AccountEmail      string   `json:"account_email"`
	Query             string   `json:"query"`
	CitedSources      []string `json:"cited_sources"`
	Candidates        []string `json:"candidates"`
	BestCandidate     string   `json:"best_candidate"`
	CustomerMentioned bool     `json:"customer_mentioned"`
	CustomerTopRanked bool     `json:"customer_top_ranked"`
	CreatedAt         string   `json:"created_at,omitempty"`
}

func (c *Client) QueryLeasable(ctx context.Context, failuresLessThan, limit int) ([]domain.Account, error) {
	query := url.Values{}
	query.Set("select", "email,password,failures,usages,created_at")
	query.Set("failures", "lt."+strconv.Itoa(failuresLessThan))
	query.Set("order", "created_at.desc")
	query.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, accountsTable, query.Encode())

	body, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}

	var rows []accountRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}

	accounts := make([]domain.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, domain.Account{
			Email:     row.Email,
			Password:  row.Password,
			Failures:  row.Failures,
			Usages:    row.Usages,
			CreatedAt: parseTime(row.CreatedAt),
		})
	}

	return accounts, nil
}

func (c *Client) AdjustCounters(ctx context.Context, email string, delta ports.CounterDelta) error {
	payload, err := json.Marshal(map[string]any{
		"target_email":   email,
		"failures_delta": delta.Failures,
		"usages_delta":   delta.Usages,
	})
	if err != nil {
		return fmt.Errorf("encode counter delta: %w", err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, adjustCountersRPC)
	if _, err := c.do(ctx, http.MethodPost, endpoint, payload, ""); err != nil {
		return fmt.Errorf("adjust counters for %s: %w", email, err)
	}

	return nil
}

func (c *Client) InsertResult(ctx context.Context, record domain.Record) (domain.Record, error) {
	payload, err := json.Marshal(scrapeRow{
		Customer:          record.Customer,
		AccountEmail:      record.AccountEmail,
		Query:             record.Query,
		CitedSources:      emptyIfNil(record.CitedSources),
		Candidates:        emptyIfNil(record.Candidates),
		BestCandidate:     record.BestCandidate,
		CustomerMentioned: record.CustomerMentioned,
		CustomerTopRanked: record.CustomerTopRanked,
	})
	if err != nil {
		return domain.Record{}, fmt.Errorf("encode result record: %w", err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, scrapesTable)
	body, err := c.do(ctx, http.MethodPost, endpoint, payload, "return=representation")
	if err != nil {
		return domain.Record{}, fmt.Errorf("insert result: %w", err)
	}

	var rows []scrapeRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return domain.Record{}, fmt.Errorf("decode inserted result: %w", err)
	}
	if len(rows) == 0 {
		return domain.Record{}, fmt.Errorf("insert result: empty representation")
	}

	inserted := record
	inserted.ID = rows[0].ID
	inserted.CreatedAt = parseTime(rows[0].CreatedAt)

	return inserted, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, prefer string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	request.Header.Set("apikey", c.apiKey)
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		request.Header.Set("Prefer", prefer)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyLen))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed
		}
	}

	return time.Time{}
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
