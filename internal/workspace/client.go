// Package workspace talks to the external workspace's HTTP API. It only
// transports requests; filter and property composition lives in the
// sync engine.
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
)

// Config carries the workspace credentials and target database.
type Config struct {
	BaseURL    string
	Token      string
	DatabaseID string
	Timeout    time.Duration
}

// Client implements tracker.Workspace over HTTP.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a workspace client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type queryResponse struct {
	Results []struct {
		ID string `json:"id"`
	} `json:"results"`
}

type pageResponse struct {
	ID string `json:"id"`
}

type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Query returns the page references matching the filter.
func (c *Client) Query(ctx context.Context, filter map[string]any) ([]string, error) {
	body := map[string]any{"filter": filter}
	var out queryResponse
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/databases/%s/query", c.cfg.BaseURL, c.cfg.DatabaseID), body, &out)
	if err != nil {
		return nil, fmt.Errorf("query database: %w", err)
	}
	refs := make([]string, 0, len(out.Results))
	for _, r := range out.Results {
		refs = append(refs, r.ID)
	}
	return refs, nil
}

// Retrieve reports whether the page reference still resolves. A 404 is a
// clean negative, not an error.
func (c *Client) Retrieve(ctx context.Context, pageRef string) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("%s/pages/%s", c.cfg.BaseURL, pageRef), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("retrieve page: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 400:
		return false, c.decodeError(resp)
	}
	return true, nil
}

// Create inserts a page into the configured database.
func (c *Client) Create(ctx context.Context, properties map[string]any) (string, error) {
	body := map[string]any{
		"parent":     map[string]any{"database_id": c.cfg.DatabaseID},
		"properties": properties,
	}
	var out pageResponse
	if err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/pages", body, &out); err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	return out.ID, nil
}

// Update rewrites properties on an existing page.
func (c *Client) Update(ctx context.Context, pageRef string, properties map[string]any) error {
	body := map[string]any{"properties": properties}
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("%s/pages/%s", c.cfg.BaseURL, pageRef), body, nil)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, method, url, reader)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Notion-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) decodeError(resp *http.Response) error {
	var apiErr apiError
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr); err != nil || apiErr.Message == "" {
		return fmt.Errorf("workspace API status %d", resp.StatusCode)
	}
	return fmt.Errorf("workspace API status %d (%s): %s", resp.StatusCode, apiErr.Code, apiErr.Message)
}
