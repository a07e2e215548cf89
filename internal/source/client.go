// Package source implements the vendor-site client using gocolly.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/uitrack/distributor-tracker/internal/tracker"
)

// Config controls collector behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client fetches the distributor endpoint and the discovery page. One
// Client owns one base collector; every request runs on a clone so no
// visit state leaks between calls.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Client.
func New(cfg Config) *Client {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:           cfg,
		baseCollector: c,
	}
}

// FetchListings requests the structured payload for one (region,
// country) combination. The endpoint only answers with JSON when asked
// the way the site's own frontend asks.
func (c *Client) FetchListings(ctx context.Context, region, country string) (*tracker.SourcePayload, tracker.FetchStats, error) {
	target, err := c.listingURL(region, country)
	if err != nil {
		return nil, tracker.FetchStats{}, err
	}

	body, contentType, err := c.get(ctx, target, map[string]string{
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"X-Requested-With": "XMLHttpRequest",
	})
	if err != nil {
		return nil, tracker.FetchStats{}, err
	}
	if !strings.Contains(contentType, "application/json") {
		return nil, tracker.FetchStats{}, fmt.Errorf("non-JSON response for %s-%s: content type %q", region, country, contentType)
	}

	var payload tracker.SourcePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, tracker.FetchStats{}, fmt.Errorf("decode listings for %s-%s: %w", region, country, err)
	}

	stats := tracker.FetchStats{
		ResellersCount:       payload.ResellersCount,
		MasterResellersCount: payload.MasterResellersCount,
	}
	return &payload, stats, nil
}

// FetchPage retrieves the discovery page HTML.
func (c *Client) FetchPage(ctx context.Context) (string, error) {
	body, _, err := c.get(ctx, c.cfg.BaseURL, map[string]string{
		"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) listingURL(region, country string) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("region", region)
	q.Set("country_state", country)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, target string, headers map[string]string) ([]byte, string, error) {
	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	var (
		body        []byte
		contentType string
		fetchErr    error
	)

	collector.OnRequest(func(r *colly.Request) {
		for key, value := range headers {
			r.Headers.Set(key, value)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		contentType = r.Headers.Get("Content-Type")
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.runCollector(ctx, collector, target, &fetchErr); err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

func (c *Client) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("source fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("source visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("source response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
