package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public Yahoo Finance chart API.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

const userAgent = "Mozilla/5.0 (compatible; newsdigest)"

// Config configures the chart client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client reads instrument metadata from a Yahoo Finance compatible chart API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a chart client.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: base, http: hc}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta json.RawMessage `json:"meta"`
		} `json:"result"`
	} `json:"chart"`
}

// Quote returns the chart "meta" object of symbol verbatim (price, previous
// close, currency, exchange). A response without a result yields nil, nil.
func (c *Client) Quote(ctx context.Context, symbol string) (json.RawMessage, error) {
	u := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?interval=1d"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build chart request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request chart %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart %s returned %s", symbol, resp.Status)
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode chart %s: %w", symbol, err)
	}
	if len(body.Chart.Result) == 0 {
		return nil, nil
	}
	meta := body.Chart.Result[0].Meta
	if len(meta) == 0 || string(meta) == "null" {
		return nil, nil
	}
	return meta, nil
}
