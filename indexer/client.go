package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Client is a thin pass-through to the third-party indexing API. Responses
// are forwarded verbatim; the gateway does not reinterpret the indexer's
// data model.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds indexer client configuration
type Config struct {
	// BaseURL is the indexer API root, e.g. https://api.blockvision.org/v2/monad
	BaseURL string

	// APIKey is sent on every request via the x-api-key header
	APIKey string

	// Timeout bounds individual requests (default 15s)
	Timeout time.Duration

	Logger *zap.Logger
}

// Query holds the common pass-through parameters
type Query struct {
	// Address is the account or contract address (required)
	Address string

	// Cursor is the opaque pagination cursor from a previous page
	Cursor string

	// Limit is the page size; zero means the indexer's default
	Limit int
}

// UpstreamError is a non-2xx indexer response
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("indexer returned status %d: %s", e.StatusCode, e.Body)
}

// NewClient creates an indexer client
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// AccountTransactions returns the indexer's transaction history page for an
// address
func (c *Client) AccountTransactions(ctx context.Context, q Query) (json.RawMessage, error) {
	return c.get(ctx, "/account/transactions", q)
}

// AccountTokens returns the indexer's token holdings page for an address
func (c *Client) AccountTokens(ctx context.Context, q Query) (json.RawMessage, error) {
	return c.get(ctx, "/account/tokens", q)
}

// AccountActivities returns the indexer's activity feed page for an address
func (c *Client) AccountActivities(ctx context.Context, q Query) (json.RawMessage, error) {
	return c.get(ctx, "/account/activities", q)
}

func (c *Client) get(ctx context.Context, path string, q Query) (json.RawMessage, error) {
	if q.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	params := url.Values{}
	params.Set("address", q.Address)
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build indexer request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read indexer response: %w", err)
	}

	c.logger.Debug("indexer request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
