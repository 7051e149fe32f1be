// Package pxweb provides an HTTP client for PX-Web statistical query APIs
// such as api.scb.se: table-data queries with item/wildcard filters,
// table metadata reads, and navigation-tree listings.
package pxweb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for PX-Web requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pxfetch_requests_total",
		Help: "Total PX-Web requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pxfetch_request_duration_seconds",
		Help:    "PX-Web request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method"})
)

// Client is a PX-Web API client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.scb.se".
	BaseURL string

	// UserAgent identifies the downloader to the API operator.
	UserAgent string

	// Timeout bounds one HTTP round trip.
	Timeout time.Duration
}

// DefaultConfig returns a configuration for the SCB API.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://api.scb.se",
		UserAgent: "pxfetch/0.1.0",
		Timeout:   60 * time.Second,
	}
}

// New creates a PX-Web client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "pxweb-client").Logger(),
	}, nil
}

// URL joins the base URL with a table or navigation path.
func (c *Client) URL(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.Trim(path, "/")
}

// Get performs a GET request against a navigation or metadata path and
// returns the raw JSON body. Non-2xx statuses return an *APIError.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

// TableInfo fetches and decodes the metadata document of a table.
func (c *Client) TableInfo(ctx context.Context, tablePath string) (*TableInfo, error) {
	body, err := c.Get(ctx, tablePath)
	if err != nil {
		return nil, err
	}

	var info TableInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode table metadata for %s: %w", tablePath, err)
	}
	return &info, nil
}

// TableData posts a data query for a table and decodes the structured
// JSON response. Non-2xx statuses return an *APIError, which the caller's
// retry policy treats as transient.
func (c *Client) TableData(ctx context.Context, tablePath string, query Query) (*DataResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(tablePath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp DataResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode data response for %s: %w", tablePath, err)
	}
	return &resp, nil
}

// do executes a request, records metrics, and maps non-2xx statuses to
// *APIError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	if err != nil {
		requestsTotal.WithLabelValues(req.Method, "network_error").Inc()
		c.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("HTTP request failed")
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(req.Method, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Path:       req.URL.Path,
			Body:       truncate(string(body), 512),
		}
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("path", req.URL.Path).
			Msg("PX-Web request error")
		return nil, apiErr
	}

	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
