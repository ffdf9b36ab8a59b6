// Copyright 2024 Parts Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package search queries the Google Custom Search JSON API restricted to the
// retail site and resolves product and symptom page URLs from the results.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/parts-assistant/internal/config"
	"github.com/your-org/parts-assistant/internal/metrics"
	"github.com/your-org/parts-assistant/internal/resilience"
)

const (
	// MaxResultsPerQuery is the Custom Search API limit for num
	MaxResultsPerQuery = 10
	maxErrorBody       = 512
	maxResponseBody    = 1 << 20
)

// ErrNotConfigured is returned when the API key or engine ID is missing
var ErrNotConfigured = errors.New("search API key or engine ID not configured")

// Result is one search hit
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// Searcher runs a web search and returns at most n results
type Searcher interface {
	Search(ctx context.Context, query string, n int) ([]Result, error)
}

// apiResponse mirrors the subset of the Custom Search response we read
type apiResponse struct {
	Items []Result `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// StatusError reports a non-200 answer from the search API
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search API returned status %d: %s", e.StatusCode, e.Message)
}

// Client is a Searcher backed by the Custom Search JSON API
type Client struct {
	apiKey   string
	engineID string
	endpoint string
	site     string

	httpClient *http.Client
	cache      *resultCache
	breaker    *resilience.CircuitBreaker
	backoff    resilience.BackoffConfig
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records cache lookups and breaker transitions
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBackoff overrides the retry policy
func WithBackoff(b resilience.BackoffConfig) Option {
	return func(c *Client) { c.backoff = b }
}

// NewClient creates a search client from configuration. A client without
// credentials is still returned; its Search calls fail with ErrNotConfigured.
func NewClient(cfg config.SearchConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := newResultCache(cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}

	c := &Client{
		apiKey:     cfg.APIKey,
		engineID:   cfg.CSEID,
		endpoint:   cfg.Endpoint,
		site:       cfg.Site,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      cache,
		backoff:    resilience.DefaultBackoffConfig(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig("search")
	breakerCfg.IsFailureFunc = isBreakerFailure
	breakerCfg.OnStateChange = c.metrics.BreakerStateChanged
	c.breaker = resilience.NewCircuitBreaker(breakerCfg, logger)

	return c, nil
}

// Configured reports whether credentials are present
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.engineID != ""
}

// Breaker exposes the circuit breaker for health reporting
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// Search queries the API for query restricted to the configured site
func (c *Client) Search(ctx context.Context, query string, n int) ([]Result, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	n = clampResults(n)
	query = c.restrictToSite(strings.TrimSpace(query))

	cacheKey := strconv.Itoa(n) + "|" + query
	if cached, ok := c.cache.get(cacheKey); ok {
		c.metrics.RecordCacheLookup(true)
		c.logger.Debug("Returning cached search result", zap.String("query", query))
		return cached, nil
	}
	if c.cache != nil {
		c.metrics.RecordCacheLookup(false)
	}

	var results []Result
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.WithExponentialBackoff(ctx, c.logger, c.backoff, func(ctx context.Context) error {
			var err error
			results, err = c.do(ctx, query, n)
			return err
		})
	})
	if err != nil {
		c.logger.Warn("Search failed", zap.String("query", query), zap.Error(err))
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	c.cache.set(cacheKey, results)

	c.logger.Info("Search completed",
		zap.String("query", query),
		zap.Int("results_count", len(results)))

	return results, nil
}

func (c *Client) do(ctx context.Context, query string, n int) ([]Result, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(n))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, statusErr
		}
		return nil, resilience.Permanent(statusErr)
	}

	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, resilience.Permanent(fmt.Errorf("decode search response: %w", err))
	}

	results := make([]Result, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, item)
	}
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

func (c *Client) restrictToSite(query string) string {
	if c.site == "" || strings.Contains(query, "site:") {
		return query
	}
	return query + " site:" + c.site
}

func clampResults(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxResultsPerQuery {
		return MaxResultsPerQuery
	}
	return n
}

func errorMessage(body []byte) string {
	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != nil {
		return decoded.Error.Message
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}

// isBreakerFailure keeps client-side mistakes (4xx) from opening the breaker
func isBreakerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
