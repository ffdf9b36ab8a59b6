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

package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/your-org/parts-assistant/internal/config"
	"github.com/your-org/parts-assistant/internal/resilience"
)

const maxPageBytes = 4 << 20

// ErrPageNotFound is returned when the retail site answers 404
var ErrPageNotFound = errors.New("page not found")

// Fetcher returns the HTML of a page
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// HTTPStatusError reports an unexpected status from the retail site
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// newLimiter builds the shared politeness limiter for the retail host
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// HTTPFetcher fetches static HTML with net/http
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	breaker   *resilience.CircuitBreaker
	backoff   resilience.BackoffConfig
	logger    *zap.Logger
}

// NewHTTPFetcher creates a fetcher from scraper configuration
func NewHTTPFetcher(cfg config.ScraperConfig, logger *zap.Logger, onBreakerChange func(string, resilience.CircuitState, resilience.CircuitState)) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig("scraper")
	breakerCfg.IsFailureFunc = isFetchFailure
	breakerCfg.OnStateChange = onBreakerChange

	return &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		limiter:   newLimiter(cfg.RequestsPerSecond, cfg.Burst),
		breaker:   resilience.NewCircuitBreaker(breakerCfg, logger),
		backoff:   resilience.DefaultBackoffConfig(),
		logger:    logger,
	}
}

// Breaker exposes the circuit breaker for health reporting
func (f *HTTPFetcher) Breaker() *resilience.CircuitBreaker {
	return f.breaker
}

// Fetch downloads pageURL, waiting for the rate limiter first
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	var body string
	err := f.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.WithExponentialBackoff(ctx, f.logger, f.backoff, func(ctx context.Context) error {
			if err := f.limiter.Wait(ctx); err != nil {
				return resilience.Permanent(err)
			}
			var err error
			body, err = f.get(ctx, pageURL)
			return err
		})
	})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}

	f.logger.Debug("Fetched page", zap.String("url", pageURL), zap.Int("bytes", len(body)))
	return body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", resilience.Permanent(err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", resilience.Permanent(ErrPageNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, URL: pageURL}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", resilience.Permanent(&HTTPStatusError{StatusCode: resp.StatusCode, URL: pageURL})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// isFetchFailure counts transport errors and server-side statuses only
func isFetchFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrPageNotFound) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

