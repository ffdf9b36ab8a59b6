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

// Package scraper extracts product and symptom data from retail pages.
// Each page section is parsed independently so one broken section never
// hides the others.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/your-org/parts-assistant/internal/config"
	"github.com/your-org/parts-assistant/internal/metrics"
)

// ErrSectionMissing marks a page section whose anchor element was not found
var ErrSectionMissing = errors.New("section missing")

// Scraper fetches pages and parses them
type Scraper struct {
	fetcher          Fetcher
	symptomPartLimit int
	metrics          *metrics.Metrics
	logger           *zap.Logger
}

// New creates a Scraper over an existing Fetcher
func New(fetcher Fetcher, symptomPartLimit int, m *metrics.Metrics, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if symptomPartLimit <= 0 {
		symptomPartLimit = DefaultSymptomPartLimit
	}
	return &Scraper{
		fetcher:          fetcher,
		symptomPartLimit: symptomPartLimit,
		metrics:          m,
		logger:           logger,
	}
}

// NewFetcher picks the renderer named in the configuration
func NewFetcher(cfg config.ScraperConfig, m *metrics.Metrics, logger *zap.Logger) Fetcher {
	if cfg.Renderer == "browser" {
		return NewBrowserFetcher(cfg, logger)
	}
	return NewHTTPFetcher(cfg, logger, m.BreakerStateChanged)
}

// ScrapeProduct fetches and parses a product page
func (s *Scraper) ScrapeProduct(ctx context.Context, pageURL string) (*ProductPage, error) {
	document, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		s.logger.Warn("Product page fetch failed", zap.String("url", pageURL), zap.Error(err))
		return nil, err
	}

	page, err := ParseProductPage(document, pageURL)
	if err != nil {
		return nil, err
	}
	s.reportSections("product", pageURL, page.SectionErrors)

	s.logger.Info("Scraped product page",
		zap.String("url", pageURL),
		zap.String("inventory_id", page.InventoryID),
		zap.Int("compatible_models", len(page.ModelCompatibility)),
		zap.Int("qna", len(page.QnA)))

	return page, nil
}

// ScrapeSymptom fetches and parses a symptom page
func (s *Scraper) ScrapeSymptom(ctx context.Context, pageURL string) (*SymptomPage, error) {
	document, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		s.logger.Warn("Symptom page fetch failed", zap.String("url", pageURL), zap.Error(err))
		return nil, err
	}

	page, err := ParseSymptomPage(document, pageURL, s.symptomPartLimit)
	if err != nil {
		return nil, err
	}
	s.reportSections("symptom", pageURL, page.SectionErrors)

	s.logger.Info("Scraped symptom page",
		zap.String("url", pageURL),
		zap.String("model_number", page.ModelNumber),
		zap.Int("common_parts", len(page.CommonParts)))

	return page, nil
}

// Close releases the fetcher if it holds resources
func (s *Scraper) Close() error {
	if c, ok := s.fetcher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close fetcher: %w", err)
		}
	}
	return nil
}

func (s *Scraper) reportSections(kind, pageURL string, sectionErrors map[string]string) {
	names := make([]string, 0, len(sectionErrors))
	for name := range sectionErrors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s.metrics.RecordSectionFailure(kind, name)
		s.logger.Warn("Page section extraction failed",
			zap.String("page", kind),
			zap.String("url", pageURL),
			zap.String("section", name),
			zap.String("reason", sectionErrors[name]))
	}
}
