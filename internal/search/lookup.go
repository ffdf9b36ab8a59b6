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

package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	symptomResultCount = 5
	partResultCount    = 5
	symptomPathMarker  = "Symptoms"
	partPathMarker     = "/parts/"
)

var (
	// ErrNoResults is returned when the search produced no hits
	ErrNoResults = errors.New("no search results")
	// ErrNoProductURL is returned when no hit points at a product page on the retail site
	ErrNoProductURL = errors.New("no product URL on retail site")
)

// Finder resolves retail-site page URLs through a Searcher
type Finder struct {
	searcher Searcher
	baseURL  string
	host     string
	logger   *zap.Logger
}

// NewFinder creates a Finder. baseURL is the retail site root, e.g.
// https://www.partselect.com/.
func NewFinder(searcher Searcher, baseURL string, logger *zap.Logger) *Finder {
	if logger == nil {
		logger = zap.NewNop()
	}
	host := ""
	if u, err := url.Parse(baseURL); err == nil {
		host = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	}
	return &Finder{
		searcher: searcher,
		baseURL:  baseURL,
		host:     host,
		logger:   logger,
	}
}

// ProductURLForModel returns the first hit for the model number when it lives
// under the retail base URL.
func (f *Finder) ProductURLForModel(ctx context.Context, modelNumber string) (string, error) {
	results, err := f.searcher.Search(ctx, modelNumber, 1)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		f.logger.Warn("No search results found for model number", zap.String("model_number", modelNumber))
		return "", ErrNoResults
	}

	link := results[0].Link
	if !strings.HasPrefix(link, f.baseURL) {
		f.logger.Warn("First search result is not a retail product page",
			zap.String("model_number", modelNumber),
			zap.String("url", link))
		return "", ErrNoProductURL
	}

	f.logger.Info("Found product URL for model", zap.String("model_number", modelNumber), zap.String("url", link))
	return link, nil
}

// ProductURLForPart prefers a retail link that mentions the part number or a
// parts path, falling back to the first retail link.
func (f *Finder) ProductURLForPart(ctx context.Context, partNumber string) (string, error) {
	results, err := f.searcher.Search(ctx, partNumber, partResultCount)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		f.logger.Warn("No search results found for part number", zap.String("part_number", partNumber))
		return "", ErrNoResults
	}

	for _, r := range results {
		f.logger.Debug("Candidate URL", zap.String("url", r.Link))
		if f.onSite(r.Link) && (strings.Contains(r.Link, partNumber) || strings.Contains(r.Link, partPathMarker)) {
			f.logger.Info("Found matching product URL", zap.String("part_number", partNumber), zap.String("url", r.Link))
			return r.Link, nil
		}
	}

	if first := results[0].Link; f.onSite(first) {
		f.logger.Info("Using first available URL", zap.String("part_number", partNumber), zap.String("url", first))
		return first, nil
	}

	return "", ErrNoProductURL
}

// SymptomPages searches for the symptom qualified by model number or brand
// and keeps links to symptom pages.
func (f *Finder) SymptomPages(ctx context.Context, symptom, modelNumber, brand string) ([]string, error) {
	qualifier := modelNumber
	if qualifier == "" {
		qualifier = brand
	}
	query := strings.TrimSpace(fmt.Sprintf("%s %s", symptom, qualifier))

	results, err := f.searcher.Search(ctx, query, symptomResultCount)
	if err != nil {
		return nil, err
	}

	pages := make([]string, 0, len(results))
	for _, r := range results {
		if strings.Contains(r.Link, symptomPathMarker) {
			pages = append(pages, r.Link)
		}
	}

	f.logger.Info("Found symptom pages", zap.String("query", query), zap.Int("count", len(pages)))
	return pages, nil
}

func (f *Finder) onSite(link string) bool {
	if f.host == "" {
		return strings.HasPrefix(link, f.baseURL)
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == f.host || strings.HasSuffix(host, "."+f.host)
}
