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

// Package extract pulls model numbers, part numbers, brands and symptoms
// out of user queries. Patterns are tried first and the LLM is asked only
// when they find nothing.
package extract

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/parts-assistant/internal/intent"
	"github.com/your-org/parts-assistant/internal/openai"
)

// MinModelNumberLength separates model numbers from shorter part numbers
const MinModelNumberLength = 8

// Prompts for the LLM fallbacks
const (
	ModelNumberPrompt = "Extract the appliance model number from the query. Common formats include:\n" +
		"- WRS588FIHZ00 (Whirlpool)\n" +
		"- GSS25GSHSS (GE)\n" +
		"- RF28HMEDBSR (Samsung)\n" +
		"Return only the model number or 'None' if not found. " +
		"Ignore part numbers which are usually shorter."
	PartNumberPrompt = "Extract the part number from the query. Return only the part number or 'None' if not found."
	BrandPrompt      = "Extract the appliance brand name from the query. Return only the brand name or 'None' if not found."
	SymptomPrompt    = "You are an AI assistant that extracts the main symptom from a user's query. " +
		"Given a user's message, identify and return the primary symptom they are experiencing. " +
		"Only return the symptom as a short phrase."
)

var modelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z]{2,}\d{2,}[A-Z0-9]+\b`),
	regexp.MustCompile(`\b[A-Z]+\d{4,}[A-Z]*\d*\b`),
	regexp.MustCompile(`\b\d{1,2}-?[A-Z]{1,2}\d{3,}\b`),
}

var partNumberPattern = regexp.MustCompile(`\bPS\d{5,}\b`)

// KnownBrands are matched case-insensitively before asking the LLM
var KnownBrands = []string{
	"Whirlpool", "GE", "Samsung", "LG", "Frigidaire", "Kenmore", "Maytag",
	"KitchenAid", "Bosch", "Electrolux", "Amana", "Jenn-Air", "Hotpoint",
}

var brandPatterns = compileBrandPatterns(KnownBrands)

func compileBrandPatterns(brands []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(brands))
	for i, b := range brands {
		patterns[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(b) + `\b`)
	}
	return patterns
}

// Entities are the values found in a query. Empty means not found.
type Entities struct {
	ModelNumber string `json:"model_number,omitempty"`
	PartNumber  string `json:"part_number,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Symptom     string `json:"symptom,omitempty"`
}

// Extractor finds entities with patterns and an LLM fallback
type Extractor struct {
	llm    openai.Completer
	logger *zap.Logger
}

// New creates an Extractor. A nil completer disables the LLM fallback.
func New(llm openai.Completer, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{llm: llm, logger: logger}
}

// ModelNumber returns the first pattern match of at least
// MinModelNumberLength characters, else asks the LLM.
func (e *Extractor) ModelNumber(ctx context.Context, query string) string {
	upper := strings.ToUpper(query)
	for _, pattern := range modelPatterns {
		for _, match := range pattern.FindAllString(upper, -1) {
			if len(match) >= MinModelNumberLength && !partNumberPattern.MatchString(match) {
				return match
			}
		}
	}
	return e.ask(ctx, "model_number", ModelNumberPrompt, query)
}

// PartNumber returns a PartSelect number from the query, else asks the LLM
func (e *Extractor) PartNumber(ctx context.Context, query string) string {
	if match := partNumberPattern.FindString(strings.ToUpper(query)); match != "" {
		return match
	}
	return e.ask(ctx, "part_number", PartNumberPrompt, query)
}

// Brand returns a known brand named in the query, else asks the LLM
func (e *Extractor) Brand(ctx context.Context, query string) string {
	for i, pattern := range brandPatterns {
		if pattern.MatchString(query) {
			return KnownBrands[i]
		}
	}
	return e.ask(ctx, "brand", BrandPrompt, query)
}

// Symptom asks the LLM for a short description of the problem
func (e *Extractor) Symptom(ctx context.Context, query string) string {
	return e.ask(ctx, "symptom", SymptomPrompt, query)
}

// ModelOrBrand looks for a model number and, only when none is found, a brand
func (e *Extractor) ModelOrBrand(ctx context.Context, query string) Entities {
	var ent Entities
	ent.ModelNumber = e.ModelNumber(ctx, query)
	if ent.ModelNumber == "" {
		ent.Brand = e.Brand(ctx, query)
	}
	e.logger.Info("Extracted appliance identity",
		zap.String("model_number", ent.ModelNumber),
		zap.String("brand", ent.Brand))
	return ent
}

// ForIntent extracts the entities the given intent needs beyond the
// model number and brand. Extractors run concurrently.
func (e *Extractor) ForIntent(ctx context.Context, query string, in intent.Intent) Entities {
	var ent Entities
	g, gctx := errgroup.WithContext(ctx)

	switch in {
	case intent.Troubleshoot:
		g.Go(func() error {
			ent.Symptom = e.Symptom(gctx, query)
			return nil
		})
	case intent.Installation, intent.Compatibility, intent.QnA:
		g.Go(func() error {
			ent.PartNumber = e.PartNumber(gctx, query)
			return nil
		})
	}

	// Extractors degrade to empty values and never return an error.
	_ = g.Wait()
	return ent
}

// Merge fills empty fields of a from b
func Merge(a, b Entities) Entities {
	if a.ModelNumber == "" {
		a.ModelNumber = b.ModelNumber
	}
	if a.PartNumber == "" {
		a.PartNumber = b.PartNumber
	}
	if a.Brand == "" {
		a.Brand = b.Brand
	}
	if a.Symptom == "" {
		a.Symptom = b.Symptom
	}
	return a
}

func (e *Extractor) ask(ctx context.Context, field, prompt, query string) string {
	if e.llm == nil {
		return ""
	}
	answer, err := e.llm.Complete(ctx, prompt, query)
	if err != nil {
		e.logger.Warn("LLM extraction failed", zap.String("field", field), zap.Error(err))
		return ""
	}
	value := Clean(answer)
	if value == "" {
		e.logger.Debug("LLM found no value", zap.String("field", field))
	}
	return value
}

// Clean normalizes an LLM answer to a single value. "None" and empty
// answers become "".
func Clean(answer string) string {
	value := strings.TrimSpace(answer)
	if i := strings.IndexAny(value, "\r\n"); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	value = strings.Trim(value, "'\"`")
	value = strings.TrimSpace(strings.TrimSuffix(value, "."))
	if strings.EqualFold(value, "none") || strings.EqualFold(value, "n/a") {
		return ""
	}
	return value
}
