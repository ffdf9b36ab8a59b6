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

package assistant

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/parts-assistant/internal/clarification"
	"github.com/your-org/parts-assistant/internal/extract"
	"github.com/your-org/parts-assistant/internal/intent"
	"github.com/your-org/parts-assistant/internal/metrics"
	"github.com/your-org/parts-assistant/internal/scraper"
	"github.com/your-org/parts-assistant/internal/synth"
)

func (a *Assistant) troubleshoot(ctx context.Context, query string, ent extract.Entities, history string) outcome {
	if ent.Symptom == "" {
		a.logger.Warn("No symptom extracted from query")
		return failed(clarification.Message(intent.Troubleshoot, clarification.MissingSymptom))
	}

	searchStart := time.Now()
	pages, err := a.finder.SymptomPages(ctx, ent.Symptom, ent.ModelNumber, ent.Brand)
	a.metrics.ObserveStage(metrics.StageSearch, searchStart)
	if err != nil || len(pages) == 0 {
		a.logger.Warn("No symptom pages found", zap.String("symptom", ent.Symptom), zap.Error(err))
		return failed(MsgNoSymptomPages)
	}

	scrapeStart := time.Now()
	page, err := a.scraper.ScrapeSymptom(ctx, pages[0])
	a.metrics.ObserveStage(metrics.StageScrape, scrapeStart)
	if err != nil {
		return failed(MsgNoTroubleshootingData)
	}

	data, ok := synth.ShapeTroubleshooting(ent.Symptom, page)
	if !ok {
		a.logger.Warn("No common parts found on symptom page", zap.String("url", pages[0]))
		return failed(MsgNoTroubleshootingData)
	}

	prompt, err := a.builder.Troubleshoot(query, data, history)
	if err != nil {
		a.logger.Error("Failed to build troubleshooting prompt", zap.Error(err))
		return failed(MsgGenerationFailed)
	}
	answer, err := a.generate(ctx, prompt)
	if err != nil {
		a.logger.Error("Error generating troubleshooting response", zap.Error(err))
		return failed(MsgGenerationFailed)
	}

	return outcome{response: answer, sourceURL: pages[0], status: StatusSuccess}
}

func (a *Assistant) installation(ctx context.Context, query string, ent extract.Entities, history string) outcome {
	if ent.PartNumber == "" {
		return failed(clarification.Message(intent.Installation, clarification.MissingPartNumber))
	}

	url, ok := a.partURL(ctx, ent.PartNumber)
	if !ok {
		return failed(fmt.Sprintf(MsgPartNotFound, ent.PartNumber))
	}

	page, ok := a.scrapeProduct(ctx, url)
	if !ok {
		return failed(MsgInstallationUnavailable)
	}

	prompt, err := a.builder.Installation(query, page, history)
	if err != nil {
		a.logger.Error("Failed to build installation prompt", zap.Error(err))
		return failed(MsgGenerationFailed)
	}
	answer, err := a.generate(ctx, prompt)
	if err != nil {
		a.logger.Error("Error generating installation instructions", zap.Error(err))
		return failed(MsgGenerationFailed)
	}

	return outcome{response: answer, sourceURL: url, status: StatusSuccess}
}

// compatibility reads the part's page for its model cross reference,
// falling back to the model's page when the part cannot be found.
func (a *Assistant) compatibility(ctx context.Context, query string, ent extract.Entities, history string) outcome {
	if ent.ModelNumber == "" && ent.Brand == "" {
		return failed(clarification.Message(intent.Compatibility, clarification.MissingModelOrBrand))
	}
	if ent.PartNumber == "" {
		return failed(clarification.Message(intent.Compatibility, clarification.MissingPartNumber))
	}

	url, ok := a.partURL(ctx, ent.PartNumber)
	if !ok && ent.ModelNumber != "" {
		url, ok = a.modelURL(ctx, ent.ModelNumber)
		if !ok {
			return failed(fmt.Sprintf(MsgModelNotFound, ent.ModelNumber))
		}
	}
	if !ok {
		return failed(fmt.Sprintf(MsgPartNotFound, ent.PartNumber))
	}

	page, ok := a.scrapeProduct(ctx, url)
	if !ok {
		return failed(MsgCompatibilityUnavailable)
	}

	prompt, err := a.builder.Compatibility(synth.CompatibilityInput{
		Query:       query,
		ModelNumber: ent.ModelNumber,
		Brand:       ent.Brand,
		PartNumber:  ent.PartNumber,
		Page:        page,
		History:     history,
	})
	if err != nil {
		a.logger.Error("Failed to build compatibility prompt", zap.Error(err))
		return failed(MsgGenerationFailed)
	}
	answer, err := a.generate(ctx, prompt)
	if err != nil {
		a.logger.Error("Error generating compatibility response", zap.Error(err))
		return failed(MsgGenerationFailed)
	}

	return outcome{response: answer, sourceURL: url, status: StatusSuccess}
}

// qna answers general parts questions, grounded on the product page when
// the query names a part that can be found.
func (a *Assistant) qna(ctx context.Context, query string, ent extract.Entities, history string) outcome {
	var (
		page *scraper.ProductPage
		url  string
	)
	if ent.PartNumber != "" {
		if u, ok := a.partURL(ctx, ent.PartNumber); ok {
			if p, ok := a.scrapeProduct(ctx, u); ok {
				page, url = p, u
			}
		}
	}

	prompt, err := a.builder.QnA(query, page, history)
	if err != nil {
		a.logger.Error("Failed to build Q&A prompt", zap.Error(err))
		return failed(MsgQnAFailed)
	}
	answer, err := a.generate(ctx, prompt)
	if err != nil {
		a.logger.Error("Error generating Q&A response", zap.Error(err))
		return failed(MsgQnAFailed)
	}

	return outcome{response: answer, sourceURL: url, status: StatusSuccess}
}

func (a *Assistant) partURL(ctx context.Context, partNumber string) (string, bool) {
	defer a.metrics.ObserveStage(metrics.StageSearch, time.Now())
	url, err := a.finder.ProductURLForPart(ctx, partNumber)
	if err != nil || url == "" {
		a.logger.Warn("No product URL for part", zap.String("part_number", partNumber), zap.Error(err))
		return "", false
	}
	return url, true
}

func (a *Assistant) modelURL(ctx context.Context, modelNumber string) (string, bool) {
	defer a.metrics.ObserveStage(metrics.StageSearch, time.Now())
	url, err := a.finder.ProductURLForModel(ctx, modelNumber)
	if err != nil || url == "" {
		a.logger.Warn("No product URL for model", zap.String("model_number", modelNumber), zap.Error(err))
		return "", false
	}
	return url, true
}

func (a *Assistant) scrapeProduct(ctx context.Context, url string) (*scraper.ProductPage, bool) {
	defer a.metrics.ObserveStage(metrics.StageScrape, time.Now())
	page, err := a.scraper.ScrapeProduct(ctx, url)
	if err != nil || page == nil {
		return nil, false
	}
	return page, true
}
