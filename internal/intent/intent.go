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

// Package intent classifies user queries about appliance parts.
package intent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/parts-assistant/internal/openai"
)

// Intent is one of the pipeline labels
type Intent string

// Supported intents
const (
	Troubleshoot  Intent = "troubleshoot"
	Installation  Intent = "installation"
	Compatibility Intent = "compatibility"
	QnA           Intent = "qna"
	General       Intent = "general"
)

// Sources of a classification
const (
	SourceLLM      = "llm"
	SourceKeywords = "keywords"
	SourceEmpty    = "empty"
)

// SystemPrompt asks the model for exactly one label
const SystemPrompt = "You are an AI assistant specialized in classifying queries related to refrigerator and dishwasher parts. " +
	"Classify the user's query into one of the following categories: 'troubleshoot', 'installation', " +
	"'compatibility', 'qna', or 'general'. Only return the category name as the response."

// Parse maps a label to an Intent. Unknown labels report false.
func Parse(label string) (Intent, bool) {
	label = strings.ToLower(strings.Trim(strings.TrimSpace(label), "'\"`.!,:; "))
	switch Intent(label) {
	case Troubleshoot, Installation, Compatibility, QnA, General:
		return Intent(label), true
	}
	return General, false
}

// Result is the outcome of intent detection
type Result struct {
	Intent     Intent  `json:"intent"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Detector classifies with the LLM and falls back to keyword scoring
type Detector struct {
	llm      openai.Completer
	keywords *KeywordClassifier
	logger   *zap.Logger
}

// NewDetector creates a Detector. A nil completer uses keywords only.
func NewDetector(llm openai.Completer, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		llm:      llm,
		keywords: NewKeywordClassifier(),
		logger:   logger,
	}
}

// Detect classifies query. It never fails: errors degrade to keyword
// scoring and unknown answers to General.
func (d *Detector) Detect(ctx context.Context, query string) Result {
	if strings.TrimSpace(query) == "" {
		return Result{Intent: General, Source: SourceEmpty, Confidence: 1.0}
	}

	if d.llm != nil {
		answer, err := d.llm.Complete(ctx, SystemPrompt, query)
		if err == nil {
			parsed, ok := Parse(answer)
			if !ok {
				d.logger.Warn("Unexpected intent response, defaulting to general", zap.String("response", answer))
			}
			d.logger.Info("Detected intent", zap.String("intent", string(parsed)), zap.String("source", SourceLLM))
			return Result{Intent: parsed, Source: SourceLLM, Confidence: 1.0}
		}
		d.logger.Warn("Intent detection via LLM failed, using keyword scoring", zap.Error(err))
	}

	result := d.keywords.Classify(query)
	d.logger.Info("Detected intent",
		zap.String("intent", string(result.Intent)),
		zap.String("source", result.Source),
		zap.Float64("confidence", result.Confidence))
	return result
}
