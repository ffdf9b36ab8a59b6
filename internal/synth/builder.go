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

// Package synth shapes retrieved data into prompts and post-processes the
// model's markdown answers.
package synth

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/your-org/parts-assistant/internal/scraper"
)

const truncationNotice = "...\n\n[Data truncated due to length limits]"

// Prompt is a system and user message pair
type Prompt struct {
	System string
	User   string
}

// PromptConfig holds configuration for prompt generation
type PromptConfig struct {
	// MaxTokens bounds the estimated size of the user message
	MaxTokens int
}

// DefaultPromptConfig returns default configuration
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{MaxTokens: 6000}
}

// System prompts per intent
const (
	TroubleshootSystemPrompt = "You are a helpful appliance repair assistant. Create a concise but detailed response using the provided information. " +
		"Format your response using these guidelines:\n" +
		"1. Use '### ' for main sections\n" +
		"2. Use '#### ' for subsections\n" +
		"3. Use bullet points for lists\n" +
		"4. Keep sections compact but informative\n\n" +
		"Include these sections:\n" +
		"### Problem Analysis\n" +
		"- Brief description of the issue\n" +
		"- Potential causes\n\n" +
		"### Solution\n" +
		"#### Required Parts\n" +
		"- Part information\n" +
		"- Fix success rate\n\n" +
		"#### Repair Steps\n" +
		"1. Numbered steps\n" +
		"2. Clear instructions\n\n" +
		"Keep the formatting consistent and clean."

	InstallationSystemPrompt = "You are a helpful appliance repair assistant. Create a concise but detailed response using the provided information. " +
		"Format your response using these guidelines:\n" +
		"1. Use '### ' for main sections (Part Info)\n" +
		"2. Use '#### ' for subsections (Tools Needed)\n" +
		"3. Use bullet points for lists\n" +
		"4. Keep sections compact but informative\n\n" +
		"Include these sections:\n" +
		"### Part Information\n" +
		"- Part details and compatibility\n" +
		"- Price and availability\n\n" +
		"### Installation Guide\n" +
		"#### Tools Needed\n" +
		"- List required tools\n" +
		"- Estimated time\n\n" +
		"#### Safety First\n" +
		"- Key safety precautions\n\n" +
		"#### Steps\n" +
		"1. Numbered steps\n" +
		"2. Clear instructions\n\n" +
		"Keep the formatting consistent and clean."

	CompatibilitySystemPrompt = "You are a helpful appliance repair assistant. Create a concise response about part compatibility. " +
		"Format your response using these guidelines:\n\n" +
		"#### Compatibility Summary\n" +
		"- Start with a clear yes/no statement\n" +
		"- Keep it brief and direct\n\n" +
		"#### Part Details\n" +
		"- Part name and number\n" +
		"- Basic specifications\n\n" +
		"#### Notes\n" +
		"- Important compatibility details\n" +
		"- Installation considerations\n\n" +
		"Use:\n" +
		"- '#### ' for section headers (smaller headers)\n" +
		"- Bullet points for lists\n" +
		"- Brief, clear sentences\n" +
		"- No large headers\n" +
		"Keep the entire response concise and well-organized."

	QnASystemPrompt = "You are a helpful chatbot specialized in PartSelect queries for refrigerator and dishwasher parts. " +
		"Use the provided data or your training knowledge, but remain within that domain. " +
		"If not relevant to parts, politely decline."
)

// Builder composes per-intent prompts within a size budget
type Builder struct {
	config PromptConfig
}

// NewBuilder creates a Builder
func NewBuilder(config PromptConfig) *Builder {
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultPromptConfig().MaxTokens
	}
	return &Builder{config: config}
}

// Troubleshoot builds the prompt for a shaped symptom page
func (b *Builder) Troubleshoot(query string, data TroubleshootData, history string) (Prompt, error) {
	payload, err := toJSON(data)
	if err != nil {
		return Prompt{}, err
	}
	head := withHistory(history, fmt.Sprintf("Query: %s\n\n", query))
	return Prompt{
		System: TroubleshootSystemPrompt,
		User:   head + "Troubleshooting Data: " + b.fit(head, payload),
	}, nil
}

// Installation builds the prompt for a scraped product page
func (b *Builder) Installation(query string, page *scraper.ProductPage, history string) (Prompt, error) {
	payload, err := toJSON(page)
	if err != nil {
		return Prompt{}, err
	}
	head := withHistory(history, fmt.Sprintf("Query: %s\n\n", query))
	return Prompt{
		System: InstallationSystemPrompt,
		User:   head + "Installation Data: " + b.fit(head, payload),
	}, nil
}

// CompatibilityInput holds what the compatibility prompt reports
type CompatibilityInput struct {
	Query       string
	ModelNumber string
	Brand       string
	PartNumber  string
	Page        *scraper.ProductPage
	History     string
}

// Compatibility builds the prompt for a part/model check, including the
// deterministic cross-reference verdict.
func (b *Builder) Compatibility(in CompatibilityInput) (Prompt, error) {
	payload, err := toJSON(in.Page)
	if err != nil {
		return Prompt{}, err
	}

	var head strings.Builder
	fmt.Fprintf(&head, "Query: %s\n", in.Query)
	fmt.Fprintf(&head, "Model Number: %s\n", valueOrNone(in.ModelNumber))
	if in.ModelNumber == "" && in.Brand != "" {
		fmt.Fprintf(&head, "Brand: %s\n", in.Brand)
	}
	fmt.Fprintf(&head, "Part Number: %s\n", in.PartNumber)
	fmt.Fprintf(&head, "Cross-Reference Check: %s\n", CompatibilityVerdict(in.Page, in.ModelNumber, in.Brand))

	prefix := withHistory(in.History, head.String())
	return Prompt{
		System: CompatibilitySystemPrompt,
		User:   prefix + "Compatibility Data: " + b.fit(prefix, payload),
	}, nil
}

// QnA builds a domain-restricted prompt. page may be nil.
func (b *Builder) QnA(query string, page *scraper.ProductPage, history string) (Prompt, error) {
	head := withHistory(history, fmt.Sprintf("Query: %s", query))
	if page == nil {
		return Prompt{System: QnASystemPrompt, User: head}, nil
	}

	payload, err := toJSON(page)
	if err != nil {
		return Prompt{}, err
	}
	head += "\n\n"
	return Prompt{
		System: QnASystemPrompt,
		User:   head + "Product Data: " + b.fit(head, payload),
	}, nil
}

// fit truncates payload so head plus payload stays within MaxTokens
func (b *Builder) fit(head, payload string) string {
	budget := b.config.MaxTokens - EstimateTokens(head)
	if budget < 1 {
		budget = 1
	}
	return TruncateToTokenLimit(payload, budget)
}

func withHistory(history, head string) string {
	if strings.TrimSpace(history) == "" {
		return head
	}
	return "Conversation so far:\n" + history + "\n\n" + head
}

func toJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt data: %w", err)
	}
	return string(data), nil
}

func valueOrNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// EstimateTokens provides a rough estimate of token count (4 characters ≈ 1 token)
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// TruncateToTokenLimit truncates text to fit within token limit
func TruncateToTokenLimit(text string, maxTokens int) string {
	if EstimateTokens(text) <= maxTokens {
		return text
	}

	// Use 90% of the target to leave room for the truncation notice
	targetChars := int(float64(maxTokens) * 4 * 0.9)
	runes := []rune(text)
	if len(runes) > targetChars {
		return string(runes[:targetChars]) + truncationNotice
	}
	return text
}

// ValidatePrompt checks that a prompt has both messages and a query line
func ValidatePrompt(p Prompt) error {
	if strings.TrimSpace(p.System) == "" {
		return fmt.Errorf("system prompt cannot be empty")
	}
	if strings.TrimSpace(p.User) == "" {
		return fmt.Errorf("user prompt cannot be empty")
	}
	if !strings.Contains(p.User, "Query: ") {
		return fmt.Errorf("user prompt must contain the query")
	}
	return nil
}
