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

// Package assistant runs a chat message through intent detection, entity
// extraction, retrieval and answer generation. Pipeline failures never
// surface as errors: they become a Result carrying a fixed message.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/parts-assistant/internal/clarification"
	"github.com/your-org/parts-assistant/internal/extract"
	"github.com/your-org/parts-assistant/internal/intent"
	"github.com/your-org/parts-assistant/internal/metrics"
	"github.com/your-org/parts-assistant/internal/openai"
	"github.com/your-org/parts-assistant/internal/scraper"
	"github.com/your-org/parts-assistant/internal/session"
	"github.com/your-org/parts-assistant/internal/synth"
	"github.com/your-org/parts-assistant/internal/transcript"
)

// Result statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultHistoryMessages is how many prior messages are given to prompts
const DefaultHistoryMessages = 6

// recordTimeout bounds the session and transcript writes after an answer.
// They outlive the request context.
const recordTimeout = 5 * time.Second

// ErrEmptyQuery is returned for a blank message
var ErrEmptyQuery = errors.New("no query provided")

// ErrLLMNotConfigured is returned when an answer is needed but no completer is set
var ErrLLMNotConfigured = errors.New("language model not configured")

// IntentDetector classifies a query
type IntentDetector interface {
	Detect(ctx context.Context, query string) intent.Result
}

// EntityExtractor pulls model, brand, part and symptom values from a query
type EntityExtractor interface {
	ModelOrBrand(ctx context.Context, query string) extract.Entities
	ForIntent(ctx context.Context, query string, in intent.Intent) extract.Entities
}

// PageFinder resolves retail page URLs
type PageFinder interface {
	ProductURLForModel(ctx context.Context, modelNumber string) (string, error)
	ProductURLForPart(ctx context.Context, partNumber string) (string, error)
	SymptomPages(ctx context.Context, symptom, modelNumber, brand string) ([]string, error)
}

// PageScraper reads retail product and symptom pages
type PageScraper interface {
	ScrapeProduct(ctx context.Context, url string) (*scraper.ProductPage, error)
	ScrapeSymptom(ctx context.Context, url string) (*scraper.SymptomPage, error)
}

// ExchangeRecorder persists exchanges
type ExchangeRecorder interface {
	RecordExchange(ctx context.Context, ex *transcript.Exchange) error
}

// Dependencies wires the pipeline's collaborators. Detector, Extractor,
// Finder and Scraper are required; the rest are optional.
type Dependencies struct {
	Detector   IntentDetector
	Extractor  EntityExtractor
	Finder     PageFinder
	Scraper    PageScraper
	LLM        openai.Completer
	Builder    *synth.Builder
	Sessions   *session.Manager
	Followups  *clarification.Analyzer
	Transcript ExchangeRecorder
	Metrics    *metrics.Metrics
}

// Options tunes the pipeline
type Options struct {
	HistoryMessages int
}

// Request is one chat message
type Request struct {
	Message   string
	SessionID string
}

// Result is the pipeline's answer to a Request
type Result struct {
	Response   string           `json:"response"`
	HTML       string           `json:"response_html,omitempty"`
	Status     string           `json:"status"`
	Intent     intent.Intent    `json:"intent"`
	Entities   extract.Entities `json:"entities"`
	SourceURL  string           `json:"source_url,omitempty"`
	SessionID  string           `json:"session_id,omitempty"`
	ExchangeID string           `json:"exchange_id,omitempty"`
}

// Assistant orchestrates the query pipeline
type Assistant struct {
	detector   IntentDetector
	extractor  EntityExtractor
	finder     PageFinder
	scraper    PageScraper
	llm        openai.Completer
	builder    *synth.Builder
	sessions   *session.Manager
	followups  *clarification.Analyzer
	transcript ExchangeRecorder
	metrics    *metrics.Metrics
	options    Options
	logger     *zap.Logger
}

// New creates an Assistant
func New(deps Dependencies, opts Options, logger *zap.Logger) (*Assistant, error) {
	switch {
	case deps.Detector == nil:
		return nil, fmt.Errorf("intent detector is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("entity extractor is required")
	case deps.Finder == nil:
		return nil, fmt.Errorf("page finder is required")
	case deps.Scraper == nil:
		return nil, fmt.Errorf("page scraper is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Builder == nil {
		deps.Builder = synth.NewBuilder(synth.DefaultPromptConfig())
	}
	if deps.Followups == nil {
		deps.Followups = clarification.NewAnalyzer()
	}
	if opts.HistoryMessages <= 0 {
		opts.HistoryMessages = DefaultHistoryMessages
	}

	return &Assistant{
		detector:   deps.Detector,
		extractor:  deps.Extractor,
		finder:     deps.Finder,
		scraper:    deps.Scraper,
		llm:        deps.LLM,
		builder:    deps.Builder,
		sessions:   deps.Sessions,
		followups:  deps.Followups,
		transcript: deps.Transcript,
		metrics:    deps.Metrics,
		options:    opts,
		logger:     logger,
	}, nil
}

// outcome is what an intent pipeline produced
type outcome struct {
	response  string
	sourceURL string
	status    string
}

func failed(message string) outcome {
	return outcome{response: message, status: StatusError}
}

// HandleQuery answers a chat message. The only error is ErrEmptyQuery;
// everything else is reported in the Result.
func (a *Assistant) HandleQuery(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	query := strings.TrimSpace(session.SanitizeUserInput(req.Message))
	if query == "" {
		return nil, ErrEmptyQuery
	}

	logger := a.logger.With(zap.String("session_id", req.SessionID))
	logger.Info("Processing query", zap.String("query", query))

	sessionID, history := a.loadHistory(ctx, req.SessionID, logger)

	in, entities := a.understand(ctx, query)
	entities = a.resolveFollowup(query, history, entities, logger)

	historyText := session.BuildConversationContext(history)
	var out outcome
	switch in {
	case intent.Troubleshoot:
		out = a.troubleshoot(ctx, query, entities, historyText)
	case intent.Installation:
		out = a.installation(ctx, query, entities, historyText)
	case intent.Compatibility:
		out = a.compatibility(ctx, query, entities, historyText)
	case intent.QnA:
		out = a.qna(ctx, query, entities, historyText)
	default:
		out = failed(MsgGeneralGuidance)
	}

	result := &Result{
		Response:   out.response,
		Status:     out.status,
		Intent:     in,
		Entities:   entities,
		SourceURL:  out.sourceURL,
		SessionID:  sessionID,
		ExchangeID: uuid.NewString(),
	}
	if out.status == StatusSuccess {
		result.Response = synth.AppendSourceLink(synth.CleanResponse(out.response), out.sourceURL)
	}
	result.HTML = synth.RenderHTML(result.Response)

	a.record(ctx, query, result, time.Since(start), logger)
	a.metrics.RecordChat(string(in), result.Status)
	a.metrics.ObserveStage(metrics.StageTotal, start)

	logger.Info("Query handled",
		zap.String("intent", string(in)),
		zap.String("status", result.Status),
		zap.Duration("latency", time.Since(start)))

	return result, nil
}

// understand detects the intent while the model number or brand is
// extracted, then extracts what the intent additionally needs.
func (a *Assistant) understand(ctx context.Context, query string) (intent.Intent, extract.Entities) {
	var (
		detected intent.Result
		identity extract.Entities
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer a.metrics.ObserveStage(metrics.StageIntent, time.Now())
		detected = a.detector.Detect(gctx, query)
		return nil
	})
	g.Go(func() error {
		defer a.metrics.ObserveStage(metrics.StageExtract, time.Now())
		identity = a.extractor.ModelOrBrand(gctx, query)
		return nil
	})
	// Both stages degrade to defaults and never return an error.
	_ = g.Wait()

	a.logger.Info("Detected intent",
		zap.String("intent", string(detected.Intent)),
		zap.String("source", detected.Source))

	extractStart := time.Now()
	specific := a.extractor.ForIntent(ctx, query, detected.Intent)
	a.metrics.ObserveStage(metrics.StageExtract, extractStart)

	return detected.Intent, extract.Merge(identity, specific)
}

func (a *Assistant) loadHistory(ctx context.Context, sessionID string, logger *zap.Logger) (string, []session.Message) {
	if a.sessions == nil {
		return sessionID, nil
	}

	sess, err := a.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		logger.Warn("Failed to load session", zap.Error(err))
		return sessionID, nil
	}
	history, err := a.sessions.History(ctx, sess.ID, a.options.HistoryMessages)
	if err != nil {
		logger.Warn("Failed to load conversation history", zap.Error(err))
		return sess.ID, nil
	}
	return sess.ID, history
}

// resolveFollowup fills entities the query refers back to from earlier turns
func (a *Assistant) resolveFollowup(query string, history []session.Message, ent extract.Entities, logger *zap.Logger) extract.Entities {
	have := entityMetadata(ent)
	fc := a.followups.ResolveFollowup(query, history, have)
	if fc == nil {
		return ent
	}

	carried := extract.Entities{
		ModelNumber: fc.Carried[clarification.KeyModelNumber],
		PartNumber:  fc.Carried[clarification.KeyPartNumber],
		Brand:       fc.Carried[clarification.KeyBrand],
	}
	merged := extract.Merge(ent, carried)
	if merged.ModelNumber != "" {
		merged.Brand = ""
	}

	logger.Info("Resolved follow-up from history",
		zap.String("type", fc.Type),
		zap.Strings("references", fc.ReferencesFound),
		zap.Any("carried", fc.Carried))
	return merged
}

func entityMetadata(ent extract.Entities) map[string]string {
	meta := map[string]string{}
	if ent.ModelNumber != "" {
		meta[clarification.KeyModelNumber] = ent.ModelNumber
	}
	if ent.PartNumber != "" {
		meta[clarification.KeyPartNumber] = ent.PartNumber
	}
	if ent.Brand != "" {
		meta[clarification.KeyBrand] = ent.Brand
	}
	return meta
}

// record stores the turn in the session and the exchange in the transcript.
// The writes run on a detached context so an expired request still records
// its answer. Failures are logged and clear ExchangeID.
func (a *Assistant) record(ctx context.Context, query string, result *Result, latency time.Duration, logger *zap.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if a.sessions != nil && result.SessionID != "" {
		if _, err := a.sessions.AddMessage(rctx, result.SessionID, session.UserRole, query, entityMetadata(result.Entities)); err != nil {
			logger.Warn("Failed to store user message", zap.Error(err))
		} else if _, err := a.sessions.AddMessage(rctx, result.SessionID, session.AssistantRole, result.Response, map[string]string{
			"intent": string(result.Intent),
			"status": result.Status,
		}); err != nil {
			logger.Warn("Failed to store assistant message", zap.Error(err))
		}
	}

	if a.transcript == nil {
		result.ExchangeID = ""
		return
	}
	ex := &transcript.Exchange{
		ID:          result.ExchangeID,
		SessionID:   result.SessionID,
		Query:       query,
		Intent:      string(result.Intent),
		ModelNumber: result.Entities.ModelNumber,
		PartNumber:  result.Entities.PartNumber,
		Brand:       result.Entities.Brand,
		Symptom:     result.Entities.Symptom,
		Status:      result.Status,
		SourceURL:   result.SourceURL,
		Latency:     latency,
	}
	if err := a.transcript.RecordExchange(rctx, ex); err != nil {
		logger.Warn("Failed to record exchange", zap.Error(err))
		result.ExchangeID = ""
	}
}

// generate asks the LLM to answer a prompt
func (a *Assistant) generate(ctx context.Context, prompt synth.Prompt) (string, error) {
	if a.llm == nil {
		return "", ErrLLMNotConfigured
	}
	if err := synth.ValidatePrompt(prompt); err != nil {
		return "", err
	}

	defer a.metrics.ObserveStage(metrics.StageGenerate, time.Now())
	answer, err := a.llm.Complete(ctx, prompt.System, prompt.User)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("failed to generate answer: empty response")
	}
	return answer, nil
}
