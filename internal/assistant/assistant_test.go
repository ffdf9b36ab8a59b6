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
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/parts-assistant/internal/extract"
	"github.com/your-org/parts-assistant/internal/intent"
	"github.com/your-org/parts-assistant/internal/metrics"
	"github.com/your-org/parts-assistant/internal/scraper"
	"github.com/your-org/parts-assistant/internal/search"
	"github.com/your-org/parts-assistant/internal/session"
	"github.com/your-org/parts-assistant/internal/synth"
	"github.com/your-org/parts-assistant/internal/transcript"
)

const (
	partURL    = "https://www.partselect.com/PS11752778-Whirlpool-WPW10321304-Refrigerator-Door-Shelf-Bin.htm"
	modelURL   = "https://www.partselect.com/Models/WRS588FIHZ00/"
	symptomURL = "https://www.partselect.com/Models/WRS588FIHZ00/Symptoms/Ice-maker-not-making-ice/"
)

type mockDetector struct{ mock.Mock }

func (m *mockDetector) Detect(ctx context.Context, query string) intent.Result {
	return m.Called(ctx, query).Get(0).(intent.Result)
}

type mockExtractor struct{ mock.Mock }

func (m *mockExtractor) ModelOrBrand(ctx context.Context, query string) extract.Entities {
	return m.Called(ctx, query).Get(0).(extract.Entities)
}

func (m *mockExtractor) ForIntent(ctx context.Context, query string, in intent.Intent) extract.Entities {
	return m.Called(ctx, query, in).Get(0).(extract.Entities)
}

type mockFinder struct{ mock.Mock }

func (m *mockFinder) ProductURLForModel(ctx context.Context, modelNumber string) (string, error) {
	args := m.Called(ctx, modelNumber)
	return args.String(0), args.Error(1)
}

func (m *mockFinder) ProductURLForPart(ctx context.Context, partNumber string) (string, error) {
	args := m.Called(ctx, partNumber)
	return args.String(0), args.Error(1)
}

func (m *mockFinder) SymptomPages(ctx context.Context, symptom, modelNumber, brand string) ([]string, error) {
	args := m.Called(ctx, symptom, modelNumber, brand)
	pages, _ := args.Get(0).([]string)
	return pages, args.Error(1)
}

type mockScraper struct{ mock.Mock }

func (m *mockScraper) ScrapeProduct(ctx context.Context, url string) (*scraper.ProductPage, error) {
	args := m.Called(ctx, url)
	page, _ := args.Get(0).(*scraper.ProductPage)
	return page, args.Error(1)
}

func (m *mockScraper) ScrapeSymptom(ctx context.Context, url string) (*scraper.SymptomPage, error) {
	args := m.Called(ctx, url)
	page, _ := args.Get(0).(*scraper.SymptomPage)
	return page, args.Error(1)
}

type mockCompleter struct{ mock.Mock }

func (m *mockCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

type recordingTranscript struct {
	exchanges []*transcript.Exchange
	err       error
}

func (r *recordingTranscript) RecordExchange(ctx context.Context, ex *transcript.Exchange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.err != nil {
		return r.err
	}
	r.exchanges = append(r.exchanges, ex)
	return nil
}

type harness struct {
	detector   *mockDetector
	extractor  *mockExtractor
	finder     *mockFinder
	scraper    *mockScraper
	llm        *mockCompleter
	transcript *recordingTranscript
	sessions   *session.Manager
	assistant  *Assistant
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	h := &harness{
		detector:   &mockDetector{},
		extractor:  &mockExtractor{},
		finder:     &mockFinder{},
		scraper:    &mockScraper{},
		llm:        &mockCompleter{},
		transcript: &recordingTranscript{},
		sessions:   session.NewManager(session.DefaultConfig(), logger),
	}
	t.Cleanup(func() { _ = h.sessions.Close() })

	a, err := New(Dependencies{
		Detector:   h.detector,
		Extractor:  h.extractor,
		Finder:     h.finder,
		Scraper:    h.scraper,
		LLM:        h.llm,
		Sessions:   h.sessions,
		Transcript: h.transcript,
		Metrics:    metrics.New(),
	}, Options{}, logger)
	require.NoError(t, err)
	h.assistant = a
	return h
}

// expect wires intent detection and extraction for a query
func (h *harness) expect(query string, in intent.Intent, identity, specific extract.Entities) {
	h.detector.On("Detect", mock.Anything, query).Return(intent.Result{Intent: in, Source: intent.SourceLLM}).Once()
	h.extractor.On("ModelOrBrand", mock.Anything, query).Return(identity).Once()
	h.extractor.On("ForIntent", mock.Anything, query, in).Return(specific).Once()
}

func testSymptomPage() *scraper.SymptomPage {
	return &scraper.SymptomPage{
		ProductURL:   symptomURL,
		ModelNumber:  "WRS588FIHZ00",
		SymptomTitle: "Ice maker not making ice",
		CommonParts: []scraper.CommonPart{{
			PartName:      "Ice Maker Assembly",
			FixPercentage: "29",
			Description:   "The ice maker makes ice.",
			UserStories:   []scraper.UserStory{{Title: "Replaced it", Instruction: "Swapped the assembly."}},
		}},
	}
}

func testProductPage() *scraper.ProductPage {
	return &scraper.ProductPage{
		InventoryID: "11752778",
		Description: "Refrigerator Door Shelf Bin",
		Brand:       "Whirlpool",
		ModelCompatibility: []scraper.CompatibleModel{
			{Brand: "Whirlpool", ModelNumber: "WRS588FIHZ00", Description: "Side-by-Side"},
		},
		ProductPage: partURL,
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Dependencies{}, Options{}, nil)
	assert.Error(t, err)

	a, err := New(Dependencies{
		Detector:  &mockDetector{},
		Extractor: &mockExtractor{},
		Finder:    &mockFinder{},
		Scraper:   &mockScraper{},
	}, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryMessages, a.options.HistoryMessages)
	assert.NotNil(t, a.builder)
}

func TestHandleQuery_EmptyQuery(t *testing.T) {
	h := newHarness(t)

	_, err := h.assistant.HandleQuery(context.Background(), Request{Message: "  \x00 "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	h.detector.AssertNotCalled(t, "Detect", mock.Anything, mock.Anything)
}

func TestHandleQuery_Troubleshoot(t *testing.T) {
	h := newHarness(t)
	query := "My WRS588FIHZ00 ice maker is not making ice"

	h.expect(query, intent.Troubleshoot,
		extract.Entities{ModelNumber: "WRS588FIHZ00"},
		extract.Entities{Symptom: "ice maker not making ice"})
	h.finder.On("SymptomPages", mock.Anything, "ice maker not making ice", "WRS588FIHZ00", "").
		Return([]string{symptomURL}, nil)
	h.scraper.On("ScrapeSymptom", mock.Anything, symptomURL).Return(testSymptomPage(), nil)
	h.llm.On("Complete", mock.Anything, synth.TroubleshootSystemPrompt,
		mock.MatchedBy(func(user string) bool {
			return strings.HasPrefix(user, "Query: "+query) && strings.Contains(user, `"part_name": "Ice Maker Assembly"`)
		})).
		Return("🤔 Thought Process: ice maker.\n📝 Response: ### Problem Analysis\n- The ice maker failed", nil)

	result, err := h.assistant.HandleQuery(context.Background(), Request{Message: query})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, intent.Troubleshoot, result.Intent)
	assert.Equal(t, symptomURL, result.SourceURL)
	assert.True(t, strings.HasPrefix(result.Response, "### Problem Analysis"), result.Response)
	assert.Contains(t, result.Response, "[View on PartSelect]("+symptomURL+")")
	assert.Contains(t, result.HTML, "<h3")
	assert.NotEmpty(t, result.SessionID)
	assert.NotEmpty(t, result.ExchangeID)

	require.Len(t, h.transcript.exchanges, 1)
	ex := h.transcript.exchanges[0]
	assert.Equal(t, result.ExchangeID, ex.ID)
	assert.Equal(t, "troubleshoot", ex.Intent)
	assert.Equal(t, "ice maker not making ice", ex.Symptom)
	assert.Equal(t, StatusSuccess, ex.Status)

	history, err := h.sessions.History(context.Background(), result.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, session.UserRole, history[0].Role)
	assert.Equal(t, "WRS588FIHZ00", history[0].Metadata["model_number"])
	assert.Equal(t, session.AssistantRole, history[1].Role)

	h.llm.AssertExpectations(t)
}

func TestHandleQuery_TroubleshootFailures(t *testing.T) {
	query := "My dishwasher is acting up"
	symptom := extract.Entities{Symptom: "not draining"}

	tests := []struct {
		name  string
		ent   extract.Entities
		setup func(h *harness)
		want  string
	}{
		{
			name: "no symptom",
			want: "❌ Could not identify a symptom in your query. Please describe the issue you're experiencing.",
		},
		{
			name: "search error",
			ent:  symptom,
			setup: func(h *harness) {
				h.finder.On("SymptomPages", mock.Anything, "not draining", "", "").Return(nil, search.ErrNotConfigured)
			},
			want: MsgNoSymptomPages,
		},
		{
			name: "no symptom pages",
			ent:  symptom,
			setup: func(h *harness) {
				h.finder.On("SymptomPages", mock.Anything, "not draining", "", "").Return([]string{}, nil)
			},
			want: MsgNoSymptomPages,
		},
		{
			name: "scrape failure",
			ent:  symptom,
			setup: func(h *harness) {
				h.finder.On("SymptomPages", mock.Anything, "not draining", "", "").Return([]string{symptomURL}, nil)
				h.scraper.On("ScrapeSymptom", mock.Anything, symptomURL).Return(nil, errors.New("HTTP 500"))
			},
			want: MsgNoTroubleshootingData,
		},
		{
			name: "no common parts",
			ent:  symptom,
			setup: func(h *harness) {
				h.finder.On("SymptomPages", mock.Anything, "not draining", "", "").Return([]string{symptomURL}, nil)
				h.scraper.On("ScrapeSymptom", mock.Anything, symptomURL).Return(&scraper.SymptomPage{}, nil)
			},
			want: MsgNoTroubleshootingData,
		},
		{
			name: "generation failure",
			ent:  symptom,
			setup: func(h *harness) {
				h.finder.On("SymptomPages", mock.Anything, "not draining", "", "").Return([]string{symptomURL}, nil)
				h.scraper.On("ScrapeSymptom", mock.Anything, symptomURL).Return(testSymptomPage(), nil)
				h.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("rate limited"))
			},
			want: MsgGenerationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.expect(query, intent.Troubleshoot, extract.Entities{}, tt.ent)
			if tt.setup != nil {
				tt.setup(h)
			}

			result, err := h.assistant.HandleQuery(context.Background(), Request{Message: query})
			require.NoError(t, err)
			assert.Equal(t, StatusError, result.Status)
			assert.Equal(t, tt.want, result.Response)
			assert.Empty(t, result.SourceURL)
			require.Len(t, h.transcript.exchanges, 1)
			assert.Equal(t, StatusError, h.transcript.exchanges[0].Status)
		})
	}
}

func TestHandleQuery_Installation(t *testing.T) {
	query := "How can I install part number PS11752778?"
	part := extract.Entities{PartNumber: "PS11752778"}

	tests := []struct {
		name       string
		ent        extract.Entities
		setup      func(h *harness)
		wantStatus string
		want       string
	}{
		{
			name:       "missing part number",
			wantStatus: StatusError,
			want:       "❌ Could not identify a part number in your query. Please provide the part number you want to install.",
		},
		{
			name: "part not found",
			ent:  part,
			setup: func(h *harness) {
				h.finder.On("ProductURLForPart", mock.Anything, "PS11752778").Return("", search.ErrNoResults)
			},
			wantStatus: StatusError,
			want:       "❌ Could not find information for part number PS11752778.",
		},
		{
			name: "scrape failure",
			ent:  part,
			setup: func(h *harness) {
				h.finder.On("ProductURLForPart", mock.Anything, "PS11752778").Return(partURL, nil)
				h.scraper.On("ScrapeProduct", mock.Anything, partURL).Return(nil, errors.New("timeout"))
			},
			wantStatus: StatusError,
			want:       MsgInstallationUnavailable,
		},
		{
			name: "success",
			ent:  part,
			setup: func(h *harness) {
				h.finder.On("ProductURLForPart", mock.Anything, "PS11752778").Return(partURL, nil)
				h.scraper.On("ScrapeProduct", mock.Anything, partURL).Return(testProductPage(), nil)
				h.llm.On("Complete", mock.Anything, synth.InstallationSystemPrompt,
					mock.MatchedBy(func(user string) bool { return strings.Contains(user, "Installation Data: {") })).
					Return("### Part Information\n- Door bin", nil)
			},
			wantStatus: StatusSuccess,
			want:       "### Part Information\n- Door bin\n\n🔗 **[View on PartSelect](" + partURL + ")**",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.expect(query, intent.Installation, extract.Entities{}, tt.ent)
			if tt.setup != nil {
				tt.setup(h)
			}

			result, err := h.assistant.HandleQuery(context.Background(), Request{Message: query})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.want, result.Response)
		})
	}
}

func TestHandleQuery_Compatibility(t *testing.T) {
	query := "Is this part compatible with my WDT780SAEM1 model?"

	tests := []struct {
		name       string
		identity   extract.Entities
		specific   extract.Entities
		setup      func(h *harness)
		wantStatus string
		want       string
		wantURL    string
	}{
		{
			name:       "missing model and brand",
			specific:   extract.Entities{PartNumber: "PS11752778"},
			wantStatus: StatusError,
			want:       "❌ Could not identify a model number or brand in your query. Please provide your appliance's model number or brand.",
		},
		{
			name:       "missing part",
			identity:   extract.Entities{ModelNumber: "WDT780SAEM1"},
			wantStatus: StatusError,
			want:       "❌ Could not identify a part number in your query. Please provide the part number you want to check.",
		},
		{
			name:     "falls back to model page",
			identity: extract.Entities{ModelNumber: "WRS588FIHZ00"},
			specific: extract.Entities{PartNumber: "PS11752778"},
			setup: func(h *harness) {
				h.finder.On("ProductURLForPart", mock.Anything, "PS11752778").Return("", search.ErrNoProductURL)
				h.finder.On("ProductURLForModel", mock.Anything, "WRS588FIHZ00").Return(modelURL, nil)
				h.scraper.On("ScrapeProduct", mock.Anything, modelURL).Return(testProductPage(), nil)
				h.llm.On("Complete", mock.Anything, synth.CompatibilitySystemPrompt,
					mock.MatchedBy(func(user string) bool { return strings.Contains(user, "Model WRS588FIHZ00 IS listed") })).
					Return("#### Compatibility Summary\n- Yes", nil)
			},
			wantStatus: StatusSuccess,
			want:       "#### Compatibility Summary\n- Yes\n\n🔗 **[View on PartSelect](" + modelURL + ")**",
			wantURL:    modelURL,
		},
		{
			name:     "model page not found",
			identity: extract.Entities{ModelNumber: "WDT780SAEM1"},
			specific: extract.Entities{PartNumber: "PS11752778"},
			setup: func(h *harness) {
				h.finder.On("ProductURLForPart", mock.Anything, "PS11752778").Return("", search.ErrNoResults)
				h.finder.On("ProductURLForModel", mock.Anything, "WDT780SAEM1").Return("", search.ErrNoProductURL)
			},
			wantStatus: StatusError,
			want:       fmt.Sprintf(MsgModelNotFound, "WDT780SAEM1"),
		},
		{
			name:     "brand only and part not found",
			identity: extract.Entities{Brand: "Whirlpool"},
			specific: extract.Entities{PartNumber: "PS11752778"},
			setup: func(h *harness) {
				h.finder.On("ProductURLForPart", mock.Anything, "PS11752778").Return("", search.ErrNoResults)
			},
			wantStatus: StatusError,
			want:       fmt.Sprintf(MsgPartNotFound, "PS11752778"),
		},
		{
			name:     "scrape failure",
			identity: extract.Entities{Brand: "Whirlpool"},
			specific: extract.Entities{PartNumber: "PS11752778"},
			setup: func(h *harness) {
				h.finder.On("ProductURLForPart", mock.Anything, "PS11752778").Return(partURL, nil)
				h.scraper.On("ScrapeProduct", mock.Anything, partURL).Return(nil, errors.New("blocked"))
			},
			wantStatus: StatusError,
			want:       MsgCompatibilityUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.expect(query, intent.Compatibility, tt.identity, tt.specific)
			if tt.setup != nil {
				tt.setup(h)
			}

			result, err := h.assistant.HandleQuery(context.Background(), Request{Message: query})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.want, result.Response)
			assert.Equal(t, tt.wantURL, result.SourceURL)
		})
	}
}

func TestHandleQuery_QnA(t *testing.T) {
	t.Run("without part data", func(t *testing.T) {
		h := newHarness(t)
		query := "What parts does a refrigerator ice maker need?"
		h.expect(query, intent.QnA, extract.Entities{}, extract.Entities{})
		h.llm.On("Complete", mock.Anything, synth.QnASystemPrompt, "Query: "+query).
			Return("An ice maker uses a water inlet valve.", nil)

		result, err := h.assistant.HandleQuery(context.Background(), Request{Message: query})
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, result.Status)
		assert.Equal(t, "An ice maker uses a water inlet valve.", result.Response)
		h.finder.AssertNotCalled(t, "ProductURLForPart", mock.Anything, mock.Anything)
	})

	t.Run("part lookup failure degrades to no data", func(t *testing.T) {
		h := newHarness(t)
		query := "What is PS11752778 made of?"
		h.expect(query, intent.QnA, extract.Entities{}, extract.Entities{PartNumber: "PS11752778"})
		h.finder.On("ProductURLForPart", mock.Anything, "PS11752778").Return("", search.ErrNoResults)
		h.llm.On("Complete", mock.Anything, synth.QnASystemPrompt, "Query: "+query).Return("Plastic.", nil)

		result, err := h.assistant.HandleQuery(context.Background(), Request{Message: query})
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, result.Status)
		assert.Empty(t, result.SourceURL)
	})

	t.Run("generation failure", func(t *testing.T) {
		h := newHarness(t)
		query := "Do you sell oven parts?"
		h.expect(query, intent.QnA, extract.Entities{}, extract.Entities{})
		h.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("boom"))

		result, err := h.assistant.HandleQuery(context.Background(), Request{Message: query})
		require.NoError(t, err)
		assert.Equal(t, StatusError, result.Status)
		assert.Equal(t, MsgQnAFailed, result.Response)
	})
}

func TestHandleQuery_General(t *testing.T) {
	h := newHarness(t)
	query := "What's the weather today?"
	h.expect(query, intent.General, extract.Entities{}, extract.Entities{})

	result, err := h.assistant.HandleQuery(context.Background(), Request{Message: query})
	require.NoError(t, err)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, MsgGeneralGuidance, result.Response)
	assert.Contains(t, result.HTML, "not sure how to help")
	h.llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleQuery_RecordsAfterRequestCancelled(t *testing.T) {
	h := newHarness(t)
	query := "What's the weather today?"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.detector.On("Detect", mock.Anything, query).
		Run(func(mock.Arguments) { cancel() }).
		Return(intent.Result{Intent: intent.General, Source: intent.SourceLLM}).Once()
	h.extractor.On("ModelOrBrand", mock.Anything, query).Return(extract.Entities{}).Once()
	h.extractor.On("ForIntent", mock.Anything, query, intent.General).Return(extract.Entities{}).Once()

	result, err := h.assistant.HandleQuery(ctx, Request{Message: query})
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	require.Len(t, h.transcript.exchanges, 1)
	assert.Equal(t, result.ExchangeID, h.transcript.exchanges[0].ID)

	history, err := h.sessions.History(context.Background(), result.SessionID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestHandleQuery_ExchangeIDClearedWhenNotRecorded(t *testing.T) {
	h := newHarness(t)
	h.transcript.err = errors.New("database is locked")
	query := "What's the weather today?"
	h.expect(query, intent.General, extract.Entities{}, extract.Entities{})

	result, err := h.assistant.HandleQuery(context.Background(), Request{Message: query})
	require.NoError(t, err)
	assert.Empty(t, result.ExchangeID)
	assert.Empty(t, h.transcript.exchanges)
}

func TestHandleQuery_WithoutLLM(t *testing.T) {
	logger := zaptest.NewLogger(t)
	detector, extractor, finder, scr := &mockDetector{}, &mockExtractor{}, &mockFinder{}, &mockScraper{}
	a, err := New(Dependencies{Detector: detector, Extractor: extractor, Finder: finder, Scraper: scr}, Options{}, logger)
	require.NoError(t, err)

	query := "Is the door bin dishwasher safe?"
	detector.On("Detect", mock.Anything, query).Return(intent.Result{Intent: intent.QnA})
	extractor.On("ModelOrBrand", mock.Anything, query).Return(extract.Entities{})
	extractor.On("ForIntent", mock.Anything, query, intent.QnA).Return(extract.Entities{})

	result, err := a.HandleQuery(context.Background(), Request{Message: query, SessionID: "no-sessions"})
	require.NoError(t, err)
	assert.Equal(t, MsgQnAFailed, result.Response)
	assert.Equal(t, "no-sessions", result.SessionID)
	assert.Empty(t, result.ExchangeID)
}

func TestHandleQuery_FollowupCarriesEntities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := "Is PS11752778 compatible with my WRS588FIHZ00?"
	h.expect(first, intent.Compatibility,
		extract.Entities{ModelNumber: "WRS588FIHZ00"},
		extract.Entities{PartNumber: "PS11752778"})
	h.finder.On("ProductURLForPart", mock.Anything, "PS11752778").Return(partURL, nil)
	h.scraper.On("ScrapeProduct", mock.Anything, partURL).Return(testProductPage(), nil)
	h.llm.On("Complete", mock.Anything, synth.CompatibilitySystemPrompt, mock.Anything).
		Return("#### Compatibility Summary\n- Yes, it fits.", nil).Once()

	firstResult, err := h.assistant.HandleQuery(ctx, Request{Message: first})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, firstResult.Status)

	second := "How do I install it?"
	h.expect(second, intent.Installation, extract.Entities{}, extract.Entities{})
	h.llm.On("Complete", mock.Anything, synth.InstallationSystemPrompt,
		mock.MatchedBy(func(user string) bool {
			return strings.HasPrefix(user, "Conversation so far:\nUser: "+first) &&
				strings.Contains(user, "Query: "+second)
		})).
		Return("### Installation Guide\n#### Steps\n1. Lift the bin out", nil).Once()

	secondResult, err := h.assistant.HandleQuery(ctx, Request{Message: second, SessionID: firstResult.SessionID})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, secondResult.Status)
	assert.Equal(t, firstResult.SessionID, secondResult.SessionID)
	assert.Equal(t, "PS11752778", secondResult.Entities.PartNumber)
	assert.Equal(t, "WRS588FIHZ00", secondResult.Entities.ModelNumber)
	assert.Empty(t, secondResult.Entities.Brand)
	h.llm.AssertExpectations(t)
	h.finder.AssertNumberOfCalls(t, "ProductURLForPart", 2)
}
