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

package intent

import (
	"regexp"
	"strings"
)

// Keyword scoring weights and thresholds
const (
	MinimumScoreThreshold = 0.3
	PhraseWeight          = 0.5
	KeywordWeight         = 0.3
	PartReferenceWeight   = 0.2
)

var partReference = regexp.MustCompile(`(?i)\bPS\d{5,}\b|\bpart\b`)

// KeywordClassifier scores a query against per-intent vocabularies
type KeywordClassifier struct {
	phrases       map[Intent][]string
	keywords      map[Intent][]string
	questionWords []string
	partTopics    []string
}

// NewKeywordClassifier creates a classifier with the built-in vocabularies
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		phrases: map[Intent][]string{
			Troubleshoot: {
				"not working", "won't", "doesn't", "does not", "stopped", "not cooling",
				"not making ice", "not draining", "not cleaning", "not dispensing",
				"too warm", "too cold",
			},
			Installation: {
				"how do i install", "how to install", "how can i install", "how do i replace",
				"how to replace", "put in", "swap out",
			},
			Compatibility: {
				"compatible with", "work with", "works with", "fit my", "fits my",
				"fit with", "fit the", "will this fit", "is this part compatible",
			},
		},
		keywords: map[Intent][]string{
			Troubleshoot: {
				"leaking", "leak", "broken", "noisy", "noise", "loud", "frost", "frozen",
				"warm", "smell", "error", "fix", "problem", "issue", "troubleshoot", "repair",
			},
			Installation: {
				"install", "installation", "installing", "replace", "replacing", "remove",
				"mount", "instructions", "steps",
			},
			Compatibility: {
				"compatible", "compatibility", "fit", "fits", "model",
			},
		},
		questionWords: []string{"what", "which", "where", "how much", "price", "cost", "does", "is", "in stock"},
		partTopics: []string{
			"part", "refrigerator", "fridge", "dishwasher", "freezer", "ice maker",
			"filter", "shelf", "bin", "rack", "gasket", "pump",
		},
	}
}

// Classify returns the best scoring intent, or General when nothing
// reaches MinimumScoreThreshold.
func (kc *KeywordClassifier) Classify(query string) Result {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return Result{Intent: General, Source: SourceEmpty, Confidence: 1.0}
	}

	best := General
	bestScore := 0.0
	for _, candidate := range []Intent{Compatibility, Installation, Troubleshoot} {
		if score := kc.score(normalized, candidate); score > bestScore {
			best, bestScore = candidate, score
		}
	}

	if bestScore < MinimumScoreThreshold {
		if qna := kc.qnaScore(query, normalized); qna >= MinimumScoreThreshold {
			return Result{Intent: QnA, Source: SourceKeywords, Confidence: qna}
		}
		return Result{Intent: General, Source: SourceKeywords, Confidence: 1.0 - bestScore}
	}
	return Result{Intent: best, Source: SourceKeywords, Confidence: bestScore}
}

func (kc *KeywordClassifier) score(query string, candidate Intent) float64 {
	score := 0.0
	for _, phrase := range kc.phrases[candidate] {
		if strings.Contains(query, phrase) {
			score += PhraseWeight
		}
	}
	for _, keyword := range kc.keywords[candidate] {
		if containsWord(query, keyword) {
			score += KeywordWeight
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// qnaScore rewards questions that reference a part or appliance
func (kc *KeywordClassifier) qnaScore(original, query string) float64 {
	asks := strings.HasSuffix(query, "?")
	for _, w := range kc.questionWords {
		if containsWord(query, w) {
			asks = true
			break
		}
	}
	if !asks {
		return 0
	}

	score := 0.0
	if partReference.MatchString(original) {
		score += PartReferenceWeight
	}
	for _, topic := range kc.partTopics {
		if strings.Contains(query, topic) {
			score += PartReferenceWeight
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func containsWord(s, word string) bool {
	for _, field := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	}) {
		if field == word {
			return true
		}
	}
	if strings.Contains(word, " ") {
		return strings.Contains(s, word)
	}
	return false
}
