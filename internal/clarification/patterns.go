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

package clarification

import (
	"regexp"
	"strings"

	"github.com/your-org/parts-assistant/internal/session"
)

// Metadata keys under which user turns record their entities
const (
	KeyModelNumber = "model_number"
	KeyPartNumber  = "part_number"
	KeyBrand       = "brand"
)

// FollowupContext describes how a follow-up query was resolved
type FollowupContext struct {
	Type               string            `json:"type"`
	ReferencesFound    []string          `json:"references_found"`
	Carried            map[string]string `json:"carried"`
	ResolutionStrategy string            `json:"resolution_strategy"`
}

// followupDetector recognizes one kind of follow-up question
type followupDetector struct {
	Pattern  *regexp.Regexp
	Type     string
	Carries  []string
	Strategy string
}

// Analyzer resolves follow-up questions against conversation history
type Analyzer struct {
	detectors []followupDetector
}

// NewAnalyzer creates an Analyzer with the built-in detectors
func NewAnalyzer() *Analyzer {
	return &Analyzer{detectors: buildFollowupDetectors()}
}

func buildFollowupDetectors() []followupDetector {
	return []followupDetector{
		{
			Pattern:  regexp.MustCompile(`(?i)\b(this|that|the same|the)\s+(part|one|piece|component)\b`),
			Type:     "part_reference",
			Carries:  []string{KeyPartNumber},
			Strategy: "reuse_part",
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(my|this|that|the same)\s+(model|fridge|refrigerator|dishwasher|appliance|unit)\b`),
			Type:     "appliance_reference",
			Carries:  []string{KeyModelNumber, KeyBrand},
			Strategy: "reuse_appliance",
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\b(it|its|it's|this|that|them)\b`),
			Type:     "reference",
			Carries:  []string{KeyPartNumber, KeyModelNumber, KeyBrand},
			Strategy: "reference_resolution",
		},
	}
}

// ResolveFollowup finds entities the query refers back to. have holds the
// entities the query already provides; only empty ones are carried over
// from the most recent user turns. It returns nil when nothing applies.
func (a *Analyzer) ResolveFollowup(query string, history []session.Message, have map[string]string) *FollowupContext {
	if len(history) == 0 {
		return nil
	}

	var result *FollowupContext
	for _, detector := range a.detectors {
		match := detector.Pattern.FindString(query)
		if match == "" {
			continue
		}

		for _, key := range detector.Carries {
			if have[key] != "" {
				continue
			}
			if result != nil && result.Carried[key] != "" {
				continue
			}
			value := session.LatestMetadata(history, session.UserRole, key)
			if value == "" {
				continue
			}
			if result == nil {
				result = &FollowupContext{
					Type:               detector.Type,
					Carried:            map[string]string{},
					ResolutionStrategy: detector.Strategy,
				}
			}
			result.Carried[key] = value
		}

		if result != nil && !contains(result.ReferencesFound, strings.ToLower(match)) {
			result.ReferencesFound = append(result.ReferencesFound, strings.ToLower(match))
		}
	}

	// A model number makes a carried brand redundant
	if result != nil && (have[KeyModelNumber] != "" || result.Carried[KeyModelNumber] != "") {
		delete(result.Carried, KeyBrand)
	}
	if result != nil && len(result.Carried) == 0 {
		return nil
	}
	return result
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
