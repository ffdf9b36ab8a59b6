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

package synth

import (
	"fmt"
	"strings"

	"github.com/your-org/parts-assistant/internal/scraper"
)

// MaxUserStories is how many repair stories go into a troubleshooting prompt
const MaxUserStories = 3

// TroubleshootData is the trimmed view of a symptom page given to the model
type TroubleshootData struct {
	Symptom       string      `json:"symptom"`
	Description   string      `json:"description"`
	FixPercentage string      `json:"fix_percentage"`
	PartName      string      `json:"part_name"`
	UserStories   []StoryData `json:"user_stories"`
}

// StoryData is a repair story reduced to its title and instruction
type StoryData struct {
	Title       string `json:"title"`
	Instruction string `json:"instruction"`
}

// ShapeTroubleshooting keeps the first common part of a symptom page and at
// most MaxUserStories of its stories. It reports false when the page has
// no common parts.
func ShapeTroubleshooting(symptom string, page *scraper.SymptomPage) (TroubleshootData, bool) {
	if page == nil || len(page.CommonParts) == 0 {
		return TroubleshootData{}, false
	}

	part := page.CommonParts[0]
	stories := part.UserStories
	if len(stories) > MaxUserStories {
		stories = stories[:MaxUserStories]
	}

	shaped := make([]StoryData, 0, len(stories))
	for _, s := range stories {
		shaped = append(shaped, StoryData{Title: s.Title, Instruction: s.Instruction})
	}

	return TroubleshootData{
		Symptom:       symptom,
		Description:   part.Description,
		FixPercentage: part.FixPercentage,
		PartName:      part.PartName,
		UserStories:   shaped,
	}, true
}

// CompatibilityVerdict states what the cross reference on page says about
// the model or brand. The wording is passed to the model verbatim.
func CompatibilityVerdict(page *scraper.ProductPage, modelNumber, brand string) string {
	if page == nil || len(page.ModelCompatibility) == 0 {
		return "No model cross-reference data was found on the product page."
	}

	total := len(page.ModelCompatibility)
	if modelNumber != "" {
		if page.FitsModel(modelNumber) {
			return fmt.Sprintf("Model %s IS listed in the part's model cross-reference (%d models checked).", modelNumber, total)
		}
		return fmt.Sprintf("Model %s is NOT listed in the part's model cross-reference (%d models checked).", modelNumber, total)
	}

	if brand != "" {
		matches := 0
		for _, m := range page.ModelCompatibility {
			if strings.EqualFold(m.Brand, brand) {
				matches++
			}
		}
		return fmt.Sprintf("The model cross-reference lists %d %s models out of %d; no specific model number was given.", matches, brand, total)
	}

	return fmt.Sprintf("The model cross-reference lists %d models; no model number or brand was given.", total)
}
