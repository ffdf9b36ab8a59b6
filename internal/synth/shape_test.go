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
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/your-org/parts-assistant/internal/scraper"
)

func TestShapeTroubleshooting(t *testing.T) {
	stories := make([]scraper.UserStory, 0, 5)
	for i := 1; i <= 5; i++ {
		stories = append(stories, scraper.UserStory{
			Title:       fmt.Sprintf("Story %d", i),
			Instruction: fmt.Sprintf("Step %d", i),
			Author:      "Jane",
			Difficulty:  "Easy",
		})
	}
	page := &scraper.SymptomPage{
		ModelNumber:  "WRS588FIHZ00",
		SymptomTitle: "Ice maker not making ice",
		CommonParts: []scraper.CommonPart{
			{
				PartName:      "Ice Maker Assembly",
				FixPercentage: "29",
				Description:   "Makes ice.",
				PartNumber:    "PS11739119",
				UserStories:   stories,
			},
			{PartName: "Water Inlet Valve", FixPercentage: "20"},
		},
	}

	got, ok := ShapeTroubleshooting("ice maker not making ice", page)
	if !ok {
		t.Fatal("ShapeTroubleshooting() ok = false, want true")
	}

	want := TroubleshootData{
		Symptom:       "ice maker not making ice",
		Description:   "Makes ice.",
		FixPercentage: "29",
		PartName:      "Ice Maker Assembly",
		UserStories: []StoryData{
			{Title: "Story 1", Instruction: "Step 1"},
			{Title: "Story 2", Instruction: "Step 2"},
			{Title: "Story 3", Instruction: "Step 3"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ShapeTroubleshooting() mismatch (-want +got):\n%s", diff)
	}
}

func TestShapeTroubleshooting_NoParts(t *testing.T) {
	if _, ok := ShapeTroubleshooting("leaking", nil); ok {
		t.Error("nil page should not shape")
	}
	if _, ok := ShapeTroubleshooting("leaking", &scraper.SymptomPage{SymptomTitle: "Leaking"}); ok {
		t.Error("page without common parts should not shape")
	}
}

func TestCompatibilityVerdict(t *testing.T) {
	page := testProductPage()

	tests := []struct {
		name  string
		page  *scraper.ProductPage
		model string
		brand string
		want  string
	}{
		{"nil page", nil, "WRS588FIHZ00", "", "No model cross-reference"},
		{"empty cross reference", &scraper.ProductPage{}, "WRS588FIHZ00", "", "No model cross-reference"},
		{"listed", page, "wrs588fihz00", "", "IS listed"},
		{"not listed", page, "WDT780SAEM1", "", "is NOT listed"},
		{"brand", page, "", "whirlpool", "lists 2 whirlpool models out of 3"},
		{"neither", page, "", "", "lists 3 models"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompatibilityVerdict(tt.page, tt.model, tt.brand); !strings.Contains(got, tt.want) {
				t.Errorf("CompatibilityVerdict() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
