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

// Package clarification produces the prompts shown when a query lacks an
// entity the pipeline needs, and resolves follow-up questions against
// entities mentioned earlier in the conversation.
package clarification

import (
	"github.com/your-org/parts-assistant/internal/intent"
)

// Missing names an entity a query did not provide
type Missing string

// Entities the pipeline may ask for
const (
	MissingSymptom      Missing = "symptom"
	MissingPartNumber   Missing = "part_number"
	MissingModelOrBrand Missing = "model_or_brand"
)

type messageKey struct {
	intent  intent.Intent
	missing Missing
}

var messages = map[messageKey]string{
	{intent.Troubleshoot, MissingSymptom}:       "❌ Could not identify a symptom in your query. Please describe the issue you're experiencing.",
	{intent.Installation, MissingPartNumber}:    "❌ Could not identify a part number in your query. Please provide the part number you want to install.",
	{intent.Compatibility, MissingModelOrBrand}: "❌ Could not identify a model number or brand in your query. Please provide your appliance's model number or brand.",
	{intent.Compatibility, MissingPartNumber}:   "❌ Could not identify a part number in your query. Please provide the part number you want to check.",
}

var fallbackMessages = map[Missing]string{
	MissingSymptom:      "❌ Could not identify a symptom in your query. Please describe the issue you're experiencing.",
	MissingPartNumber:   "❌ Could not identify a part number in your query. Please provide the part number.",
	MissingModelOrBrand: "❌ Could not identify a model number or brand in your query. Please provide your appliance's model number or brand.",
}

// Message returns the fixed prompt for an intent missing an entity
func Message(in intent.Intent, missing Missing) string {
	if msg, ok := messages[messageKey{in, missing}]; ok {
		return msg
	}
	return fallbackMessages[missing]
}

