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

// Fixed user-facing messages for pipeline failures
const (
	MsgNoSymptomPages           = "❌ Could not find relevant symptom information on PartSelect."
	MsgNoTroubleshootingData    = "❌ Could not find relevant troubleshooting information."
	MsgGenerationFailed         = "❌ Error generating response from scraped data."
	MsgPartNotFound             = "❌ Could not find information for part number %s."
	MsgModelNotFound            = "❌ Could not find information for model number %s."
	MsgInstallationUnavailable  = "❌ Could not retrieve installation information."
	MsgCompatibilityUnavailable = "❌ Could not retrieve compatibility information."
	MsgQnAFailed                = "❌ Failed to generate response using GPT."
	MsgGeneralGuidance          = "❌ I'm not sure how to help with that. Please try asking about troubleshooting an issue, installing a part, or checking compatibility."
)
