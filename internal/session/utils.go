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

package session

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// DefaultConversationTitle is used when no content is available for title generation
	DefaultConversationTitle = "New Conversation"

	maxTitleLength = 60
	maxInputLength = 10000
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// GenerateSessionID generates a unique session identifier
func GenerateSessionID() string {
	return uuid.NewString()
}

// GenerateMessageID generates a unique message identifier
func GenerateMessageID() string {
	return uuid.NewString()
}

// ValidateSessionID reports whether sessionID is a well-formed UUID
func ValidateSessionID(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	_, err := uuid.Parse(sessionID)
	return err == nil
}

// GenerateTitle generates a conversation title from the first user message
func GenerateTitle(content string) string {
	content = whitespaceRun.ReplaceAllString(strings.TrimSpace(content), " ")
	if content == "" {
		return DefaultConversationTitle
	}

	if utf8.RuneCountInString(content) > maxTitleLength {
		runes := []rune(content)
		content = string(runes[:maxTitleLength]) + "..."
	}

	return toTitle(content)
}

// EstimateTokenCount provides a rough estimate of token count (4 characters ≈ 1 token)
func EstimateTokenCount(text string) int {
	const tokenEstimateRatio = 4
	return utf8.RuneCountInString(text) / tokenEstimateRatio
}

// SanitizeUserInput strips control characters (keeping newlines and tabs)
// and limits the length of user input.
func SanitizeUserInput(input string) string {
	input = controlChars.ReplaceAllString(input, "")

	if utf8.RuneCountInString(input) > maxInputLength {
		runes := []rune(input)
		input = string(runes[:maxInputLength])
	}

	return strings.TrimSpace(input)
}

// GetRecentMessages returns the N most recent messages
func GetRecentMessages(messages []Message, count int) []Message {
	if count <= 0 {
		return []Message{}
	}
	if len(messages) <= count {
		return messages
	}
	return messages[len(messages)-count:]
}

// BuildConversationContext renders messages as "Role: content" lines for prompts
func BuildConversationContext(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, msg := range messages {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(toTitle(string(msg.Role)))
		builder.WriteString(": ")
		builder.WriteString(msg.Content)
	}
	return builder.String()
}

// LatestMetadata returns the most recent value of key in the metadata of
// messages with the given role
func LatestMetadata(messages []Message, role MessageRole, key string) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != role {
			continue
		}
		if v := messages[i].Metadata[key]; v != "" {
			return v
		}
	}
	return ""
}

// toTitle converts the first character of a string to uppercase
func toTitle(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
