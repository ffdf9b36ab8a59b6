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
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

const (
	thoughtMarker  = "🤔 Thought Process:"
	responseMarker = "📝 Response:"
)

var listItemPattern = regexp.MustCompile(`^(\d+\.|[-*+])\s`)

// CleanResponse drops a thought-process preamble, keeping the text after
// the first response marker that follows the thought marker.
func CleanResponse(answer string) string {
	t := strings.Index(answer, thoughtMarker)
	if t < 0 {
		return strings.TrimSpace(answer)
	}
	rest := answer[t+len(thoughtMarker):]
	i := strings.Index(rest, responseMarker)
	if i < 0 {
		return strings.TrimSpace(answer)
	}
	return strings.TrimSpace(rest[i+len(responseMarker):])
}

// AppendSourceLink appends a markdown link to the product page when url is set
func AppendSourceLink(answer, url string) string {
	if url == "" {
		return answer
	}
	return fmt.Sprintf("%s\n\n🔗 **[View on PartSelect](%s)**", answer, url)
}

// RenderHTML converts a markdown answer to HTML for the chat widget. Raw
// HTML in the answer is dropped.
func RenderHTML(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.SkipHTML,
	})
	return string(markdown.ToHTML([]byte(normalizeMarkdownLists(md)), p, renderer))
}

// normalizeMarkdownLists inserts a blank line before a list that directly
// follows a paragraph line, which the markdown parser otherwise folds in.
func normalizeMarkdownLists(text string) string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if i > 0 && listItemPattern.MatchString(trimmed) {
			prev := strings.TrimSpace(lines[i-1])
			if prev != "" && !listItemPattern.MatchString(prev) {
				result = append(result, "")
			}
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}
