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

package scraper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parseFragment(t *testing.T, document string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(document))
	require.NoError(t, err)
	return doc
}

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		document string
		want     string
	}{
		{
			name:     "inline elements stay on one line",
			document: `<p>Hello <b>big</b>   world</p>`,
			want:     "Hello big world",
		},
		{
			name:     "block elements break lines",
			document: `<div><div>One</div><div>Two</div></div>`,
			want:     "One\nTwo",
		},
		{
			name:     "br breaks lines",
			document: `<span>Tools:<br>Pliers</span>`,
			want:     "Tools:\nPliers",
		},
		{
			name:     "script and style are skipped",
			document: `<div>Visible<script>hidden()</script><style>.x{}</style></div>`,
			want:     "Visible",
		},
		{
			name:     "source newlines collapse",
			document: "<p>first\n   second</p>",
			want:     "first second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseFragment(t, "<html><body>"+tt.document+"</body></html>")
			body := find(doc, tag("body"))
			assert.Equal(t, tt.want, text(body))
		})
	}

	assert.Equal(t, "", text(nil))
}

func TestMatchers(t *testing.T) {
	doc := parseFragment(t, `<html><body>
		<div id="a" class="mb-2 bold">first</div>
		<div id="b" class="mt-3 mb-2 bold" data-x="1">second</div>
		<span class="bold">third</span>
	</body></html>`)

	got := find(doc, all(tag("div"), class("mb-2", "bold"), not(class("mt-3"))))
	require.NotNil(t, got)
	assert.Equal(t, "a", attrValue(got, "id"))

	assert.Len(t, findAll(doc, class("bold")), 3)
	assert.Equal(t, "b", attrValue(find(doc, hasAttr("data-x")), "id"))
	assert.Equal(t, "b", attrValue(find(doc, attrIs("data-x", "1")), "id"))
	assert.Nil(t, find(doc, attrIs("data-x", "2")))

	first := find(doc, id("a"))
	next := followingSibling(first, tag("span"))
	require.NotNil(t, next)
	assert.Equal(t, "third", text(next))

	body := find(doc, tag("body"))
	assert.Equal(t, "a", attrValue(childElement(body, tag("div")), "id"))
	assert.Nil(t, findPath(doc, tag("span"), tag("div")))
}
