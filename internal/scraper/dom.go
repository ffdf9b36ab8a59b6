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

	"golang.org/x/net/html"
)

// matcher selects element nodes
type matcher func(*html.Node) bool

func tag(name string) matcher {
	return func(n *html.Node) bool { return n.Data == name }
}

func id(value string) matcher {
	return func(n *html.Node) bool { return attrValue(n, "id") == value }
}

// class matches elements carrying every listed class
func class(names ...string) matcher {
	return func(n *html.Node) bool {
		have := strings.Fields(attrValue(n, "class"))
		for _, want := range names {
			found := false
			for _, c := range have {
				if c == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
}

func hasAttr(key string) matcher {
	return func(n *html.Node) bool {
		_, ok := lookupAttr(n, key)
		return ok
	}
}

func attrIs(key, value string) matcher {
	return func(n *html.Node) bool {
		v, ok := lookupAttr(n, key)
		return ok && v == value
	}
}

func not(m matcher) matcher {
	return func(n *html.Node) bool { return !m(n) }
}

func all(ms ...matcher) matcher {
	return func(n *html.Node) bool {
		for _, m := range ms {
			if !m(n) {
				return false
			}
		}
		return true
	}
}

// find returns the first descendant element of root matching m, in document order
func find(root *html.Node, m matcher) *html.Node {
	if root == nil {
		return nil
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && m(c) {
			return c
		}
		if found := find(c, m); found != nil {
			return found
		}
	}
	return nil
}

// findPath walks a descendant chain, like the CSS selector "a b c"
func findPath(root *html.Node, path ...matcher) *html.Node {
	n := root
	for _, m := range path {
		n = find(n, m)
		if n == nil {
			return nil
		}
	}
	return n
}

// findAll returns every descendant element of root matching m
func findAll(root *html.Node, m matcher) []*html.Node {
	var out []*html.Node
	if root == nil {
		return out
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && m(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

// childElement returns the first direct element child matching m
func childElement(n *html.Node, m matcher) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && m(c) {
			return c
		}
	}
	return nil
}

// followingSibling returns the first later sibling element matching m
func followingSibling(n *html.Node, m matcher) *html.Node {
	if n == nil {
		return nil
	}
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode && m(s) {
			return s
		}
	}
	return nil
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrValue(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

var skippedTextElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "svg": true,
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "dd": true,
	"div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tbody": true, "thead": true, "tr": true, "td": true, "th": true,
	"ul": true,
}

// Source newlines inside text nodes are plain whitespace
var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// text approximates the rendered innerText of n: block elements and <br>
// start new lines, whitespace runs collapse, blank lines are dropped.
func text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	writeText(n, &sb)

	lines := strings.Split(sb.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func writeText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(newlineReplacer.Replace(n.Data))
		return
	case html.ElementNode:
		if skippedTextElements[n.Data] {
			return
		}
		if n.Data == "br" {
			sb.WriteString("\n")
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		sb.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, sb)
	}
	if block {
		sb.WriteString("\n")
	}
}

// lines returns the non-empty text lines of n
func lines(n *html.Node) []string {
	t := text(n)
	if t == "" {
		return nil
	}
	return strings.Split(t, "\n")
}
