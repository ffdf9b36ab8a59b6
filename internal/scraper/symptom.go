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
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Symptom page sections
const (
	SectionSymptomInfo = "symptom_info"
	SectionCommonParts = "common_parts"
)

// DefaultSymptomPartLimit is how many part rows are read from a symptom page
const DefaultSymptomPartLimit = 1

// SymptomPage is the data extracted from a model symptom page
type SymptomPage struct {
	ProductURL    string            `json:"product_url"`
	ModelNumber   string            `json:"model_number"`
	SymptomTitle  string            `json:"symptom_title"`
	CommonParts   []CommonPart      `json:"common_parts"`
	SectionErrors map[string]string `json:"-"`
}

// CommonPart is a part that commonly fixes the symptom
type CommonPart struct {
	PartName               string      `json:"part_name"`
	PartURL                string      `json:"part_url"`
	FixPercentage          string      `json:"fix_percentage"`
	Price                  string      `json:"price"`
	PartNumber             string      `json:"part_number"`
	ManufacturerPartNumber string      `json:"manufacturer_part_number"`
	Description            string      `json:"description"`
	UserStories            []UserStory `json:"user_stories"`
}

// UserStory is a customer repair story attached to a part
type UserStory struct {
	Title       string   `json:"title"`
	Instruction string   `json:"instruction"`
	Author      string   `json:"author"`
	Difficulty  string   `json:"difficulty"`
	Time        string   `json:"time"`
	Tools       []string `json:"tools"`
}

func (s UserStory) empty() bool {
	return s.Title == "" && s.Instruction == "" && s.Author == "" &&
		s.Difficulty == "" && s.Time == "" && len(s.Tools) == 0
}

// ParseSymptomPage extracts the symptom header and up to limit part rows.
// Rows without a part header or fix rate, and parts without user stories,
// are skipped.
func ParseSymptomPage(document, pageURL string, limit int) (*SymptomPage, error) {
	doc, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse symptom page: %w", err)
	}
	if limit <= 0 {
		limit = DefaultSymptomPartLimit
	}

	page := &SymptomPage{
		ProductURL:    pageURL,
		CommonParts:   []CommonPart{},
		SectionErrors: map[string]string{},
	}

	if mainEl := find(doc, all(tag("div"), id("main"))); mainEl != nil {
		page.ModelNumber = attrValue(mainEl, "data-model-num")
		if title := find(mainEl, all(tag("h1"), class("title-main"))); title != nil {
			page.SymptomTitle = text(title)
		}
	} else {
		page.SectionErrors[SectionSymptomInfo] = "main element not found"
	}

	rows := findAll(doc, all(tag("div"), class("mb-5", "symptoms", "d-flex")))
	if len(rows) == 0 {
		page.SectionErrors[SectionCommonParts] = "no symptom part rows found"
		return page, nil
	}

	base, _ := url.Parse(pageURL)
	var skipped []string
	for i, row := range rows {
		if i >= limit {
			break
		}
		part, err := parseCommonPart(row, base)
		if err != nil {
			skipped = append(skipped, err.Error())
			continue
		}
		page.CommonParts = append(page.CommonParts, part)
	}
	if len(skipped) > 0 {
		page.SectionErrors[SectionCommonParts] = strings.Join(skipped, "; ")
	}

	return page, nil
}

func parseCommonPart(row *html.Node, base *url.URL) (CommonPart, error) {
	header := findPath(row, all(tag("div"), class("symptoms__header")), tag("a"))
	if header == nil {
		return CommonPart{}, fmt.Errorf("%w: part header", ErrSectionMissing)
	}
	percent := findPath(row, all(tag("div"), class("symptoms__percent")), all(tag("span"), class("bold")))
	if percent == nil {
		return CommonPart{}, fmt.Errorf("%w: fix percentage", ErrSectionMissing)
	}

	part := CommonPart{
		PartName:      text(header),
		PartURL:       resolve(base, attrValue(header, "href")),
		FixPercentage: strings.TrimSpace(strings.ReplaceAll(text(percent), "%", "")),
	}

	part.Price = text(findPath(row,
		all(tag("span"), class("price", "pd__price")),
		all(tag("span"), class("js-partPrice"))))
	part.PartNumber = text(findPath(row,
		all(tag("div"), class("mt-3", "mb-2", "bold")),
		all(tag("span"), class("bold", "text-teal"))))
	// The manufacturer number sits in the mb-2 bold div that is not the
	// PartSelect number's mt-3 div.
	part.ManufacturerPartNumber = text(findPath(row,
		all(tag("div"), class("mb-2", "bold"), not(class("mt-3"))),
		all(tag("span"), class("bold", "text-teal"))))
	part.Description = text(find(row, all(tag("p"), class("mb-4"))))

	part.UserStories = parseUserStories(row)
	if len(part.UserStories) == 0 {
		return CommonPart{}, fmt.Errorf("part %q has no user stories", part.PartName)
	}
	return part, nil
}

func parseUserStories(row *html.Node) []UserStory {
	var stories []UserStory
	for _, s := range findAll(row, all(tag("div"), class("repair-story"))) {
		titleEl := find(s, all(tag("div"), class("repair-story__title")))
		instructionEl := find(s, all(tag("div"), class("repair-story__instruction__content")))
		if titleEl == nil || instructionEl == nil {
			continue
		}

		story := UserStory{
			Title:       text(titleEl),
			Instruction: text(instructionEl),
			Tools:       []string{},
		}
		applyStoryDetails(&story, findAll(s, all(tag("ul"), class("repair-story__details"))))

		if story.empty() {
			continue
		}
		stories = append(stories, story)
	}
	return stories
}

// applyStoryDetails maps each details <li> to a field by its icon reference
func applyStoryDetails(story *UserStory, lists []*html.Node) {
	for _, list := range lists {
		for _, li := range findAll(list, tag("li")) {
			use := findPath(li, tag("svg"), tag("use"))
			valueEl := find(li, tag("div"))
			if use == nil || valueEl == nil {
				continue
			}
			href := attrValue(use, "href")
			value := text(valueEl)
			valueLines := strings.Split(value, "\n")

			switch {
			case strings.Contains(href, "#profile"):
				story.Author = valueLines[len(valueLines)-1]
			case strings.Contains(href, "#difficulty"):
				story.Difficulty = strings.TrimSpace(strings.ReplaceAll(value, "Difficulty Level:", ""))
			case strings.Contains(href, "#duration"):
				story.Time = strings.TrimSpace(strings.ReplaceAll(value, "Total Repair Time:", ""))
			case strings.Contains(href, "#tools"):
				if len(valueLines) > 1 {
					story.Tools = nonEmpty(strings.Split(valueLines[len(valueLines)-1], ","))
				}
			}
		}
	}
}

func resolve(base *url.URL, href string) string {
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
