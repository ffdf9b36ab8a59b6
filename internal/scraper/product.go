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
	"strings"

	"golang.org/x/net/html"
)

// Product page sections
const (
	SectionBasicInfo       = "basic_info"
	SectionDescription     = "full_description"
	SectionTroubleshooting = "troubleshooting_info"
	SectionCrossReference  = "model_compatibility"
	SectionQnA             = "qna"
)

const (
	noProductDetails   = "No product details found."
	noDescription      = "No description available."
	symptomsMarker     = "This part fixes the following symptoms:"
	productsMarker     = "This part works with the following products:"
	replacementsMarker = "Part#"
	crossRefHeader     = "Description"
	crossRefSkipLines  = 3
	applianceSuffix    = "- REFRIGERATOR"
)

// ProductPage is the data extracted from a retail product page
type ProductPage struct {
	InventoryID        string            `json:"inventory_id,omitempty"`
	Description        string            `json:"description,omitempty"`
	Price              string            `json:"price,omitempty"`
	Brand              string            `json:"brand,omitempty"`
	ModelType          string            `json:"model_type,omitempty"`
	Category           string            `json:"category,omitempty"`
	Error              string            `json:"error,omitempty"`
	FullDescription    string            `json:"full_description"`
	Troubleshooting    Troubleshooting   `json:"troubleshooting_info"`
	ModelCompatibility []CompatibleModel `json:"model_compatibility"`
	QnA                []QuestionAnswer  `json:"qna"`
	ProductPage        string            `json:"product_page"`
	SectionErrors      map[string]string `json:"-"`
}

// Troubleshooting lists what the part fixes and replaces
type Troubleshooting struct {
	Symptoms     []string `json:"symptoms"`
	Products     []string `json:"products"`
	Replacements []string `json:"replacements"`
}

// CompatibleModel is one row of the model cross reference
type CompatibleModel struct {
	Brand       string `json:"brand"`
	ModelNumber string `json:"model_number"`
	Description string `json:"description"`
}

// QuestionAnswer is one customer question with its answer
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FitsModel reports whether modelNumber appears in the cross reference,
// ignoring case, spaces and dashes.
func (p *ProductPage) FitsModel(modelNumber string) bool {
	want := normalizeModel(modelNumber)
	if p == nil || want == "" {
		return false
	}
	for _, m := range p.ModelCompatibility {
		if normalizeModel(m.ModelNumber) == want {
			return true
		}
	}
	return false
}

func normalizeModel(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(s)))
}

// ParseProductPage extracts every section it can from a product page.
// A missing section leaves its default value and is noted in SectionErrors;
// only unparseable HTML is an error.
func ParseProductPage(document, pageURL string) (*ProductPage, error) {
	doc, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse product page: %w", err)
	}

	page := &ProductPage{
		ProductPage:        pageURL,
		FullDescription:    noDescription,
		Troubleshooting:    Troubleshooting{Symptoms: []string{}, Products: []string{}, Replacements: []string{}},
		ModelCompatibility: []CompatibleModel{},
		QnA:                []QuestionAnswer{},
		SectionErrors:      map[string]string{},
	}

	parseBasicInfo(doc, page)

	if desc := find(doc, attrIs("itemprop", "description")); desc != nil {
		if t := text(desc); t != "" {
			page.FullDescription = t
		} else {
			page.SectionErrors[SectionDescription] = "description element is empty"
		}
	} else {
		page.SectionErrors[SectionDescription] = "description element not found"
	}

	if body, err := sectionBody(doc, "Troubleshooting"); err != nil {
		page.SectionErrors[SectionTroubleshooting] = err.Error()
	} else {
		page.Troubleshooting = parseTroubleshooting(lines(body))
	}

	if body, err := sectionBody(doc, "ModelCrossReference"); err != nil {
		page.SectionErrors[SectionCrossReference] = err.Error()
	} else {
		page.ModelCompatibility = parseCrossReference(lines(body))
	}

	if container := find(doc, id("QuestionsAndAnswersContent")); container != nil {
		page.QnA = parseQnA(container)
	} else {
		page.SectionErrors[SectionQnA] = "questions and answers not found"
	}

	return page, nil
}

func parseBasicInfo(doc *html.Node, page *ProductPage) {
	mainEl := find(doc, id("main"))
	if mainEl == nil {
		page.Error = noProductDetails
		page.SectionErrors[SectionBasicInfo] = "main element not found"
		return
	}
	page.InventoryID = attrValue(mainEl, "data-inventory-id")
	page.Description = attrValue(mainEl, "data-description")
	page.Price = attrValue(mainEl, "data-price")
	page.Brand = attrValue(mainEl, "data-brand")
	page.ModelType = attrValue(mainEl, "data-modeltype")
	page.Category = attrValue(mainEl, "data-category")
}

// sectionBody returns the div following the collapsible header with the given id
func sectionBody(doc *html.Node, headerID string) (*html.Node, error) {
	header := find(doc, id(headerID))
	if header == nil {
		return nil, fmt.Errorf("%w: #%s", ErrSectionMissing, headerID)
	}
	body := followingSibling(header, tag("div"))
	if body == nil {
		return nil, fmt.Errorf("%w: content after #%s", ErrSectionMissing, headerID)
	}
	return body, nil
}

func parseTroubleshooting(textLines []string) Troubleshooting {
	var symptoms, products, replacements []string

	for i, line := range textLines {
		if i+1 >= len(textLines) {
			break
		}
		next := textLines[i+1]
		switch {
		case strings.HasPrefix(line, symptomsMarker):
			symptoms = strings.Split(next, " | ")
		case strings.HasPrefix(line, productsMarker):
			products = strings.Split(next, " | ")
		case strings.HasPrefix(line, replacementsMarker):
			replacements = strings.Split(next, ", ")
		}
	}

	return Troubleshooting{
		Symptoms:     nonEmpty(symptoms),
		Products:     nonEmpty(products),
		Replacements: nonEmpty(replacements),
	}
}

func parseCrossReference(textLines []string) []CompatibleModel {
	data := []string{}
	headerAt := -1
	for i, line := range textLines {
		if line == crossRefHeader {
			headerAt = i
			break
		}
	}
	switch {
	case headerAt >= 0:
		data = textLines[headerAt+1:]
	case len(textLines) > crossRefSkipLines:
		data = textLines[crossRefSkipLines:]
	}

	models := []CompatibleModel{}
	for i := 0; i+2 < len(data); i += 3 {
		brand := strings.TrimSpace(data[i])
		model := strings.TrimSpace(data[i+1])
		desc := strings.TrimSpace(data[i+2])
		if brand == "" || model == "" || desc == "" {
			continue
		}
		models = append(models, CompatibleModel{
			Brand:       brand,
			ModelNumber: model,
			Description: strings.TrimSpace(strings.ReplaceAll(desc, applianceSuffix, "")),
		})
	}
	return models
}

func parseQnA(container *html.Node) []QuestionAnswer {
	qna := []QuestionAnswer{}
	for _, q := range findAll(container, class("qna__question")) {
		questionEl := find(q, class("js-searchKeys"))
		var answerEl *html.Node
		for _, msg := range findAll(q, all(tag("div"), class("qna__ps-answer__msg"))) {
			if answerEl = childElement(msg, all(tag("div"), class("js-searchKeys"))); answerEl != nil {
				break
			}
		}
		if questionEl == nil || answerEl == nil {
			continue
		}
		qna = append(qna, QuestionAnswer{
			Question: text(questionEl),
			Answer:   text(answerEl),
		})
	}
	return qna
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
