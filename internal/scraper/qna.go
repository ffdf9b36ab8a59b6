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

	"github.com/go-rod/rod"
)

const (
	qnaItemsJS = `() => Array.from(document.querySelectorAll("#QuestionsAndAnswersContent .qna__question")).map((el) => el.outerHTML)`

	qnaFirstJS = `() => {
	const q = document.querySelector("#QuestionsAndAnswersContent .qna__question .js-searchKeys");
	return q ? q.textContent.trim() : "";
}`

	qnaNextJS = `() => {
	const next = document.querySelector("#QuestionsAndAnswersContent ul.pagination.js-pagination li.next");
	if (!next || next.classList.contains("disabled")) {
		return false;
	}
	(next.querySelector("a") || next).click();
	return true;
}`

	qnaChangedJS = `(prev) => {
	const q = document.querySelector("#QuestionsAndAnswersContent .qna__question .js-searchKeys");
	return !!q && q.textContent.trim() !== prev;
}`

	qnaReplaceJS = `(items) => {
	const c = document.getElementById("QuestionsAndAnswersContent");
	if (c) {
		c.innerHTML = items.join("");
	}
}`
)

// qnaPager walks the paginated Q&A list of a rendered product page
type qnaPager interface {
	// Questions returns the markup of each question on the current page
	Questions() ([]string, error)
	FirstQuestion() (string, error)
	// Next clicks the next-page control and reports false when there is none
	Next() (bool, error)
	WaitChanged(prevFirst string) error
	// Replace swaps the Q&A list for the collected questions
	Replace(items []string) error
}

// collectQnA gathers questions from up to maxPages pages and writes them
// back into the document so the HTML parser sees every page. It returns the
// number of pages read; an error after the first page keeps what was read.
func collectQnA(p qnaPager, maxPages int) (int, error) {
	items, err := p.Questions()
	if err != nil {
		return 0, fmt.Errorf("read q&a page 1: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	pages := 1
	var pageErr error
	for pages < maxPages {
		first, err := p.FirstQuestion()
		if err != nil {
			pageErr = err
			break
		}
		moved, err := p.Next()
		if err != nil {
			pageErr = err
			break
		}
		if !moved {
			break
		}
		if err := p.WaitChanged(first); err != nil {
			pageErr = fmt.Errorf("wait for q&a page %d: %w", pages+1, err)
			break
		}
		more, err := p.Questions()
		if err != nil {
			pageErr = fmt.Errorf("read q&a page %d: %w", pages+1, err)
			break
		}
		items = append(items, more...)
		pages++
	}

	if pages > 1 {
		if err := p.Replace(items); err != nil {
			return pages, fmt.Errorf("write collected q&a: %w", err)
		}
	}
	return pages, pageErr
}

// rodQnAPager drives the Q&A pagination of a rod page
type rodQnAPager struct {
	page *rod.Page
}

func (r *rodQnAPager) Questions() ([]string, error) {
	res, err := r.page.Eval(qnaItemsJS)
	if err != nil {
		return nil, err
	}
	var items []string
	for _, v := range res.Value.Arr() {
		items = append(items, v.Str())
	}
	return items, nil
}

func (r *rodQnAPager) FirstQuestion() (string, error) {
	res, err := r.page.Eval(qnaFirstJS)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (r *rodQnAPager) Next() (bool, error) {
	res, err := r.page.Eval(qnaNextJS)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (r *rodQnAPager) WaitChanged(prevFirst string) error {
	wait := r.page.Timeout(qnaPageWait)
	defer wait.CancelTimeout()
	return wait.Wait(rod.Eval(qnaChangedJS, prevFirst))
}

func (r *rodQnAPager) Replace(items []string) error {
	_, err := r.page.Eval(qnaReplaceJS, items)
	return err
}
