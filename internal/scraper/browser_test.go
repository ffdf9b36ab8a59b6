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
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/parts-assistant/internal/config"
)

// newTestBrowserFetcher skips when no local Chrome is installed
func newTestBrowserFetcher(t *testing.T) *BrowserFetcher {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in short mode")
	}
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no Chrome or Chromium binary found")
	}
	f := NewBrowserFetcher(config.ScraperConfig{
		Headless:          true,
		Timeout:           10 * time.Second,
		RequestsPerSecond: 100,
		Burst:             100,
	}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = f.Close() })
	return f
}

const paginatedQnAPage = `<html><body>
<div id="QuestionsAndAnswersContent">
  <div id="qna-list">
    <div class="qna__question"><div class="js-searchKeys">Does it fit WDT780SAEM1?</div>
      <div class="qna__ps-answer__msg"><div class="js-searchKeys">Yes.</div></div></div>
  </div>
  <ul class="pagination js-pagination"><li class="next"><a href="#" onclick="nextPage(); return false;">Next</a></li></ul>
</div>
<script>
function nextPage() {
  setTimeout(function () {
    document.getElementById("qna-list").innerHTML =
      '<div class="qna__question"><div class="js-searchKeys">Is the rack sold in pairs?</div>' +
      '<div class="qna__ps-answer__msg"><div class="js-searchKeys">No, singly.</div></div></div>';
    document.querySelector("li.next").classList.add("disabled");
  }, 100);
}
</script>
</body></html>`

func TestBrowserFetcher_QnAPagination(t *testing.T) {
	f := newTestBrowserFetcher(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, paginatedQnAPage)
	}))
	defer srv.Close()

	document, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	page, err := ParseProductPage(document, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []QuestionAnswer{
		{Question: "Does it fit WDT780SAEM1?", Answer: "Yes."},
		{Question: "Is the rack sold in pairs?", Answer: "No, singly."},
	}, page.QnA)
}

func TestBrowserFetcher_ClosesTabWhenRequestExpires(t *testing.T) {
	f := newTestBrowserFetcher(t)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	browser, err := f.ensureStarted()
	require.NoError(t, err)
	before, err := browser.Pages()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err = f.Fetch(ctx, srv.URL)
	require.Error(t, err)

	after, err := browser.Pages()
	require.NoError(t, err)
	assert.Len(t, after, len(before), "the tab of the expired fetch is still open")
}
