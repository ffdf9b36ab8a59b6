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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePager serves fixed pages of question markup
type fakePager struct {
	pages    [][]string
	current  int
	waitErr  error
	replaced []string
	nexts    int
}

func (f *fakePager) Questions() ([]string, error) {
	return f.pages[f.current], nil
}

func (f *fakePager) FirstQuestion() (string, error) {
	if len(f.pages[f.current]) == 0 {
		return "", nil
	}
	return f.pages[f.current][0], nil
}

func (f *fakePager) Next() (bool, error) {
	f.nexts++
	if f.current+1 >= len(f.pages) {
		return false, nil
	}
	f.current++
	return true, nil
}

func (f *fakePager) WaitChanged(string) error {
	return f.waitErr
}

func (f *fakePager) Replace(items []string) error {
	f.replaced = items
	return nil
}

func TestCollectQnA(t *testing.T) {
	tests := []struct {
		name         string
		pages        [][]string
		maxPages     int
		waitErr      error
		wantPages    int
		wantReplaced []string
		wantErr      bool
	}{
		{
			name:      "single page left alone",
			pages:     [][]string{{"q1", "q2"}},
			maxPages:  MaxQnAPages,
			wantPages: 1,
		},
		{
			name:         "second page appended",
			pages:        [][]string{{"q1", "q2"}, {"q3"}},
			maxPages:     MaxQnAPages,
			wantPages:    2,
			wantReplaced: []string{"q1", "q2", "q3"},
		},
		{
			name:         "page limit respected",
			pages:        [][]string{{"q1"}, {"q2"}, {"q3"}},
			maxPages:     2,
			wantPages:    2,
			wantReplaced: []string{"q1", "q2"},
		},
		{
			name:      "no questions",
			pages:     [][]string{{}},
			maxPages:  MaxQnAPages,
			wantPages: 0,
		},
		{
			name:      "page change never seen keeps first page",
			pages:     [][]string{{"q1"}, {"q2"}},
			maxPages:  MaxQnAPages,
			waitErr:   errors.New("context deadline exceeded"),
			wantPages: 1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pager := &fakePager{pages: tt.pages, waitErr: tt.waitErr}
			pages, err := collectQnA(pager, tt.maxPages)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantPages, pages)
			assert.Equal(t, tt.wantReplaced, pager.replaced)
		})
	}
}
