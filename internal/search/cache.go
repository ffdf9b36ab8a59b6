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

package search

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// cacheEntry represents cached results with expiration
type cacheEntry struct {
	results   []Result
	expiresAt time.Time
}

// resultCache is a size-bounded LRU whose entries also expire after a TTL
type resultCache struct {
	lru *lru.Cache
	ttl time.Duration
	now func() time.Time
}

func newResultCache(size int, ttl time.Duration) (*resultCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &resultCache{lru: c, ttl: ttl, now: time.Now}, nil
}

func (c *resultCache) get(key string) ([]Result, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if c.ttl > 0 && c.now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	out := make([]Result, len(entry.results))
	copy(out, entry.results)
	return out, true
}

func (c *resultCache) set(key string, results []Result) {
	if c == nil {
		return
	}
	stored := make([]Result, len(results))
	copy(stored, results)
	c.lru.Add(key, cacheEntry{results: stored, expiresAt: c.now().Add(c.ttl)})
}

func (c *resultCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
