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
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// MemoryStorage provides in-memory session storage with LRU eviction
type MemoryStorage struct {
	mutex       sync.Mutex
	sessions    *lru.Cache
	maxSessions int
	now         func() time.Time
}

// NewMemoryStorage creates a new in-memory session storage holding at most
// maxSessions sessions. The least recently used session is evicted first.
func NewMemoryStorage(maxSessions int) *MemoryStorage {
	if maxSessions <= 0 {
		maxSessions = DefaultConfig().MaxSessions
	}
	cache, err := lru.New(maxSessions)
	if err != nil {
		// lru.New only fails for a non-positive size
		panic(err)
	}
	return &MemoryStorage{
		sessions:    cache,
		maxSessions: maxSessions,
		now:         time.Now,
	}
}

// Get retrieves a copy of a session by ID
func (m *MemoryStorage) Get(_ context.Context, sessionID string) (*Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	value, ok := m.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return copySession(value.(*Session)), nil
}

// Set stores a copy of the session
func (m *MemoryStorage) Set(_ context.Context, session *Session, ttl time.Duration) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session must have an ID")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	stored := copySession(session)
	if ttl > 0 {
		stored.ExpiresAt = m.now().Add(ttl)
	}
	m.sessions.Add(session.ID, stored)
	return nil
}

// Delete removes a session
func (m *MemoryStorage) Delete(_ context.Context, sessionID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.sessions.Contains(sessionID) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	m.sessions.Remove(sessionID)
	return nil
}

// Exists checks if a session exists
func (m *MemoryStorage) Exists(_ context.Context, sessionID string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.sessions.Contains(sessionID), nil
}

// Cleanup removes expired sessions
func (m *MemoryStorage) Cleanup(_ context.Context) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	removed := 0
	for _, key := range m.sessions.Keys() {
		value, ok := m.sessions.Peek(key)
		if !ok {
			continue
		}
		if value.(*Session).ExpiresAt.Before(now) {
			m.sessions.Remove(key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions
func (m *MemoryStorage) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.sessions.Len()
}

// Close drops all sessions
func (m *MemoryStorage) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions.Purge()
	return nil
}

func copySession(s *Session) *Session {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return &c
}
