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

// Package session provides conversation memory for multi-turn chats.
// Sessions live in a Storage backend and expire after a period of inactivity.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrSessionNotFound is returned when a session ID is unknown or expired
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when writing to an expired session
	ErrSessionExpired = errors.New("session has expired")
)

// Config holds configuration for session management
type Config struct {
	DefaultTTL      time.Duration `json:"default_ttl"`
	MaxSessions     int           `json:"max_sessions"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      30 * time.Minute,
		MaxSessions:     1000,
		CleanupInterval: 5 * time.Minute,
	}
}

// Session represents a conversation with its history
type Session struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
	Messages   []Message     `json:"messages"`
	TokenCount int           `json:"token_count"`
	Status     SessionStatus `json:"status"`
}

// SessionStatus represents the status of a session
type SessionStatus string

const (
	// SessionActive indicates an active session
	SessionActive SessionStatus = "active"
	// SessionExpired indicates an expired session
	SessionExpired SessionStatus = "expired"
)

// Message represents a single message in a conversation. Metadata carries
// the entities found in a user turn and the intent of an assistant turn.
type Message struct {
	ID         string            `json:"id"`
	Role       MessageRole       `json:"role"`
	Content    string            `json:"content"`
	Timestamp  time.Time         `json:"timestamp"`
	TokenCount int               `json:"token_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// MessageRole represents the role of a message sender
type MessageRole string

const (
	// UserRole indicates a message from the user
	UserRole MessageRole = "user"
	// AssistantRole indicates a message from the assistant
	AssistantRole MessageRole = "assistant"
)

// Storage defines the interface for session storage backends
type Storage interface {
	// Get retrieves a session by ID
	Get(ctx context.Context, sessionID string) (*Session, error)
	// Set stores a session, extending its expiry by ttl when ttl > 0
	Set(ctx context.Context, session *Session, ttl time.Duration) error
	// Delete removes a session
	Delete(ctx context.Context, sessionID string) error
	// Exists checks if a session exists
	Exists(ctx context.Context, sessionID string) (bool, error)
	// Cleanup removes expired sessions and reports how many were removed
	Cleanup(ctx context.Context) (int, error)
	// Len returns the number of stored sessions
	Len() int
	// Close closes the storage backend
	Close() error
}

// Manager handles session lifecycle and storage operations
type Manager struct {
	storage Storage
	config  Config
	logger  *zap.Logger
	now     func() time.Time

	// mu serializes read-modify-write cycles on sessions
	mu sync.Mutex

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewManager creates a session manager backed by in-memory storage
func NewManager(config Config, logger *zap.Logger) *Manager {
	return NewManagerWithStorage(config, NewMemoryStorage(config.MaxSessions), logger)
}

// NewManagerWithStorage creates a session manager over an existing backend
func NewManagerWithStorage(config Config, storage Storage, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultConfig().DefaultTTL
	}

	manager := &Manager{
		storage: storage,
		config:  config,
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		manager.wg.Add(1)
		go manager.cleanupLoop()
	}

	return manager
}

func (m *Manager) create(ctx context.Context, sessionID string) (*Session, error) {
	now := m.now()
	session := &Session{
		ID:        sessionID,
		Title:     DefaultConversationTitle,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.config.DefaultTTL),
		Messages:  []Message{},
		Status:    SessionActive,
	}

	if err := m.storage.Set(ctx, session, 0); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.logger.Info("Created new session", zap.String("session_id", sessionID))
	return session, nil
}

// GetOrCreate returns the active session with the given ID. An empty,
// malformed, unknown or expired ID starts a fresh session.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ValidateSessionID(sessionID) {
		session, err := m.getLocked(ctx, sessionID)
		switch {
		case err == nil && session.Status == SessionActive:
			return session, nil
		case err != nil && !errors.Is(err, ErrSessionNotFound):
			return nil, err
		}
		if err == nil {
			if err := m.storage.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
				return nil, fmt.Errorf("failed to drop stale session: %w", err)
			}
		}
		return m.create(ctx, sessionID)
	}

	return m.create(ctx, GenerateSessionID())
}

// GetSession retrieves a session by ID. Expired sessions are returned with
// SessionExpired status.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(ctx, sessionID)
}

func (m *Manager) getLocked(ctx context.Context, sessionID string) (*Session, error) {
	session, err := m.storage.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.Status == SessionActive && session.ExpiresAt.Before(m.now()) {
		session.Status = SessionExpired
	}
	return session, nil
}

// AddMessage appends a message to a session and extends its expiry
func (m *Manager) AddMessage(ctx context.Context, sessionID string, role MessageRole, content string, metadata map[string]string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.getLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != SessionActive {
		return nil, fmt.Errorf("%w: %s", ErrSessionExpired, sessionID)
	}

	now := m.now()
	message := Message{
		ID:         GenerateMessageID(),
		Role:       role,
		Content:    content,
		Timestamp:  now,
		TokenCount: EstimateTokenCount(content),
		Metadata:   metadata,
	}

	session.Messages = append(session.Messages, message)
	session.TokenCount += message.TokenCount
	if role == UserRole && session.Title == DefaultConversationTitle {
		session.Title = GenerateTitle(content)
	}
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(m.config.DefaultTTL)

	if err := m.storage.Set(ctx, session, 0); err != nil {
		return nil, fmt.Errorf("failed to update session with new message: %w", err)
	}

	m.logger.Debug("Added message to session",
		zap.String("session_id", sessionID),
		zap.String("role", string(role)),
		zap.Int("token_count", message.TokenCount))

	return &message, nil
}

// History returns the most recent maxMessages messages of a session
func (m *Manager) History(ctx context.Context, sessionID string, maxMessages int) ([]Message, error) {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return GetRecentMessages(session.Messages, maxMessages), nil
}

// DeleteSession removes a session
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.storage.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.logger.Info("Deleted session", zap.String("session_id", sessionID))
	return nil
}

// cleanupLoop runs periodic cleanup of expired sessions
func (m *Manager) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m.mu.Lock()
	removed, err := m.storage.Cleanup(ctx)
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("Failed to cleanup expired sessions", zap.Error(err))
		return
	}
	if removed > 0 {
		m.logger.Info("Removed expired sessions", zap.Int("count", removed))
	}
}

// Close stops the cleanup loop and closes the storage. It is safe to call twice.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()

		if closeErr := m.storage.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close storage: %w", closeErr)
		}
	})
	return err
}

// GetStats returns session statistics
func (m *Manager) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"active_sessions": m.storage.Len(),
		"max_sessions":    m.config.MaxSessions,
		"default_ttl":     m.config.DefaultTTL.String(),
	}
}
