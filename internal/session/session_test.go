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
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager := NewManager(Config{DefaultTTL: time.Hour, MaxSessions: 10}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func TestManager_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)

	session, err := manager.GetOrCreate(ctx, "")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if !ValidateSessionID(session.ID) {
		t.Errorf("session ID %q is not a UUID", session.ID)
	}

	got, err := manager.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != SessionActive {
		t.Errorf("Status = %s, want %s", got.Status, SessionActive)
	}

	if _, err := manager.GetSession(ctx, GenerateSessionID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession(unknown) error = %v, want ErrSessionNotFound", err)
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)

	fresh, err := manager.GetOrCreate(ctx, "")
	if err != nil {
		t.Fatalf("GetOrCreate(\"\") error = %v", err)
	}

	same, err := manager.GetOrCreate(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetOrCreate(existing) error = %v", err)
	}
	if same.ID != fresh.ID {
		t.Errorf("GetOrCreate returned %s, want existing %s", same.ID, fresh.ID)
	}

	clientID := GenerateSessionID()
	adopted, err := manager.GetOrCreate(ctx, clientID)
	if err != nil {
		t.Fatalf("GetOrCreate(unknown) error = %v", err)
	}
	if adopted.ID != clientID {
		t.Errorf("unknown well-formed ID should be adopted, got %s", adopted.ID)
	}

	replaced, err := manager.GetOrCreate(ctx, "not-a-uuid")
	if err != nil {
		t.Fatalf("GetOrCreate(malformed) error = %v", err)
	}
	if replaced.ID == "not-a-uuid" {
		t.Error("malformed ID must not be adopted")
	}
}

func TestManager_GetOrCreate_ExpiredSessionRestarts(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)

	session, _ := manager.GetOrCreate(ctx, "")
	if _, err := manager.AddMessage(ctx, session.ID, UserRole, "hello", nil); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	manager.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	expired, err := manager.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if expired.Status != SessionExpired {
		t.Errorf("Status = %s, want %s", expired.Status, SessionExpired)
	}

	restarted, err := manager.GetOrCreate(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if len(restarted.Messages) != 0 {
		t.Errorf("restarted session has %d messages, want 0", len(restarted.Messages))
	}
}

func TestManager_AddMessageAndHistory(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	session, _ := manager.GetOrCreate(ctx, "")

	turns := []struct {
		role    MessageRole
		content string
	}{
		{UserRole, "my dishwasher is leaking"},
		{AssistantRole, "### Problem Analysis"},
		{UserRole, "how do I install PS11746591?"},
		{AssistantRole, "### Part Information"},
	}
	for _, turn := range turns {
		msg, err := manager.AddMessage(ctx, session.ID, turn.role, turn.content, map[string]string{"k": "v"})
		if err != nil {
			t.Fatalf("AddMessage() error = %v", err)
		}
		if msg.ID == "" {
			t.Error("message ID should be set")
		}
	}

	history, err := manager.History(ctx, session.ID, 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History() returned %d messages, want 2", len(history))
	}
	if history[0].Content != "how do I install PS11746591?" {
		t.Errorf("History()[0] = %q", history[0].Content)
	}

	got, _ := manager.GetSession(ctx, session.ID)
	if got.Title != "My dishwasher is leaking" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.TokenCount == 0 {
		t.Error("TokenCount should accumulate")
	}
}

func TestManager_AddMessageToExpiredSession(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	session, _ := manager.GetOrCreate(ctx, "")

	manager.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := manager.AddMessage(ctx, session.ID, UserRole, "hi", nil); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("AddMessage() error = %v, want ErrSessionExpired", err)
	}
}

func TestManager_DeleteSession(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	session, _ := manager.GetOrCreate(ctx, "")

	if err := manager.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if err := manager.DeleteSession(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second DeleteSession() error = %v, want ErrSessionNotFound", err)
	}
}

func TestManager_CleanupLoopStopsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	manager := NewManager(Config{
		DefaultTTL:      time.Millisecond,
		MaxSessions:     10,
		CleanupInterval: 5 * time.Millisecond,
	}, zaptest.NewLogger(t))

	if _, err := manager.GetOrCreate(context.Background(), ""); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for manager.storage.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := manager.storage.Len(); n != 0 {
		t.Errorf("expired sessions not cleaned up, %d remain", n)
	}

	if err := manager.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
