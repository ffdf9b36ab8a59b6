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
)

func TestMemoryStorage_SetGetCopies(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(10)

	original := &Session{ID: "a", Messages: []Message{{Content: "one"}}, ExpiresAt: time.Now().Add(time.Hour)}
	if err := storage.Set(ctx, original, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	original.Messages[0].Content = "mutated"

	got, err := storage.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Messages[0].Content != "one" {
		t.Errorf("stored session was modified through caller slice: %q", got.Messages[0].Content)
	}

	got.Messages = append(got.Messages, Message{Content: "two"})
	again, _ := storage.Get(ctx, "a")
	if len(again.Messages) != 1 {
		t.Errorf("stored session was modified through returned copy")
	}
}

func TestMemoryStorage_SetWithTTL(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(10)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	storage.now = func() time.Time { return fixed }

	if err := storage.Set(ctx, &Session{ID: "a"}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, _ := storage.Get(ctx, "a")
	if !got.ExpiresAt.Equal(fixed.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, fixed.Add(time.Minute))
	}

	if err := storage.Set(ctx, &Session{}, 0); err == nil {
		t.Error("Set() without ID should fail")
	}
}

func TestMemoryStorage_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(2)

	_ = storage.Set(ctx, &Session{ID: "a"}, 0)
	_ = storage.Set(ctx, &Session{ID: "b"}, 0)
	if _, err := storage.Get(ctx, "a"); err != nil {
		t.Fatalf("Get(a) error = %v", err)
	}
	_ = storage.Set(ctx, &Session{ID: "c"}, 0)

	if ok, _ := storage.Exists(ctx, "b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	for _, id := range []string{"a", "c"} {
		if ok, _ := storage.Exists(ctx, id); !ok {
			t.Errorf("%s should still be stored", id)
		}
	}
	if storage.Len() != 2 {
		t.Errorf("Len() = %d, want 2", storage.Len())
	}
}

func TestMemoryStorage_Cleanup(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(10)
	now := time.Now()

	_ = storage.Set(ctx, &Session{ID: "expired", ExpiresAt: now.Add(-time.Minute)}, 0)
	_ = storage.Set(ctx, &Session{ID: "live", ExpiresAt: now.Add(time.Minute)}, 0)

	removed, err := storage.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
	if ok, _ := storage.Exists(ctx, "live"); !ok {
		t.Error("live session should remain")
	}
}

func TestMemoryStorage_DeleteAndClose(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(0)

	_ = storage.Set(ctx, &Session{ID: "a"}, 0)
	if err := storage.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := storage.Delete(ctx, "a"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrSessionNotFound", err)
	}
	if _, err := storage.Get(ctx, "a"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrSessionNotFound", err)
	}

	_ = storage.Set(ctx, &Session{ID: "b"}, 0)
	if err := storage.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if storage.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", storage.Len())
	}
}
