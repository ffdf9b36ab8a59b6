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

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func fastBackoff() BackoffConfig {
	config := DefaultBackoffConfig()
	config.BaseDelay = time.Millisecond
	config.MaxDelay = 5 * time.Millisecond
	config.Jitter = false
	return config
}

func TestWithExponentialBackoffSucceedsAfterRetry(t *testing.T) {
	attempts := 0
	err := WithExponentialBackoff(context.Background(), zaptest.NewLogger(t), fastBackoff(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errUpstream
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestWithExponentialBackoffExhausted(t *testing.T) {
	attempts := 0
	err := WithExponentialBackoff(context.Background(), nil, fastBackoff(), func(context.Context) error {
		attempts++
		return errUpstream
	})

	if !errors.Is(err, errUpstream) {
		t.Fatalf("Expected wrapped upstream error, got %v", err)
	}
	if attempts != DefaultMaxRetries+1 {
		t.Errorf("Expected %d attempts, got %d", DefaultMaxRetries+1, attempts)
	}
}

func TestWithExponentialBackoffPermanent(t *testing.T) {
	attempts := 0
	err := WithExponentialBackoff(context.Background(), nil, fastBackoff(), func(context.Context) error {
		attempts++
		return Permanent(errUpstream)
	})

	if attempts != 1 {
		t.Errorf("Expected permanent error to stop after 1 attempt, got %d", attempts)
	}
	if !IsPermanent(err) || !errors.Is(err, errUpstream) {
		t.Errorf("Expected permanent upstream error, got %v", err)
	}
}

func TestWithExponentialBackoffContextCancelled(t *testing.T) {
	config := fastBackoff()
	config.BaseDelay = time.Second
	config.MaxDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	err := WithExponentialBackoff(ctx, nil, config, func(context.Context) error {
		cancel()
		return errUpstream
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDefaultRetryOnFunc(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		retry bool
	}{
		{"nil", nil, false},
		{"plain", errUpstream, true},
		{"permanent", Permanent(errUpstream), false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"breaker open", ErrCircuitBreakerOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryOnFunc(tt.err); got != tt.retry {
				t.Errorf("DefaultRetryOnFunc(%v) = %v, want %v", tt.err, got, tt.retry)
			}
		})
	}
}

func TestBackoffDelayIsCapped(t *testing.T) {
	config := fastBackoff()
	if d := backoffDelay(config, 10); d != config.MaxDelay {
		t.Errorf("Expected delay capped at %v, got %v", config.MaxDelay, d)
	}
	if d := backoffDelay(config, 1); d != 2*time.Millisecond {
		t.Errorf("Expected 2ms second delay, got %v", d)
	}
}
