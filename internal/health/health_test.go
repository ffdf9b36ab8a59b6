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

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/parts-assistant/internal/resilience"
)

func TestManager_Check(t *testing.T) {
	manager := NewManager("partsbot", "1.0.0", zap.NewNop())

	manager.AddCheckerFunc("healthy", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	manager.AddCheckerFunc("unhealthy", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy, Error: "service is down"}
	})
	manager.AddCheckerFunc("degraded", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusDegraded}
	})

	result := manager.Check(context.Background())

	if result.Status != StatusUnhealthy {
		t.Errorf("Expected status to be unhealthy, got %s", result.Status)
	}
	if result.Service != "partsbot" || result.Version != "1.0.0" {
		t.Errorf("unexpected service info %s %s", result.Service, result.Version)
	}
	if len(result.Dependencies) != 3 {
		t.Errorf("Expected 3 dependencies, got %d", len(result.Dependencies))
	}
	if got := result.Dependencies["unhealthy"].Error; got != "service is down" {
		t.Errorf("Expected error message, got %s", got)
	}
	if result.Dependencies["healthy"].Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestManager_Check_DegradedAndHealthy(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all healthy", []string{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []string{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"no checkers", nil, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager("partsbot", "test", nil)
			for i, status := range tt.statuses {
				status := status
				manager.AddCheckerFunc(string(rune('a'+i)), func(ctx context.Context) CheckResult {
					return CheckResult{Status: status}
				})
			}
			if got := manager.Check(context.Background()).Status; got != tt.want {
				t.Errorf("Status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestManager_Check_Timeout(t *testing.T) {
	manager := NewManager("partsbot", "test", nil)
	manager.SetTimeout(20 * time.Millisecond)
	manager.AddCheckerFunc("slow", func(ctx context.Context) CheckResult {
		<-ctx.Done()
		return CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
	})

	start := time.Now()
	result := manager.Check(context.Background())
	if time.Since(start) > time.Second {
		t.Error("Check() should respect the timeout")
	}
	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %s, want unhealthy", result.Status)
	}
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		status     string
		wantStatus int
	}{
		{"healthy", StatusHealthy, http.StatusOK},
		{"degraded", StatusDegraded, http.StatusOK},
		{"unhealthy", StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager("partsbot", "test", zap.NewNop())
			manager.AddChecker("dep", ConfiguredChecker("dep", true))
			manager.AddCheckerFunc("dummy", func(ctx context.Context) CheckResult {
				return CheckResult{Status: tt.status}
			})

			router := gin.New()
			router.GET("/health", manager.Handler())

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantStatus)
			}
			var body Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body.Status != tt.status {
				t.Errorf("body status = %s, want %s", body.Status, tt.status)
			}
		})
	}
}

func TestConfiguredChecker(t *testing.T) {
	if got := ConfiguredChecker("llm", true).Check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("configured = %s, want healthy", got.Status)
	}
	got := ConfiguredChecker("llm", false).Check(context.Background())
	if got.Status != StatusDegraded || got.Error != "llm is not configured" {
		t.Errorf("unconfigured = %+v", got)
	}
}

func TestServiceChecker(t *testing.T) {
	if got := ServiceChecker("llm", func(ctx context.Context) error { return nil }).Check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("reachable = %s, want healthy", got.Status)
	}

	got := ServiceChecker("llm", func(ctx context.Context) error { return errors.New("invalid api key") }).Check(context.Background())
	if got.Status != StatusDegraded {
		t.Errorf("unreachable = %s, want degraded", got.Status)
	}
	if got.Error != "llm ping failed: invalid api key" {
		t.Errorf("Error = %q", got.Error)
	}
}

func TestBreakerChecker(t *testing.T) {
	cfg := resilience.DefaultCircuitBreakerConfig("search")
	cfg.MaxFailures = 1
	cfg.ResetTimeout = time.Hour
	breaker := resilience.NewCircuitBreaker(cfg, zap.NewNop())

	if got := BreakerChecker(breaker).Check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("closed breaker = %s, want healthy", got.Status)
	}

	_ = breaker.Execute(context.Background(), func(context.Context) error {
		return errors.New("upstream failure")
	})

	got := BreakerChecker(breaker).Check(context.Background())
	if got.Status != StatusDegraded {
		t.Errorf("open breaker = %s, want degraded", got.Status)
	}
	if got.Metadata["failures"] != 1 {
		t.Errorf("failures metadata = %v, want 1", got.Metadata["failures"])
	}

	if got := BreakerChecker(nil).Check(context.Background()); got.Status != StatusDegraded {
		t.Errorf("nil breaker = %s, want degraded", got.Status)
	}
}

func TestDatabaseHealthChecker(t *testing.T) {
	ok := DatabaseHealthChecker("transcript", func(ctx context.Context) error { return nil })
	if got := ok.Check(context.Background()); got.Status != StatusHealthy || got.Metadata["database"] != "transcript" {
		t.Errorf("healthy db = %+v", got)
	}

	failing := DatabaseHealthChecker("transcript", func(ctx context.Context) error { return errors.New("disk I/O error") })
	got := failing.Check(context.Background())
	if got.Status != StatusUnhealthy {
		t.Errorf("failing db = %s, want unhealthy", got.Status)
	}
	if got.Error != "database ping failed: disk I/O error" {
		t.Errorf("Error = %q", got.Error)
	}
}
