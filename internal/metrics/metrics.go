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

// Package metrics exposes Prometheus collectors for the chat pipeline.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/parts-assistant/internal/resilience"
)

const namespace = "partsbot"

// Pipeline stage labels
const (
	StageIntent   = "intent"
	StageExtract  = "extract"
	StageSearch   = "search"
	StageScrape   = "scrape"
	StageGenerate = "generate"
	StageTotal    = "total"
)

// Metrics holds the collectors registered on a private registry
type Metrics struct {
	registry *prometheus.Registry

	chatRequests    *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	sectionFailures *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	feedback        *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests handled, by detected intent and result status.",
		}, []string{"intent", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		}, []string{"stage"}),
		sectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_section_failures_total",
			Help:      "Page sections that could not be extracted.",
		}, []string{"page", "section"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_lookups_total",
			Help:      "Search cache lookups by result.",
		}, []string{"result"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"name"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "User feedback received, by rating.",
		}, []string{"rating"}),
	}

	m.registry.MustRegister(
		m.chatRequests,
		m.stageDuration,
		m.sectionFailures,
		m.cacheLookups,
		m.breakerState,
		m.feedback,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry backing the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordChat counts a finished chat request
func (m *Metrics) RecordChat(intent, status string) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(intent, status).Inc()
}

// ObserveStage records the time elapsed since start for a pipeline stage
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordSectionFailure counts a page section that failed to parse
func (m *Metrics) RecordSectionFailure(page, section string) {
	if m == nil {
		return
	}
	m.sectionFailures.WithLabelValues(page, section).Inc()
}

// RecordCacheLookup counts a search cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordFeedback counts a feedback submission
func (m *Metrics) RecordFeedback(rating string) {
	if m == nil {
		return
	}
	m.feedback.WithLabelValues(rating).Inc()
}

// BreakerStateChanged matches resilience.CircuitBreakerConfig.OnStateChange
func (m *Metrics) BreakerStateChanged(name string, _, to resilience.CircuitState) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(to))
}
