// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MockTracer captures finished spans and metrics for inspection in tests.
type MockTracer struct {
	mu      sync.RWMutex
	spans   []*Span
	metrics map[string]float64
	seq     atomic.Int64
}

// NewMockTracer creates a new mock tracer for testing.
func NewMockTracer() *MockTracer {
	return &MockTracer{metrics: make(map[string]float64)}
}

func (m *MockTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	n := m.seq.Add(1)
	span := newSpan(ctx, name, fmt.Sprintf("trace-%d", n), fmt.Sprintf("span-%d", n), opts)
	return ContextWithSpan(ctx, span), span
}

func (m *MockTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.finish()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, span)
}

// RecordMetric sums values per metric name.
func (m *MockTracer) RecordMetric(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics[name] += value
}

func (m *MockTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

func (m *MockTracer) Flush(ctx context.Context) error {
	return nil
}

// GetSpans returns a copy of all finished spans.
func (m *MockTracer) GetSpans() []*Span {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spans := make([]*Span, len(m.spans))
	copy(spans, m.spans)
	return spans
}

// GetSpansByName returns finished spans with the given name.
func (m *MockTracer) GetSpansByName(name string) []*Span {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Span
	for _, span := range m.spans {
		if span.Name == name {
			result = append(result, span)
		}
	}
	return result
}

// Metric returns the summed value of a metric.
func (m *MockTracer) Metric(name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics[name]
}

var _ Tracer = (*MockTracer)(nil)
