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

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ZapTracer writes finished spans and metrics to a zap logger at debug
// level. Error spans are written at warn level.
type ZapTracer struct {
	logger *zap.Logger
}

// NewZapTracer creates a tracer logging to logger, or to zap.L() when nil.
func NewZapTracer(logger *zap.Logger) *ZapTracer {
	return &ZapTracer{logger: logger}
}

func (t *ZapTracer) log() *zap.Logger {
	if t.logger != nil {
		return t.logger
	}
	return zap.L()
}

func (t *ZapTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := newSpan(ctx, name, uuid.New().String(), uuid.New().String(), opts)
	return ContextWithSpan(ctx, span), span
}

func (t *ZapTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.finish()

	span.mu.Lock()
	fields := make([]zap.Field, 0, len(span.Attributes)+5)
	fields = append(fields,
		zap.String("span", span.Name),
		zap.String("trace_id", span.TraceID),
		zap.String("span_id", span.SpanID),
		zap.Duration("duration", span.Duration),
	)
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID))
	}
	for k, v := range span.Attributes {
		fields = append(fields, zap.Any(k, v))
	}
	status := span.Status
	span.mu.Unlock()

	if status.Code == StatusError {
		t.log().Warn("span failed", append(fields, zap.String("status", status.Message))...)
		return
	}
	t.log().Debug("span", fields...)
}

func (t *ZapTracer) RecordMetric(name string, value float64, labels map[string]string) {
	t.log().Debug("metric",
		zap.String("metric", name),
		zap.Float64("value", value),
		zap.Any("labels", labels),
	)
}

func (t *ZapTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	fields := []zap.Field{zap.String("event", name), zap.Any("attributes", attributes)}
	if span := SpanFromContext(ctx); span != nil {
		fields = append(fields, zap.String("trace_id", span.TraceID))
	}
	t.log().Debug("event", fields...)
}

func (t *ZapTracer) Flush(ctx context.Context) error {
	// Sync on a console sink returns EINVAL on linux; nothing is lost.
	_ = t.log().Sync()
	return nil
}

var _ Tracer = (*ZapTracer)(nil)
