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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNoOpTracer_SpanLinking(t *testing.T) {
	tracer := NewNoOpTracer()

	ctx, parent := tracer.StartSpan(context.Background(), SpanAgentRun,
		WithAttribute(AttrQuestion, "how many users?"),
		WithSpanKind("agent"),
	)
	require.NotNil(t, parent)
	assert.NotEmpty(t, parent.TraceID)
	assert.Empty(t, parent.ParentID)
	assert.Same(t, parent, SpanFromContext(ctx))

	v, ok := parent.Attribute("span.kind")
	require.True(t, ok)
	assert.Equal(t, "agent", v)

	_, child := tracer.StartSpan(ctx, SpanAgentIteration)
	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)

	tracer.EndSpan(child)
	assert.False(t, child.EndTime.IsZero())
	assert.GreaterOrEqual(t, child.Duration.Nanoseconds(), int64(0))
}

func TestSpan_NilSafe(t *testing.T) {
	var span *Span
	assert.NotPanics(t, func() {
		span.SetAttribute("k", 1)
		span.AddEvent("e", nil)
		span.RecordError(errors.New("boom"))
		span.SetStatus(StatusOK, "")
	})
	assert.Nil(t, SpanFromContext(context.Background()))
}

func TestSpan_RecordError(t *testing.T) {
	_, span := NewNoOpTracer().StartSpan(context.Background(), SpanToolExecute)
	span.RecordError(errors.New("connection refused"))

	assert.Equal(t, StatusError, span.Status.Code)
	assert.Equal(t, "error", span.Status.Code.String())
	msg, _ := span.Attribute(AttrErrorMessage)
	assert.Equal(t, "connection refused", msg)
}

func TestMockTracer_CapturesSpansAndMetrics(t *testing.T) {
	tracer := NewMockTracer()
	ctx, run := tracer.StartSpan(context.Background(), SpanAgentRun)
	for i := 0; i < 2; i++ {
		_, it := tracer.StartSpan(ctx, SpanAgentIteration, WithAttribute(AttrIteration, i))
		tracer.EndSpan(it)
	}
	tracer.EndSpan(run)
	tracer.RecordMetric(MetricLLMTokensInput, 10, nil)
	tracer.RecordMetric(MetricLLMTokensInput, 5, nil)

	assert.Len(t, tracer.GetSpans(), 3)
	iterations := tracer.GetSpansByName(SpanAgentIteration)
	require.Len(t, iterations, 2)
	assert.Equal(t, run.SpanID, iterations[0].ParentID)
	assert.Equal(t, 15.0, tracer.Metric(MetricLLMTokensInput))
}

func TestZapTracer_LogsFinishedSpans(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := NewZapTracer(zap.New(core))

	_, ok := tracer.StartSpan(context.Background(), SpanBackendQuery, WithAttribute(AttrBackendType, "sqlite"))
	tracer.EndSpan(ok)

	_, failed := tracer.StartSpan(context.Background(), SpanLLMCompletion)
	failed.RecordError(errors.New("rate limited"))
	tracer.EndSpan(failed)

	tracer.RecordMetric(MetricLLMCalls, 1, map[string]string{"provider": "openai"})
	require.NoError(t, tracer.Flush(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, SpanBackendQuery, entries[0].ContextMap()["span"])
	assert.Equal(t, "sqlite", entries[0].ContextMap()[AttrBackendType])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "rate limited", entries[1].ContextMap()["status"])

	assert.Equal(t, "metric", entries[2].Message)
}
