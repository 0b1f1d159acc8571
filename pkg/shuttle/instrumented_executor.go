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
package shuttle

import (
	"context"
	"encoding/json"

	"github.com/quarrydata/quarry/pkg/observability"
)

// InstrumentedExecutor wraps an Executor with a span and metrics per tool
// call. Parameters are recorded on the span when their JSON is small.
type InstrumentedExecutor struct {
	executor *Executor
	tracer   observability.Tracer
}

// NewInstrumentedExecutor wraps executor. A nil tracer disables tracing.
func NewInstrumentedExecutor(executor *Executor, tracer observability.Tracer) *InstrumentedExecutor {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &InstrumentedExecutor{executor: executor, tracer: tracer}
}

// Registry returns the wrapped executor's registry.
func (e *InstrumentedExecutor) Registry() *Registry {
	return e.executor.Registry()
}

// Execute runs the named tool inside a tool.execute span.
func (e *InstrumentedExecutor) Execute(ctx context.Context, toolName string, params map[string]interface{}) *Result {
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanToolExecute,
		observability.WithAttribute(observability.AttrToolName, toolName))
	defer e.tracer.EndSpan(span)

	if len(params) > 0 {
		if encoded, err := json.Marshal(params); err == nil && len(encoded) < 1000 {
			span.SetAttribute("tool.args", string(encoded))
		} else {
			span.SetAttribute("tool.args.count", len(params))
		}
	}

	result := e.executor.Execute(ctx, toolName, params)

	span.SetAttribute(observability.AttrToolSuccess, result.Success)
	span.SetAttribute("tool.execution_time_ms", result.ExecutionTimeMs)
	labels := map[string]string{observability.AttrToolName: toolName}
	if result.Success {
		span.SetStatus(observability.StatusOK, "")
		e.tracer.RecordMetric(observability.MetricToolExecutions, 1, labels)
		return result
	}

	code, msg := "", ""
	if result.Error != nil {
		code, msg = result.Error.Code, result.Error.Message
	}
	span.SetStatus(observability.StatusError, msg)
	span.SetAttribute("tool.error.code", code)
	span.SetAttribute(observability.AttrErrorMessage, msg)

	labels["error_code"] = code
	e.tracer.RecordMetric(observability.MetricToolExecutions, 1, labels)
	e.tracer.RecordMetric(observability.MetricToolErrors, 1, labels)
	return result
}

// ExecuteBatch runs calls with the wrapped executor's parallelism, each in
// its own span, and returns results in call order.
func (e *InstrumentedExecutor) ExecuteBatch(ctx context.Context, calls []Call) []*Result {
	return e.executor.runBatch(ctx, calls, func(ctx context.Context, call Call) *Result {
		return e.Execute(ctx, call.Name, call.Params)
	})
}
