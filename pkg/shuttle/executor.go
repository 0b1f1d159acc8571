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
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Error codes set by the executor.
const (
	CodeToolNotFound     = "tool_not_found"
	CodeInvalidArguments = "invalid_arguments"
	CodeExecutionFailed  = "execution_failed"
	CodePanic            = "panic"
)

// ToolExecutor runs tool calls. Implemented by Executor and
// InstrumentedExecutor.
type ToolExecutor interface {
	Execute(ctx context.Context, toolName string, params map[string]interface{}) *Result
	ExecuteBatch(ctx context.Context, calls []Call) []*Result
	Registry() *Registry
}

// Call is one tool invocation handed to ExecuteBatch.
type Call struct {
	Name   string
	Params map[string]interface{}
}

// Executor executes tools with timing and error containment. A tool failure
// of any kind comes back as a failed Result, never as a Go error, so the
// model can read it and adjust.
type Executor struct {
	registry    *Registry
	parallelism int
	seq         atomic.Int64
}

type callSeqKey struct{}

// CallSeq returns the ordinal the executor gave the call running under ctx.
// Ordinals grow in the order calls were requested, across batches, so tools
// that record history can keep request order when a batch runs in parallel.
func CallSeq(ctx context.Context) (int64, bool) {
	seq, ok := ctx.Value(callSeqKey{}).(int64)
	return seq, ok
}

func (e *Executor) withNextSeq(ctx context.Context) context.Context {
	return context.WithValue(ctx, callSeqKey{}, e.seq.Add(1))
}

// NewExecutor creates a new tool executor.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry, parallelism: 1}
}

// SetParallelism sets how many calls of one batch may run concurrently.
// Values below 1 are treated as 1 (sequential).
func (e *Executor) SetParallelism(n int) {
	if n < 1 {
		n = 1
	}
	e.parallelism = n
}

// Registry returns the registry the executor resolves tools from.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs the named tool.
func (e *Executor) Execute(ctx context.Context, toolName string, params map[string]interface{}) *Result {
	if _, ok := CallSeq(ctx); !ok {
		ctx = e.withNextSeq(ctx)
	}
	tool, ok := e.registry.Get(toolName)
	if !ok {
		result := Failuref(CodeToolNotFound, "tool not found: %s (available: %s)",
			toolName, strings.Join(e.registry.List(), ", "))
		zap.L().Warn("unknown tool requested", zap.String("tool", toolName))
		return result
	}
	return e.ExecuteWithTool(ctx, tool, params)
}

// ExecuteWithTool executes a specific tool instance (not from registry).
func (e *Executor) ExecuteWithTool(ctx context.Context, tool Tool, params map[string]interface{}) (result *Result) {
	params = normalizeParametersToSchema(tool, dropNullParams(params))

	if err := ValidateArguments(tool.InputSchema(), params); err != nil {
		return Failure(CodeInvalidArguments, err.Error())
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("tool panicked",
				zap.String("tool", tool.Name()),
				zap.Any("panic", r),
			)
			result = Failuref(CodePanic, "tool %s crashed: %v", tool.Name(), r)
		}
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
	}()

	result, err := tool.Execute(ctx, params)
	if err != nil {
		zap.L().Warn("tool execution failed",
			zap.String("tool", tool.Name()),
			zap.Error(err),
		)
		return Failure(CodeExecutionFailed, err.Error())
	}
	if result == nil {
		result = &Result{Success: true}
	}
	return result
}

// ExecuteBatch runs calls and returns one result per call, in call order.
// With parallelism above 1 the calls run concurrently.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []Call) []*Result {
	return e.runBatch(ctx, calls, func(ctx context.Context, call Call) *Result {
		return e.Execute(ctx, call.Name, call.Params)
	})
}

// runBatch numbers the calls in request order before any of them starts.
func (e *Executor) runBatch(ctx context.Context, calls []Call, exec func(context.Context, Call) *Result) []*Result {
	results := make([]*Result, len(calls))
	if e.parallelism <= 1 || len(calls) < 2 {
		for i, call := range calls {
			results[i] = exec(e.withNextSeq(ctx), call)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i, call := range calls {
		callCtx := e.withNextSeq(ctx)
		g.Go(func() error {
			results[i] = exec(callCtx, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func dropNullParams(params map[string]interface{}) map[string]interface{} {
	if len(params) == 0 {
		return params
	}
	cleaned := make(map[string]interface{}, len(params))
	for k, v := range params {
		if v != nil {
			cleaned[k] = v
		}
	}
	return cleaned
}

// normalizeParametersToSchema maps parameter names onto the schema's spelling.
// Models sometimes send camelCase for snake_case properties (or vice versa).
func normalizeParametersToSchema(tool Tool, params map[string]interface{}) map[string]interface{} {
	if len(params) == 0 {
		return params
	}

	schema := tool.InputSchema()
	if schema == nil || schema.Properties == nil {
		return params
	}

	schemaKeys := make(map[string]string)
	for key := range schema.Properties {
		schemaKeys[toLowerUnderscore(key)] = key
	}

	normalized := make(map[string]interface{}, len(params))
	for key, value := range params {
		if schemaKey, exists := schemaKeys[toLowerUnderscore(key)]; exists {
			normalized[schemaKey] = value
		} else {
			normalized[key] = value
		}
	}
	return normalized
}

// toLowerUnderscore converts any naming convention to lowercase with underscores.
func toLowerUnderscore(s string) string {
	var result []rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '_')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}
