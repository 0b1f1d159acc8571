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

// Package agent runs the question-answering loop: the model is called with
// the conversation and the tool schemas, requested tools are executed and
// their results appended, until the model answers in plain text or the
// iteration limit is reached.
//
//	a := agent.New(provider, deps, agent.WithContextBuilder(builder))
//	resp, err := a.Run(ctx, "How many users signed up this week?", nil)
//
// Stream does the same and yields chunks as the answer is produced.
package agent

import (
	"context"
	"iter"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/contextbuilder"
	"github.com/quarrydata/quarry/pkg/observability"
	"github.com/quarrydata/quarry/pkg/shuttle"
	"github.com/quarrydata/quarry/pkg/shuttle/builtin"
	"github.com/quarrydata/quarry/pkg/types"
)

// Defaults applied by New.
const (
	DefaultMaxIterations   = 10
	DefaultHistoryLength   = 10
	DefaultToolParallelism = 4
)

// ContextBuilder assembles the knowledge appended to the system prompt.
// *contextbuilder.Builder implements it.
type ContextBuilder interface {
	Build(ctx context.Context, question, connection string) (*contextbuilder.Context, error)
	BuildMinimal(ctx context.Context, connection string) (*contextbuilder.Context, error)
}

// Agent answers questions with an LLM and the built-in database tools.
// It holds no per-question state and is safe for concurrent use.
type Agent struct {
	llm  types.LLMProvider
	deps builtin.Deps

	contextBuilder  ContextBuilder
	minimalContext  bool
	systemPrompt    string
	maxIterations   int
	maxOutputTokens int
	historyLength   int
	toolParallelism int
	retry           RetryConfig
	tracer          observability.Tracer
	extraTools      []shuttle.Tool
	plugins         *shuttle.Plugins
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxIterations bounds the number of LLM calls per question.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithMaxOutputTokens sets the provider's output limit. Responses that use
// all of it are reported as truncated, whatever stop reason the provider
// gives.
func WithMaxOutputTokens(n int) Option {
	return func(a *Agent) { a.maxOutputTokens = n }
}

// WithHistoryLength caps how many earlier turns are replayed.
func WithHistoryLength(n int) Option {
	return func(a *Agent) {
		if n >= 0 {
			a.historyLength = n
		}
	}
}

// WithContextBuilder appends assembled schema and knowledge to the system
// prompt.
func WithContextBuilder(b ContextBuilder) Option {
	return func(a *Agent) { a.contextBuilder = b }
}

// WithMinimalContext uses only the schema and rules sections.
func WithMinimalContext(minimal bool) Option {
	return func(a *Agent) { a.minimalContext = minimal }
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		if strings.TrimSpace(prompt) != "" {
			a.systemPrompt = prompt
		}
	}
}

// WithTracer sets the tracer for runs, iterations, LLM calls and tools.
func WithTracer(tracer observability.Tracer) Option {
	return func(a *Agent) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

// WithRetry configures LLM call retries.
func WithRetry(cfg RetryConfig) Option {
	return func(a *Agent) { a.retry = cfg.withDefaults() }
}

// WithToolParallelism sets how many tool calls of one response run at once.
func WithToolParallelism(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.toolParallelism = n
		}
	}
}

// WithExtraTools adds tools next to the built-ins. The same instances serve
// every question, so they must not keep per-question state.
func WithExtraTools(tools ...shuttle.Tool) Option {
	return func(a *Agent) { a.extraTools = append(a.extraTools, tools...) }
}

// WithPlugins registers a fresh instance of every plugin for each question.
func WithPlugins(p *shuttle.Plugins) Option {
	return func(a *Agent) { a.plugins = p }
}

// New creates an agent.
func New(llm types.LLMProvider, deps builtin.Deps, opts ...Option) *Agent {
	a := &Agent{
		llm:             llm,
		deps:            deps,
		systemPrompt:    DefaultSystemPrompt,
		maxIterations:   DefaultMaxIterations,
		historyLength:   DefaultHistoryLength,
		toolParallelism: DefaultToolParallelism,
		retry:           DefaultRetryConfig(),
		tracer:          observability.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider returns the LLM provider.
func (a *Agent) Provider() types.LLMProvider {
	return a.llm
}

// Run answers question and returns the complete response. When the loop
// fails the returned Response still carries the error text as Answer, the
// SQL and rows gathered so far and the usage; the error is returned too.
func (a *Agent) Run(ctx context.Context, question string, history []HistoryMessage) (*Response, error) {
	return a.run(ctx, question, history, nil)
}

// Stream answers question, yielding chunks as they are produced and a done
// chunk last. Breaking out of the range loop stops the run after the
// current LLM call or tool batch; no further iterations start.
func (a *Agent) Stream(ctx context.Context, question string, history []HistoryMessage) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		sink := &chunkSink{yield: yield}
		resp, err := a.run(ctx, question, history, sink)
		if err != nil && !sink.send(Chunk{Type: ChunkError, Message: err.Error()}) {
			return
		}
		usage := resp.Usage
		sink.send(Chunk{
			Type:         ChunkDone,
			Done:         true,
			FinishReason: resp.FinishReason,
			Usage:        &usage,
			Truncated:    resp.Truncated,
			Response:     resp,
		})
	}
}

// chunkSink forwards chunks to a range-over-func body and remembers when
// the body stopped ranging. Tokens may arrive from a provider goroutine.
type chunkSink struct {
	mu      sync.Mutex
	yield   func(Chunk) bool
	stopped bool
}

func (s *chunkSink) send(c Chunk) bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if !s.yield(c) {
		s.stopped = true
	}
	return !s.stopped
}

func (s *chunkSink) done() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (a *Agent) run(ctx context.Context, question string, history []HistoryMessage, sink *chunkSink) (*Response, error) {
	ctx, span := a.tracer.StartSpan(ctx, observability.SpanAgentRun,
		observability.WithSpanKind("agent"),
		observability.WithAttribute(observability.AttrQuestion, question),
	)
	defer a.tracer.EndSpan(span)
	a.tracer.RecordMetric(observability.MetricAgentRuns, 1, nil)

	toolset := builtin.NewToolset(a.deps, question)
	for _, tool := range a.extraTools {
		toolset.Registry.Register(tool)
	}
	if err := a.plugins.RegisterInto(toolset.Registry); err != nil {
		zap.L().Warn("plugin not registered", zap.Error(err))
	}
	base := shuttle.NewExecutor(toolset.Registry)
	base.SetParallelism(a.toolParallelism)
	executor := shuttle.NewInstrumentedExecutor(base, a.tracer)
	tools := toolset.Registry.ListTools()

	messages := BuildMessages(a.systemMessage(ctx, question), history, question, a.historyLength)

	var onToken types.TokenCallback
	if sink != nil {
		onToken = func(token string) { sink.send(Chunk{Type: ChunkText, Text: token}) }
	}
	_, streams := a.llm.(types.StreamingLLMProvider)
	streamsText := streams && onToken != nil

	resp := &Response{}
	lastTool := ""
	for i := 0; i < a.maxIterations; i++ {
		if sink.done() {
			resp.FinishReason = types.FinishStop
			return a.finish(span, resp, toolset), nil
		}

		iterCtx, iterSpan := a.tracer.StartSpan(ctx, observability.SpanAgentIteration,
			observability.WithAttribute(observability.AttrIteration, i+1))
		a.tracer.RecordMetric(observability.MetricAgentIterations, 1, nil)

		llmResp, err := a.chat(iterCtx, messages, tools, onToken)
		if err != nil {
			iterSpan.RecordError(err)
			a.tracer.EndSpan(iterSpan)
			return a.fail(span, resp, toolset, err)
		}
		resp.Usage.Add(llmResp.Usage)
		if llmResp.Thinking != "" {
			sink.send(Chunk{Type: ChunkThinking, Thinking: llmResp.Thinking})
		}

		it := Iteration{Index: i, AssistantText: llmResp.Content, Usage: llmResp.Usage}
		truncated := a.truncated(llmResp)

		if len(llmResp.ToolCalls) == 0 {
			it.FinishReason = types.FinishStop
			if truncated {
				it.FinishReason = types.FinishLength
			}
			iterSpan.SetAttribute(observability.AttrFinish, string(it.FinishReason))
			a.tracer.EndSpan(iterSpan)

			resp.Iterations = append(resp.Iterations, it)
			resp.Answer = llmResp.Content
			resp.FinishReason = it.FinishReason
			resp.Truncated = truncated
			if !streamsText {
				sink.send(Chunk{Type: ChunkText, Text: llmResp.Content})
			}
			return a.finish(span, resp, toolset), nil
		}

		calls := withCallIDs(llmResp.ToolCalls)
		it.ToolCalls = calls
		it.FinishReason = types.FinishToolCalls
		if truncated {
			iterSpan.AddEvent("truncated_tool_calls", nil)
		}
		messages = append(messages, types.AssistantMessage(llmResp.Content, calls))

		batch := make([]shuttle.Call, len(calls))
		for j, call := range calls {
			batch[j] = shuttle.Call{Name: call.Name, Params: call.Input}
			label, kind, preview := describeToolCall(call)
			sink.send(Chunk{Type: ChunkTool, ToolLabel: label, ToolType: kind, SQLPreview: preview})
		}
		if sink.done() {
			// Nobody is listening for the results.
			resp.Iterations = append(resp.Iterations, it)
			resp.FinishReason = types.FinishStop
			a.tracer.EndSpan(iterSpan)
			return a.finish(span, resp, toolset), nil
		}
		results := executor.ExecuteBatch(iterCtx, batch)
		for j, call := range calls {
			messages = append(messages, types.ToolMessage(call.ID, results[j]))
			if results[j].Success {
				lastTool = call.Name
			}
		}
		it.ToolResults = results
		resp.ToolCalls = append(resp.ToolCalls, calls...)
		resp.Iterations = append(resp.Iterations, it)

		iterSpan.SetAttribute(observability.AttrFinish, string(it.FinishReason))
		iterSpan.SetAttribute("agent.tool_calls", len(calls))
		a.tracer.EndSpan(iterSpan)
	}

	resp.FinishReason = types.FinishMaxIterations
	resp.Answer = fallbackAnswer(lastTool, toolset.State.LastResult())
	sink.send(Chunk{Type: ChunkText, Text: resp.Answer})
	zap.L().Warn("iteration limit reached",
		zap.Int("max_iterations", a.maxIterations),
		zap.String("last_tool", lastTool),
	)
	return a.finish(span, resp, toolset), nil
}

// systemMessage renders the system prompt plus assembled context. A
// context failure is logged and the bare prompt used.
func (a *Agent) systemMessage(ctx context.Context, question string) string {
	if a.contextBuilder == nil {
		return a.systemPrompt
	}
	connection := a.deps.Settings.DefaultConnection

	var (
		built *contextbuilder.Context
		err   error
	)
	if a.minimalContext {
		built, err = a.contextBuilder.BuildMinimal(ctx, connection)
	} else {
		built, err = a.contextBuilder.Build(ctx, question, connection)
	}
	if err != nil {
		zap.L().Warn("failed to build context, continuing without it", zap.Error(err))
		return a.systemPrompt
	}
	return systemContent(a.systemPrompt, built.String())
}

// truncated reports whether the response used the whole output budget.
// Some providers report a normal stop even then.
func (a *Agent) truncated(resp *types.LLMResponse) bool {
	switch resp.StopReason {
	case types.StopReasonMaxTokens, "length":
		return true
	}
	return a.maxOutputTokens > 0 && resp.Usage.OutputTokens >= a.maxOutputTokens
}

// finish copies the run state into resp and closes the run span.
func (a *Agent) finish(span *observability.Span, resp *Response, toolset *builtin.Toolset) *Response {
	resp.SQL = toolset.State.LastSQL()
	if result := toolset.State.LastResult(); result != nil {
		resp.Results = result.Rows
		resp.TotalRows = result.TotalRows
	}
	resp.Queries = toolset.State.Queries()

	span.SetAttribute(observability.AttrFinish, string(resp.FinishReason))
	span.SetAttribute("agent.iterations", len(resp.Iterations))
	span.SetAttribute("agent.truncated", resp.Truncated)
	if resp.Error == "" {
		span.SetStatus(observability.StatusOK, "")
	}

	zap.L().Info("question answered",
		zap.String("finish_reason", string(resp.FinishReason)),
		zap.Int("iterations", len(resp.Iterations)),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Bool("truncated", resp.Truncated),
	)
	return resp
}

// fail ends the run with err, keeping everything gathered so far.
func (a *Agent) fail(span *observability.Span, resp *Response, toolset *builtin.Toolset, err error) (*Response, error) {
	resp.Error = err.Error()
	resp.Answer = "Error: " + err.Error()
	resp.FinishReason = types.FinishError
	span.RecordError(err)
	zap.L().Error("agent run failed", zap.Error(err))
	return a.finish(span, resp, toolset), err
}

func withCallIDs(calls []types.ToolCall) []types.ToolCall {
	out := make([]types.ToolCall, len(calls))
	for i, call := range calls {
		if call.ID == "" {
			call.ID = types.NewToolCallID()
		}
		if call.Input == nil {
			call.Input = map[string]interface{}{}
		}
		out[i] = call
	}
	return out
}
