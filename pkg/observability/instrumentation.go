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

// Span names.
const (
	SpanAgentRun       = "agent.run"
	SpanAgentIteration = "agent.iteration"
	SpanContextBuild   = "agent.context_build"

	SpanLLMCompletion = "llm.completion"

	SpanToolExecute = "tool.execute"

	SpanBackendQuery  = "backend.query"
	SpanBackendSchema = "backend.schema"
	SpanBackendList   = "backend.list"

	SpanKnowledgeSearch = "knowledge.search"
)

// Metric names.
const (
	MetricAgentRuns        = "agent.runs.total"
	MetricAgentIterations  = "agent.iterations.total"
	MetricLLMCalls         = "llm.calls.total"
	MetricLLMErrors        = "llm.errors.total"
	MetricLLMTokensInput   = "llm.tokens.input"  // #nosec G101 -- metric name
	MetricLLMTokensOutput  = "llm.tokens.output" // #nosec G101 -- metric name
	MetricToolExecutions   = "tool.executions.total"
	MetricToolErrors       = "tool.errors.total"
	MetricBackendQueries   = "backend.queries.total"
	MetricBackendErrors    = "backend.errors.total"
	MetricBackendDuration  = "backend.query.duration"
	MetricBackendRows      = "backend.query.rows"
	MetricLearningsCreated = "learning.created.total"
)

// Attribute names.
const (
	AttrQuestion   = "agent.question"
	AttrIteration  = "agent.iteration"
	AttrFinish     = "agent.finish_reason"
	AttrConnection = "db.connection"

	AttrLLMProvider  = "llm.provider"
	AttrLLMModel     = "llm.model"
	AttrLLMStreaming = "llm.streaming"
	AttrLLMStop      = "llm.stop_reason"

	AttrToolName    = "tool.name"
	AttrToolSuccess = "tool.success"

	AttrBackendType = "backend.type"

	AttrErrorMessage = "error.message"
)
