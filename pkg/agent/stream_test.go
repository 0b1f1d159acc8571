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
package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/quarrydata/quarry/pkg/shuttle"
	"github.com/quarrydata/quarry/pkg/types"
)

func collect(a *Agent, question string) []Chunk {
	var chunks []Chunk
	for c := range a.Stream(context.Background(), question, nil) {
		chunks = append(chunks, c)
	}
	return chunks
}

func chunkTypes(chunks []Chunk) []ChunkType {
	out := make([]ChunkType, len(chunks))
	for i, c := range chunks {
		out[i] = c.Type
	}
	return out
}

func TestStream_TokensAndTools(t *testing.T) {
	deps := newTestDeps(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	llm := &streamingLLM{newScriptedLLM(
		sqlStep("call_1", "SELECT id FROM users"),
		textStep("There are 3 users."),
	)}
	chunks := collect(New(llm, deps), "How many users?")

	assert.Equal(t, []ChunkType{ChunkTool, ChunkText, ChunkText, ChunkText, ChunkText, ChunkDone}, chunkTypes(chunks))

	tool := chunks[0]
	assert.Equal(t, "Running SQL", tool.ToolLabel)
	assert.Equal(t, ToolTypeSQL, tool.ToolType)
	assert.Equal(t, "SELECT id FROM users", tool.SQLPreview)

	var text strings.Builder
	for _, c := range chunks[1:5] {
		text.WriteString(c.Text)
	}
	assert.Equal(t, "There are 3 users.", text.String())

	done := chunks[len(chunks)-1]
	assert.True(t, done.Done)
	assert.Equal(t, types.FinishStop, done.FinishReason)
	require.NotNil(t, done.Usage)
	assert.Equal(t, 230, done.Usage.TotalTokens)
	require.NotNil(t, done.Response)
	assert.Equal(t, "There are 3 users.", done.Response.Answer)
	assert.Equal(t, "SELECT id FROM users", done.Response.SQL)
}

func TestStream_NonStreamingProviderSendsWholeAnswer(t *testing.T) {
	llm := newScriptedLLM(textStep("Three."))
	chunks := collect(New(llm, newTestDeps(t)), "q")

	require.Equal(t, []ChunkType{ChunkText, ChunkDone}, chunkTypes(chunks))
	assert.Equal(t, "Three.", chunks[0].Text)
}

func TestStream_Thinking(t *testing.T) {
	s := textStep("Three.")
	s.resp.Thinking = "count the rows"
	chunks := collect(New(newScriptedLLM(s), newTestDeps(t)), "q")

	require.Equal(t, []ChunkType{ChunkThinking, ChunkText, ChunkDone}, chunkTypes(chunks))
	assert.Equal(t, "count the rows", chunks[0].Thinking)
}

func TestStream_EarlyBreakStopsIterating(t *testing.T) {
	deps := newTestDeps(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	llm := &streamingLLM{newScriptedLLM(
		sqlStep("call_1", "SELECT id FROM users"),
		textStep("never requested"),
	)}
	var seen []Chunk
	for c := range New(llm, deps).Stream(context.Background(), "q", nil) {
		seen = append(seen, c)
		if c.Type == ChunkTool {
			break
		}
	}

	require.Len(t, seen, 1)
	assert.Equal(t, 1, llm.callCount())
}

func TestStream_EarlyBreakSkipsToolExecution(t *testing.T) {
	deps := newTestDeps(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	plugin := &shuttle.MockTool{MockName: "currency_rates"}
	llm := newScriptedLLM(
		toolStep("call_1", "currency_rates", map[string]interface{}{"input": "EUR"}),
		textStep("never requested"),
	)
	a := New(llm, deps, WithExtraTools(plugin))
	for c := range a.Stream(context.Background(), "q", nil) {
		if c.Type == ChunkTool {
			break
		}
	}

	assert.Equal(t, 0, plugin.ExecuteCount())
	assert.Equal(t, 1, llm.callCount())
}

func TestStream_ErrorThenDone(t *testing.T) {
	llm := newScriptedLLM(errStep(errTransport))
	chunks := collect(New(llm, newTestDeps(t), noRetry()), "q")

	require.Equal(t, []ChunkType{ChunkError, ChunkDone}, chunkTypes(chunks))
	assert.Contains(t, chunks[0].Message, "connection reset by peer")
	assert.Equal(t, types.FinishError, chunks[1].FinishReason)
	assert.Equal(t, types.FinishError, chunks[1].Response.FinishReason)
}

func TestStream_MaxIterationsFallback(t *testing.T) {
	llm := newScriptedLLM(sqlStep("call_1", "SELECT id FROM users"))
	chunks := collect(New(llm, newTestDeps(t), WithMaxIterations(2)), "q")

	require.Equal(t, []ChunkType{ChunkTool, ChunkTool, ChunkText, ChunkDone}, chunkTypes(chunks))
	assert.Contains(t, chunks[2].Text, "The query returned 3 rows")
	assert.Equal(t, types.FinishMaxIterations, chunks[3].FinishReason)
}

func TestDescribeToolCall(t *testing.T) {
	long := "SELECT " + strings.Repeat("x, ", 100) + "y FROM t"
	tests := []struct {
		call    types.ToolCall
		label   string
		kind    string
		preview string
	}{
		{types.ToolCall{Name: "run_sql", Input: map[string]interface{}{"sql": " SELECT 1 "}}, "Running SQL", ToolTypeSQL, "SELECT 1"},
		{types.ToolCall{Name: "introspect_schema", Input: map[string]interface{}{}}, "Listing tables", ToolTypeSchema, ""},
		{types.ToolCall{Name: "introspect_schema", Input: map[string]interface{}{"table_name": "users"}}, "Inspecting table users", ToolTypeSchema, ""},
		{types.ToolCall{Name: "search_knowledge", Input: map[string]interface{}{"query": "revenue"}}, "Searching knowledge: revenue", ToolTypeSearch, ""},
		{types.ToolCall{Name: "save_learning", Input: map[string]interface{}{"title": "Dates"}}, "Saving learning: Dates", ToolTypeKnowledge, ""},
		{types.ToolCall{Name: "custom"}, "Calling custom", ToolTypeOther, ""},
	}
	for _, tt := range tests {
		label, kind, preview := describeToolCall(tt.call)
		assert.Equal(t, tt.label, label)
		assert.Equal(t, tt.kind, kind)
		assert.Equal(t, tt.preview, preview)
	}

	_, _, preview := describeToolCall(types.ToolCall{Name: "run_sql", Input: map[string]interface{}{"sql": long}})
	assert.Equal(t, sqlPreviewLength, len([]rune(preview)))
	assert.True(t, strings.HasSuffix(preview, "..."))
}
