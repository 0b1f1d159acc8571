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
	"github.com/quarrydata/quarry/pkg/shuttle"
	"github.com/quarrydata/quarry/pkg/shuttle/builtin"
	"github.com/quarrydata/quarry/pkg/types"
)

// HistoryMessage is one earlier turn supplied by the caller. Only user and
// assistant turns are replayed; tool traffic from earlier questions is not.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Iteration records one LLM call and the tools it requested.
type Iteration struct {
	Index         int                `json:"index"`
	AssistantText string             `json:"assistant_text,omitempty"`
	ToolCalls     []types.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults   []*shuttle.Result  `json:"-"`
	FinishReason  types.FinishReason `json:"finish_reason"`
	Usage         types.Usage        `json:"usage"`
}

// Response is the outcome of one question. It is not modified after Run or
// Stream hands it out.
type Response struct {
	// Answer is the model's final text, a fallback answer when the loop ran
	// out of iterations, or "Error: <message>" when it failed.
	Answer string `json:"answer"`

	// SQL is the last-requested query that ran successfully.
	SQL string `json:"sql,omitempty"`

	// Results holds the rows of SQL, hidden columns removed.
	Results []map[string]interface{} `json:"results,omitempty"`

	// TotalRows counts every row SQL matched, including rows beyond the cap.
	TotalRows int `json:"total_rows,omitempty"`

	// Queries lists every run_sql call in the order the model requested
	// them, failures included.
	Queries []builtin.QueryRecord `json:"queries,omitempty"`

	ToolCalls  []types.ToolCall `json:"tool_calls,omitempty"`
	Iterations []Iteration      `json:"iterations,omitempty"`

	// Error is set when the loop aborted, for example on a provider failure.
	Error string `json:"error,omitempty"`

	Usage        types.Usage        `json:"usage"`
	FinishReason types.FinishReason `json:"finish_reason"`

	// Truncated reports that the final answer hit the output token limit.
	Truncated bool `json:"truncated,omitempty"`
}

// ChunkType identifies a streamed Chunk.
type ChunkType string

const (
	ChunkThinking ChunkType = "thinking"
	ChunkText     ChunkType = "text"
	ChunkTool     ChunkType = "tool"
	ChunkError    ChunkType = "error"
	ChunkDone     ChunkType = "done"
)

// Tool kinds reported in tool chunks.
const (
	ToolTypeSQL       = "sql"
	ToolTypeSchema    = "schema"
	ToolTypeSearch    = "search"
	ToolTypeKnowledge = "knowledge"
	ToolTypeOther     = "other"
)

// Chunk is one event of a streamed answer. Only the fields of its Type are
// set.
type Chunk struct {
	Type ChunkType `json:"type"`

	Thinking string `json:"thinking,omitempty"`
	Text     string `json:"text,omitempty"`

	ToolLabel  string `json:"tool_label,omitempty"`
	ToolType   string `json:"tool_type,omitempty"`
	SQLPreview string `json:"sql_preview,omitempty"`

	// Message carries the error text of an error chunk.
	Message string `json:"message,omitempty"`

	// Done chunk fields.
	Done         bool               `json:"done,omitempty"`
	FinishReason types.FinishReason `json:"finish_reason,omitempty"`
	Usage        *types.Usage       `json:"usage,omitempty"`
	Truncated    bool               `json:"truncated,omitempty"`

	// Response is the complete result, attached to the done chunk.
	Response *Response `json:"-"`
}
