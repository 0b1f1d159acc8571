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

// Package types holds the provider-agnostic conversation model shared by the
// agent loop and the LLM adapters.
package types

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/quarrydata/quarry/pkg/shuttle"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	// ID is the provider-assigned identifier, or a generated one when the
	// provider does not assign any.
	ID string `json:"id"`

	// Name must match a registered tool.
	Name string `json:"name"`

	// Input is loosely typed; tools validate their own arguments.
	Input map[string]interface{} `json:"input"`
}

// NewToolCallID generates an identifier for providers that omit one.
func NewToolCallID() string {
	return "call_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}

// Message is one turn in the conversation sent to the LLM.
type Message struct {
	// Role is one of RoleSystem, RoleUser, RoleAssistant or RoleTool.
	Role string

	// Content is empty for assistant messages that only carry tool calls.
	Content string

	// ToolCalls is set on assistant messages only.
	ToolCalls []ToolCall

	// ToolUseID references the ToolCall this tool message answers.
	ToolUseID string

	// ToolResult keeps the structured result behind Content for tool messages.
	ToolResult *shuttle.Result
}

// SystemMessage builds a system turn.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant turn, optionally carrying tool calls.
func AssistantMessage(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage builds the tool turn answering call.
func ToolMessage(callID string, result *shuttle.Result) Message {
	return Message{
		Role:       RoleTool,
		Content:    result.Content(),
		ToolUseID:  callID,
		ToolResult: result,
	}
}

// Usage tracks token usage and cost.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CostUSD += other.CostUSD
}

// Provider stop reasons normalized by the adapters.
const (
	StopReasonEndTurn   = "end_turn"
	StopReasonToolUse   = "tool_use"
	StopReasonMaxTokens = "max_tokens"
)

// LLMResponse is a single completion returned by a provider.
type LLMResponse struct {
	Content string

	ToolCalls []ToolCall

	// StopReason is normalized to the StopReason* constants where the
	// provider's value has an equivalent.
	StopReason string

	Usage Usage

	Metadata map[string]interface{}

	// Thinking holds reasoning text for models that expose it.
	Thinking string
}

// LLMProvider sends messages plus tool schemas and returns text and/or tool calls.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, tools []shuttle.Tool) (*LLMResponse, error)

	// Name returns the provider name (e.g., "anthropic", "openai").
	Name() string

	// Model returns the model identifier.
	Model() string
}

// TokenCallback receives text tokens as they arrive from a streaming provider.
type TokenCallback func(token string)

// StreamingLLMProvider is implemented by providers that can stream tokens.
type StreamingLLMProvider interface {
	LLMProvider

	ChatStream(ctx context.Context, messages []Message, tools []shuttle.Tool,
		tokenCallback TokenCallback) (*LLMResponse, error)
}

// SupportsStreaming reports whether provider implements StreamingLLMProvider.
func SupportsStreaming(provider LLMProvider) bool {
	_, ok := provider.(StreamingLLMProvider)
	return ok
}

// FinishReason classifies why a loop iteration or a whole run ended.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishError         FinishReason = "error"
	FinishMaxIterations FinishReason = "max_iterations"
)
