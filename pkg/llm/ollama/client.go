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

// Package ollama talks to a local Ollama server through /api/chat.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quarrydata/quarry/pkg/llm"
	"github.com/quarrydata/quarry/pkg/shuttle"
	"github.com/quarrydata/quarry/pkg/types"
)

// Defaults applied by NewClient.
const (
	DefaultModel    = "qwen3:8b"
	DefaultEndpoint = "http://localhost:11434"
	DefaultTimeout  = 300 * time.Second
)

// Config configures the client.
type Config struct {
	Endpoint    string
	Model       string
	MaxTokens   int
	Temperature *float64

	// ContextWindow sets num_ctx. Ollama defaults to a small window that
	// truncates long schema prompts silently.
	ContextWindow int

	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements types.StreamingLLMProvider.
type Client struct {
	endpoint   string
	model      string
	options    map[string]interface{}
	httpClient *http.Client
}

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	options := map[string]interface{}{}
	if cfg.MaxTokens > 0 {
		options["num_predict"] = cfg.MaxTokens
	}
	if cfg.Temperature != nil {
		options["temperature"] = *cfg.Temperature
	}
	if cfg.ContextWindow > 0 {
		options["num_ctx"] = cfg.ContextWindow
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		options:    options,
		httpClient: httpClient,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "ollama"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// Chat sends the conversation and waits for the complete response.
func (c *Client) Chat(ctx context.Context, messages []types.Message, tools []shuttle.Tool) (*types.LLMResponse, error) {
	httpResp, err := c.do(ctx, messages, tools, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return c.convertResponse(&resp, resp.Message.Content, resp.Message.Thinking, resp.Message.ToolCalls), nil
}

// ChatStream reads the newline-delimited JSON stream, forwarding content
// to tokenCallback.
func (c *Client) ChatStream(ctx context.Context, messages []types.Message, tools []shuttle.Tool,
	tokenCallback types.TokenCallback) (*types.LLMResponse, error) {
	httpResp, err := c.do(ctx, messages, tools, true)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var (
		content  strings.Builder
		thinking strings.Builder
		calls    []toolCall
		last     chatResponse
	)
	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return nil, fmt.Errorf("ollama stream error: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			if tokenCallback != nil {
				tokenCallback(chunk.Message.Content)
			}
		}
		thinking.WriteString(chunk.Message.Thinking)
		calls = append(calls, chunk.Message.ToolCalls...)
		if chunk.Done {
			last = chunk
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := c.convertResponse(&last, content.String(), thinking.String(), calls)
	out.Metadata["streaming"] = true
	return out, nil
}

func (c *Client) do(ctx context.Context, messages []types.Message, tools []shuttle.Tool, stream bool) (*http.Response, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: convertMessages(messages),
		Stream:   stream,
		Tools:    convertTools(tools),
	}
	if len(c.options) > 0 {
		req.Options = c.options
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, llm.NewAPIError(c.Name(), httpResp)
	}
	return httpResp, nil
}

// convertResponse builds the response from the final (or only) chunk.
// Ollama reports done_reason "stop" even when it stopped to call tools.
func (c *Client) convertResponse(final *chatResponse, content, thinking string, calls []toolCall) *types.LLMResponse {
	out := &types.LLMResponse{
		Content:  content,
		Thinking: thinking,
		Usage: types.Usage{
			InputTokens:  final.PromptEvalCount,
			OutputTokens: final.EvalCount,
			TotalTokens:  final.PromptEvalCount + final.EvalCount,
		},
		Metadata: map[string]interface{}{
			"model":       final.Model,
			"done_reason": final.DoneReason,
		},
	}
	for _, tc := range calls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			Name:  tc.Function.Name,
			Input: arguments(tc.Function.Arguments),
		})
	}

	switch {
	case len(out.ToolCalls) > 0:
		out.StopReason = types.StopReasonToolUse
	case final.DoneReason == "length":
		out.StopReason = types.StopReasonMaxTokens
	default:
		out.StopReason = types.StopReasonEndTurn
	}
	return out
}

// arguments accepts both an object and a JSON string; models differ.
func arguments(raw json.RawMessage) map[string]interface{} {
	var asObject map[string]interface{}
	if err := json.Unmarshal(raw, &asObject); err == nil && asObject != nil {
		return asObject
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return llm.ParseArguments(asString)
	}
	return map[string]interface{}{}
}

func convertMessages(messages []types.Message) []message {
	out := make([]message, 0, len(messages))
	for _, msg := range messages {
		m := message{Role: msg.Role, Content: msg.Content}
		switch msg.Role {
		case types.RoleAssistant:
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Input)
				if err != nil || tc.Input == nil {
					args = []byte("{}")
				}
				m.ToolCalls = append(m.ToolCalls, toolCall{Function: functionCall{Name: tc.Name, Arguments: args}})
			}
		case types.RoleTool:
			if msg.ToolResult != nil {
				m.ToolName = toolNameFor(messages, msg.ToolUseID)
			}
		}
		out = append(out, m)
	}
	return out
}

// toolNameFor finds the name of the call a tool message answers; Ollama
// matches results by name rather than by ID.
func toolNameFor(messages []types.Message, callID string) string {
	for _, m := range messages {
		for _, tc := range m.ToolCalls {
			if tc.ID == callID {
				return tc.Name
			}
		}
	}
	return ""
}

func convertTools(tools []shuttle.Tool) []tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]tool, len(tools))
	for i, t := range tools {
		out[i] = tool{
			Type: "function",
			Function: function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  llm.ToolParameters(t),
			},
		}
	}
	return out
}

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Tools    []tool                 `json:"tools,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type tool struct {
	Type     string   `json:"type"`
	Function function `json:"function"`
}

type function struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Thinking  string     `json:"thinking,omitempty"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

type toolCall struct {
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type chatResponse struct {
	Model           string  `json:"model"`
	Message         message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
	Error           string  `json:"error,omitempty"`
}

var _ types.StreamingLLMProvider = (*Client)(nil)
