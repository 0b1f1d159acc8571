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

// Package openai talks to the OpenAI chat completions API and to servers
// that implement the same protocol (vLLM, LM Studio, llama.cpp, LiteLLM).
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/quarrydata/quarry/pkg/llm"
	"github.com/quarrydata/quarry/pkg/shuttle"
	"github.com/quarrydata/quarry/pkg/types"
)

// Defaults applied by NewClient.
const (
	DefaultModel     = "gpt-4.1"
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 4096
)

// Config configures the client.
type Config struct {
	APIKey string
	Model  string

	// BaseURL is the API root; /chat/completions is appended.
	BaseURL string

	MaxTokens int

	// Temperature is sent only when set; some reasoning models reject it.
	Temperature *float64

	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements types.StreamingLLMProvider.
type Client struct {
	apiKey      string
	model       string
	endpoint    string
	maxTokens   int
	temperature *float64
	httpClient  *http.Client
}

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  httpClient,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "openai"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// Chat sends the conversation and waits for the complete response.
func (c *Client) Chat(ctx context.Context, messages []types.Message, tools []shuttle.Tool) (*types.LLMResponse, error) {
	httpResp, err := c.do(ctx, c.buildRequest(messages, tools, false))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}

	choice := resp.Choices[0]
	out := &types.LLMResponse{
		StopReason: stopReason(choice.FinishReason),
		Thinking:   choice.Message.ReasoningContent,
		Usage: types.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Metadata: map[string]interface{}{
			"model":         resp.Model,
			"finish_reason": choice.FinishReason,
		},
	}
	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: llm.ParseArguments(tc.Function.Arguments),
		})
	}
	return out, nil
}

// ChatStream sends the conversation with stream=true and forwards content
// deltas to tokenCallback as the server-sent events arrive.
func (c *Client) ChatStream(ctx context.Context, messages []types.Message, tools []shuttle.Tool,
	tokenCallback types.TokenCallback) (*types.LLMResponse, error) {
	httpResp, err := c.do(ctx, c.buildRequest(messages, tools, true))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var (
		content  strings.Builder
		thinking strings.Builder
		finish   string
		model    string
		u        types.Usage
	)
	calls := map[int]*toolCall{}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			u = types.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content != "" {
				content.WriteString(ch.Delta.Content)
				if tokenCallback != nil {
					tokenCallback(ch.Delta.Content)
				}
			}
			thinking.WriteString(ch.Delta.ReasoningContent)
			for _, d := range ch.Delta.ToolCalls {
				tc, ok := calls[d.Index]
				if !ok {
					tc = &toolCall{Type: "function"}
					calls[d.Index] = tc
				}
				if d.ID != "" {
					tc.ID = d.ID
				}
				if d.Function.Name != "" {
					tc.Function.Name = d.Function.Name
				}
				tc.Function.Arguments += d.Function.Arguments
			}
			if ch.FinishReason != nil && *ch.FinishReason != "" {
				finish = *ch.FinishReason
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := &types.LLMResponse{
		Content:    content.String(),
		Thinking:   thinking.String(),
		StopReason: stopReason(finish),
		Usage:      u,
		Metadata: map[string]interface{}{
			"model":         model,
			"finish_reason": finish,
			"streaming":     true,
		},
	}
	for _, i := range indexes {
		tc := calls[i]
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: llm.ParseArguments(tc.Function.Arguments),
		})
	}
	return out, nil
}

func (c *Client) buildRequest(messages []types.Message, tools []shuttle.Tool, stream bool) *chatRequest {
	req := &chatRequest{
		Model:       c.model,
		Messages:    convertMessages(messages),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if len(tools) > 0 {
		req.Tools = convertTools(tools)
		req.ToolChoice = "auto"
	}
	if stream {
		req.Stream = true
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return req
}

// do posts req and returns the response when the status is 200.
func (c *Client) do(ctx context.Context, req *chatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

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

func convertMessages(messages []types.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem, types.RoleUser:
			out = append(out, chatMessage{Role: msg.Role, Content: ptr(msg.Content)})

		case types.RoleAssistant:
			m := chatMessage{Role: types.RoleAssistant}
			if msg.Content != "" || len(msg.ToolCalls) == 0 {
				m.Content = ptr(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Input)
				if err != nil || tc.Input == nil {
					args = []byte("{}")
				}
				m.ToolCalls = append(m.ToolCalls, toolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: functionCall{Name: tc.Name, Arguments: string(args)},
				})
			}
			out = append(out, m)

		case types.RoleTool:
			out = append(out, chatMessage{
				Role:       types.RoleTool,
				Content:    ptr(msg.Content),
				ToolCallID: msg.ToolUseID,
			})
		}
	}
	return out
}

func convertTools(tools []shuttle.Tool) []tool {
	out := make([]tool, len(tools))
	for i, t := range tools {
		out[i] = tool{
			Type: "function",
			Function: functionDef{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  llm.ToolParameters(t),
			},
		}
	}
	return out
}

// stopReason maps finish_reason onto the normalized stop reasons.
func stopReason(finish string) string {
	switch finish {
	case "stop":
		return types.StopReasonEndTurn
	case "length":
		return types.StopReasonMaxTokens
	case "tool_calls", "function_call":
		return types.StopReasonToolUse
	default:
		return finish
	}
}

func ptr(s string) *string {
	return &s
}

var _ types.StreamingLLMProvider = (*Client)(nil)
