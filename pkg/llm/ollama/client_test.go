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
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/llm"
	"github.com/quarrydata/quarry/pkg/shuttle"
	"github.com/quarrydata/quarry/pkg/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{Endpoint: srv.URL, Model: "llama-test", ContextWindow: 32768})
}

func TestChat_ToolCalls(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		fmt.Fprint(w, `{
			"model": "llama-test",
			"message": {"role": "assistant", "content": "", "tool_calls": [
				{"function": {"name": "run_sql", "arguments": {"sql": "SELECT 1"}}},
				{"function": {"name": "search_knowledge", "arguments": "{\"query\": \"users\"}"}}
			]},
			"done": true,
			"done_reason": "stop",
			"prompt_eval_count": 80,
			"eval_count": 12
		}`)
	})

	messages := []types.Message{
		types.SystemMessage("sys"),
		types.UserMessage("q"),
		types.AssistantMessage("", []types.ToolCall{{ID: "call_1", Name: "introspect_schema", Input: map[string]interface{}{}}}),
		types.ToolMessage("call_1", shuttle.Success([]string{"users"})),
	}
	resp, err := client.Chat(context.Background(), messages, []shuttle.Tool{&shuttle.MockTool{MockName: "run_sql"}})
	require.NoError(t, err)

	assert.False(t, got.Stream)
	assert.EqualValues(t, 32768, got.Options["num_ctx"])
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "introspect_schema", got.Messages[2].ToolCalls[0].Function.Name)
	assert.Equal(t, "introspect_schema", got.Messages[3].ToolName)
	assert.Equal(t, `["users"]`, got.Messages[3].Content)
	require.Len(t, got.Tools, 1)

	assert.Equal(t, types.StopReasonToolUse, resp.StopReason)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, map[string]interface{}{"sql": "SELECT 1"}, resp.ToolCalls[0].Input)
	assert.Equal(t, map[string]interface{}{"query": "users"}, resp.ToolCalls[1].Input)
	assert.Empty(t, resp.ToolCalls[0].ID)
	assert.Equal(t, 92, resp.Usage.TotalTokens)
}

func TestChat_Length(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"partial"},"done":true,"done_reason":"length"}`)
	})
	resp, err := client.Chat(context.Background(), []types.Message{types.UserMessage("q")}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StopReasonMaxTokens, resp.StopReason)
	assert.Equal(t, "partial", resp.Content)
}

func TestChat_ModelNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model \"llama-test\" not found, try pulling it first"}`)
	})
	_, err := client.Chat(context.Background(), []types.Message{types.UserMessage("q")}, nil)

	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.False(t, apiErr.Retryable())
	assert.Contains(t, apiErr.Message, "try pulling it first")
}

func TestChatStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		lines := []string{
			`{"model":"llama-test","message":{"role":"assistant","content":"","thinking":"hmm"},"done":false}`,
			`{"model":"llama-test","message":{"role":"assistant","content":"Three"},"done":false}`,
			`{"model":"llama-test","message":{"role":"assistant","content":" users."},"done":false}`,
			`{"model":"llama-test","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":30,"eval_count":4}`,
		}
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	})

	var tokens []string
	resp, err := client.ChatStream(context.Background(), []types.Message{types.UserMessage("q")}, nil,
		func(token string) { tokens = append(tokens, token) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Three", " users."}, tokens)
	assert.Equal(t, "Three users.", resp.Content)
	assert.Equal(t, "hmm", resp.Thinking)
	assert.Equal(t, types.StopReasonEndTurn, resp.StopReason)
	assert.Equal(t, 34, resp.Usage.TotalTokens)
	assert.Equal(t, true, resp.Metadata["streaming"])
}

func TestChatStream_ErrorLine(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"out of memory"}`)
	})
	_, err := client.ChatStream(context.Background(), []types.Message{types.UserMessage("q")}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
}
