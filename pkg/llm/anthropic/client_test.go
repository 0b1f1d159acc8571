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
package anthropic

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
	c, err := NewClient(context.Background(), Config{APIKey: "sk-ant-test", Model: "claude-test", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestChat(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "toolu_1", "name": "run_sql", "input": {"sql": "SELECT 1"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 100, "output_tokens": 20}
		}`)
	})

	messages := []types.Message{
		types.SystemMessage("You answer questions."),
		types.UserMessage("How many users?"),
		types.AssistantMessage("", []types.ToolCall{
			{ID: "toolu_a", Name: "run_sql", Input: map[string]interface{}{"sql": "SELECT 1"}},
			{ID: "toolu_b", Name: "search_knowledge", Input: map[string]interface{}{"query": "users"}},
		}),
		types.ToolMessage("toolu_a", shuttle.Success(map[string]interface{}{"row_count": 1})),
		types.ToolMessage("toolu_b", shuttle.Failure("execution_failed", "boom")),
	}
	resp, err := client.Chat(context.Background(), messages, []shuttle.Tool{&shuttle.MockTool{MockName: "run_sql"}})
	require.NoError(t, err)

	assert.Equal(t, "Let me check.", resp.Content)
	assert.Equal(t, types.StopReasonToolUse, resp.StopReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, types.ToolCall{ID: "toolu_1", Name: "run_sql", Input: map[string]interface{}{"sql": "SELECT 1"}}, resp.ToolCalls[0])
	assert.Equal(t, types.Usage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120}, resp.Usage)

	assert.Equal(t, "claude-test", got["model"])
	system := got["system"].([]interface{})
	assert.Equal(t, "You answer questions.", system[0].(map[string]interface{})["text"])

	sent := got["messages"].([]interface{})
	require.Len(t, sent, 3)
	results := sent[2].(map[string]interface{})
	assert.Equal(t, "user", results["role"])
	blocks := results["content"].([]interface{})
	require.Len(t, blocks, 2)
	assert.Equal(t, "tool_result", blocks[0].(map[string]interface{})["type"])
	assert.Equal(t, "toolu_a", blocks[0].(map[string]interface{})["tool_use_id"])
	assert.Equal(t, true, blocks[1].(map[string]interface{})["is_error"])

	tools := got["tools"].([]interface{})
	require.Len(t, tools, 1)
	assert.Equal(t, "run_sql", tools[0].(map[string]interface{})["name"])
}

func TestChat_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{529, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"type":"error","error":{"type":"test_error","message":"try later"}}`)
			})
			_, err := client.Chat(context.Background(), []types.Message{types.UserMessage("hi")}, nil)

			var apiErr *llm.APIError
			require.True(t, errors.As(err, &apiErr), "got %v", err)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "try later", apiErr.Message)
			assert.Equal(t, tt.retryable, apiErr.Retryable())
		})
	}
}

func TestChat_NoMessages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := client.Chat(context.Background(), []types.Message{types.SystemMessage("only system")}, nil)
	require.Error(t, err)
}

func TestChatStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_2","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"usage":{"input_tokens":40,"output_tokens":1}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Checking "}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"now."}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_9","name":"run_sql","input":{}}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"sql\": \"SELE"}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"CT 1\"}"}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":1}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":12}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, e := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.name, e.data)
		}
	})

	var tokens []string
	resp, err := client.ChatStream(context.Background(), []types.Message{types.UserMessage("q")}, nil,
		func(token string) { tokens = append(tokens, token) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Checking ", "now."}, tokens)
	assert.Equal(t, "Checking now.", resp.Content)
	assert.Equal(t, types.StopReasonToolUse, resp.StopReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_9", resp.ToolCalls[0].ID)
	assert.Equal(t, map[string]interface{}{"sql": "SELECT 1"}, resp.ToolCalls[0].Input)
	assert.Equal(t, types.Usage{InputTokens: 40, OutputTokens: 12, TotalTokens: 52}, resp.Usage)
}

func TestConvertMessages(t *testing.T) {
	system, out := convertMessages([]types.Message{
		types.SystemMessage("a"),
		types.SystemMessage("b"),
		types.UserMessage(""),
		types.UserMessage("q"),
	})
	assert.Equal(t, "a\n\nb", system)
	assert.Len(t, out, 1)
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(context.Background(), Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())
	assert.Equal(t, DefaultModel, c.Model())

	c, err = NewClient(context.Background(), Config{Bedrock: &BedrockConfig{
		Region:          "eu-west-1",
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
	}})
	require.NoError(t, err)
	assert.Equal(t, "bedrock", c.Name())
	assert.Equal(t, DefaultBedrockModel, c.Model())
}
