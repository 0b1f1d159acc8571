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
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/fabric"
	"github.com/quarrydata/quarry/pkg/shuttle"
	"github.com/quarrydata/quarry/pkg/shuttle/builtin"
	"github.com/quarrydata/quarry/pkg/types"
)

type step struct {
	resp *types.LLMResponse
	err  error
}

// scriptedLLM replays steps in order and repeats the last one when the
// script runs out.
type scriptedLLM struct {
	mu    sync.Mutex
	steps []step
	calls [][]types.Message
	tools [][]string
}

func newScriptedLLM(steps ...step) *scriptedLLM {
	return &scriptedLLM{steps: steps}
}

func (m *scriptedLLM) next(messages []types.Message, tools []shuttle.Tool) step {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]types.Message, len(messages))
	copy(snapshot, messages)
	m.calls = append(m.calls, snapshot)
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name()
	}
	m.tools = append(m.tools, names)

	i := len(m.calls) - 1
	if i >= len(m.steps) {
		i = len(m.steps) - 1
	}
	return m.steps[i]
}

func (m *scriptedLLM) Chat(ctx context.Context, messages []types.Message, tools []shuttle.Tool) (*types.LLMResponse, error) {
	s := m.next(messages, tools)
	return s.resp, s.err
}

func (m *scriptedLLM) Name() string  { return "mock" }
func (m *scriptedLLM) Model() string { return "mock-1" }

func (m *scriptedLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *scriptedLLM) call(i int) []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

// streamingLLM streams the content of text responses word by word.
type streamingLLM struct {
	*scriptedLLM
}

func (m *streamingLLM) ChatStream(ctx context.Context, messages []types.Message, tools []shuttle.Tool,
	tokenCallback types.TokenCallback) (*types.LLMResponse, error) {
	s := m.next(messages, tools)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.resp.ToolCalls) == 0 {
		for _, word := range strings.SplitAfter(s.resp.Content, " ") {
			tokenCallback(word)
		}
	}
	return s.resp, nil
}

type permanentError struct{ msg string }

func (e *permanentError) Error() string   { return e.msg }
func (e *permanentError) Retryable() bool { return false }

func textStep(content string) step {
	return step{resp: &types.LLMResponse{
		Content:    content,
		StopReason: types.StopReasonEndTurn,
		Usage:      types.Usage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120},
	}}
}

func toolStep(id, name string, input map[string]interface{}) step {
	return step{resp: &types.LLMResponse{
		ToolCalls:  []types.ToolCall{{ID: id, Name: name, Input: input}},
		StopReason: types.StopReasonToolUse,
		Usage:      types.Usage{InputTokens: 100, OutputTokens: 10, TotalTokens: 110},
	}}
}

func errStep(err error) step {
	return step{err: err}
}

func sqlStep(id, sql string) step {
	return toolStep(id, builtin.ToolRunSQL, map[string]interface{}{"sql": sql})
}

var errTransport = errors.New("connection reset by peer")

func newTestDeps(t *testing.T) builtin.Deps {
	t.Helper()
	ctx := context.Background()
	backend, err := fabric.OpenSQL(ctx, fabric.SQLConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	_, err = backend.DB().Exec(`
		CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL);
		INSERT INTO users (id, email) VALUES (1, 'a@example.com'), (2, 'b@example.com'), (3, 'c@example.com');
	`)
	require.NoError(t, err)

	return builtin.Deps{
		Connections: fabric.NewConnections(&fabric.Connection{Name: "main", Backend: backend}),
	}
}

func noRetry() Option {
	return WithRetry(RetryConfig{Attempts: 1})
}
