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
package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/fabric"
	"github.com/quarrydata/quarry/pkg/knowledge"
)

func TestRunSQL_Success(t *testing.T) {
	f := newFixture(t, Settings{})
	ts := NewToolset(f.deps, "list users")

	result := execute(t, ts, ToolRunSQL, map[string]interface{}{"sql": "SELECT * FROM users ORDER BY id"})
	data := dataMap(t, result)

	assert.Equal(t, 3, data["row_count"])
	assert.Equal(t, 3, data["total_rows"])
	assert.Equal(t, false, data["truncated"])

	rows := data["rows"].([]map[string]interface{})
	require.Len(t, rows, 3)
	assert.Contains(t, rows[0], "email")
	assert.NotContains(t, rows[0], "password_hash")

	assert.Equal(t, "SELECT * FROM users ORDER BY id", ts.State.LastSQL())
	require.NotNil(t, ts.State.LastResult())
	assert.NotContains(t, ts.State.LastResult().Rows[0], "password_hash")
	queries := ts.State.Queries()
	require.Len(t, queries, 1)
	assert.True(t, queries[0].Success)
	assert.Equal(t, "main", queries[0].Connection)
}

func TestRunSQL_CapsRows(t *testing.T) {
	f := newFixture(t, Settings{MaxRows: 2})
	ts := NewToolset(f.deps, "")

	data := dataMap(t, execute(t, ts, ToolRunSQL, map[string]interface{}{"sql": "SELECT id FROM users"}))
	assert.Equal(t, 2, data["row_count"])
	assert.Equal(t, 3, data["total_rows"])
	assert.Equal(t, true, data["truncated"])
}

func TestRunSQL_DeniedTableNeverReachesDatabase(t *testing.T) {
	f := newFixture(t, Settings{})
	ts := NewToolset(f.deps, "what are the secrets?")

	result := execute(t, ts, ToolRunSQL, map[string]interface{}{"sql": "SELECT * FROM secrets"})
	require.False(t, result.Success)
	assert.Equal(t, CodeAccessDenied, result.Error.Code)
	assert.Contains(t, result.Error.Message, "Access denied")
	assert.Contains(t, result.Error.Message, "secrets")
	assert.Contains(t, result.Content(), "Error: Access denied")

	assert.Zero(t, f.backend.queries.Load())
	assert.Empty(t, ts.State.Queries())
}

func TestRunSQL_HiddenColumnByNameIsRejected(t *testing.T) {
	f := newFixture(t, Settings{})
	ts := NewToolset(f.deps, "show password hashes")

	result := execute(t, ts, ToolRunSQL, map[string]interface{}{"sql": "SELECT email, password_hash AS h FROM users"})
	require.False(t, result.Success)
	assert.Equal(t, CodeAccessDenied, result.Error.Code)
	assert.Equal(t, "password_hash", result.Error.Details["column"])
	assert.Equal(t, "users", result.Error.Details["table"])
	assert.Contains(t, result.Error.Message, "password_hash")

	assert.Zero(t, f.backend.queries.Load())
	assert.Empty(t, ts.State.Queries())
}

func TestRunSQL_ValidationFailures(t *testing.T) {
	f := newFixture(t, Settings{})
	ts := NewToolset(f.deps, "")

	tests := []struct {
		name string
		sql  string
		want string
	}{
		{"statement type", "DROP TABLE users", "Only SELECT and WITH statements are allowed."},
		{"keyword", "SELECT * FROM users; DELETE FROM users", "DELETE"},
		{"multiple statements", "SELECT 1; SELECT 2;", "Multiple statements are not allowed."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := execute(t, ts, ToolRunSQL, map[string]interface{}{"sql": tt.sql})
			require.False(t, result.Success)
			assert.Equal(t, CodeValidationFailed, result.Error.Code)
			assert.Contains(t, result.Error.Message, tt.want)
		})
	}
	assert.Zero(t, f.backend.queries.Load())
}

func TestRunSQL_UnknownConnection(t *testing.T) {
	f := newFixture(t, Settings{})
	ts := NewToolset(f.deps, "")

	result := execute(t, ts, ToolRunSQL, map[string]interface{}{"sql": "SELECT 1", "connection": "warehouse"})
	require.False(t, result.Success)
	assert.Equal(t, CodeUnknownConnection, result.Error.Code)
	assert.Contains(t, result.Error.Message, "main")
}

func TestRunSQL_ExecutionFailureLearnsOnce(t *testing.T) {
	f := newFixture(t, Settings{LearningEnabled: true})
	ctx := context.Background()
	failing := map[string]interface{}{"sql": "SELECT * FROM signups"}

	first := NewToolset(f.deps, "How many signups this week?")
	result := execute(t, first, ToolRunSQL, failing)
	require.False(t, result.Success)
	assert.Equal(t, CodeExecutionFailed, result.Error.Code)
	assert.Contains(t, result.Error.Message, "signups")
	require.Len(t, first.State.Queries(), 1)
	assert.False(t, first.State.Queries()[0].Success)
	assert.Empty(t, first.State.LastSQL())

	second := NewToolset(f.deps, "Count signups by day")
	require.False(t, execute(t, second, ToolRunSQL, failing).Success)

	learnings, err := f.store.ListLearnings(ctx, knowledge.LearningFilter{})
	require.NoError(t, err)
	require.Len(t, learnings, 1)
	assert.Equal(t, knowledge.CategorySchemaFix, learnings[0].Category)
	assert.Equal(t, knowledge.SourceAutoLearned, learnings[0].Source())
	assert.Equal(t, "How many signups this week?", learnings[0].Metadata["question"])
	assert.Equal(t, "main", learnings[0].Connection)
}

func TestRunSQL_ExecutionFailureWithLearningDisabled(t *testing.T) {
	f := newFixture(t, Settings{})
	ts := NewToolset(f.deps, "q")

	require.False(t, execute(t, ts, ToolRunSQL, map[string]interface{}{"sql": "SELECT * FROM signups"}).Success)

	learnings, err := f.store.ListLearnings(context.Background(), knowledge.LearningFilter{})
	require.NoError(t, err)
	assert.Empty(t, learnings)
}

func TestRedactRows_NothingHidden(t *testing.T) {
	in := &fabric.QueryResult{Rows: []map[string]interface{}{{"a": 1}}}
	assert.Same(t, in, redactRows(in, nil, []string{"users"}, "main"))
}
