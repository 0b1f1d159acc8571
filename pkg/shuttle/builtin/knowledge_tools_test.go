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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/knowledge"
)

func seedPattern(t *testing.T, f *fixture) *knowledge.QueryPattern {
	t.Helper()
	p := &knowledge.QueryPattern{
		Name:       "Weekly signups",
		Question:   "How many users signed up this week?",
		SQL:        "SELECT COUNT(*) FROM users WHERE created_at >= date('now', '-7 days')",
		Summary:    "Counts users created in the last seven days",
		TablesUsed: []string{"users"},
		Connection: "main",
	}
	require.NoError(t, f.store.SavePattern(context.Background(), p))
	return p
}

func seedLearning(t *testing.T, f *fixture) *knowledge.Learning {
	t.Helper()
	l := &knowledge.Learning{
		Title:       "users created_at is text",
		Description: "Compare users signed up dates as ISO strings",
		Category:    knowledge.CategoryTypeError,
		Metadata:    map[string]interface{}{"source": knowledge.SourceManual},
	}
	require.NoError(t, f.store.SaveLearning(context.Background(), l))
	return l
}

func TestSearchKnowledge_AllIndexes(t *testing.T) {
	f := newFixture(t, Settings{})
	pattern := seedPattern(t, f)
	l := seedLearning(t, f)
	ts := NewToolset(f.deps, "")

	data := dataMap(t, execute(t, ts, ToolSearchKnowledge, map[string]interface{}{"query": "users signed up"}))
	patterns := data["query_patterns"].([]*knowledge.QueryPattern)
	learnings := data["learnings"].([]*knowledge.Learning)
	require.Len(t, patterns, 1)
	require.Len(t, learnings, 1)
	assert.Equal(t, pattern.ID, patterns[0].ID)
	assert.Equal(t, 2, data["total"])

	touched, err := f.store.GetLearning(context.Background(), l.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, touched.Metadata["use_count"])
}

func TestSearchKnowledge_SingleIndexAndUnknownType(t *testing.T) {
	f := newFixture(t, Settings{})
	seedPattern(t, f)
	seedLearning(t, f)
	ts := NewToolset(f.deps, "")

	data := dataMap(t, execute(t, ts, ToolSearchKnowledge, map[string]interface{}{
		"query": "users signed up",
		"type":  "learnings",
	}))
	assert.Empty(t, data["query_patterns"])
	assert.Len(t, data["learnings"], 1)

	data = dataMap(t, execute(t, ts, ToolSearchKnowledge, map[string]interface{}{
		"query": "users signed up",
		"type":  "patterns",
	}))
	assert.Equal(t, 2, data["total"])
}

func TestSearchKnowledge_LimitIsClamped(t *testing.T) {
	f := newFixture(t, Settings{})
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, f.store.SaveLearning(ctx, &knowledge.Learning{
			Title:       "revenue note " + strings.Repeat("x", i),
			Description: "revenue excludes refunds",
			Category:    knowledge.CategoryBusinessLogic,
		}))
	}
	ts := NewToolset(f.deps, "")

	data := dataMap(t, execute(t, ts, ToolSearchKnowledge, map[string]interface{}{
		"query": "revenue",
		"type":  "learnings",
		"limit": 100,
	}))
	assert.Len(t, data["learnings"], MaxSearchLimit)

	data = dataMap(t, execute(t, ts, ToolSearchKnowledge, map[string]interface{}{
		"query": "revenue",
		"type":  "learnings",
	}))
	assert.Len(t, data["learnings"], DefaultSearchLimit)

	data = dataMap(t, execute(t, ts, ToolSearchKnowledge, map[string]interface{}{
		"query": "revenue",
		"type":  "learnings",
		"limit": " 3 ",
	}))
	assert.Len(t, data["learnings"], 3)
}

func TestSaveLearning(t *testing.T) {
	f := newFixture(t, Settings{LearningEnabled: true})
	ts := NewToolset(f.deps, "what is revenue?")

	data := dataMap(t, execute(t, ts, ToolSaveLearning, map[string]interface{}{
		"title":       "Revenue excludes refunds",
		"description": "Subtract refunds.amount when reporting revenue",
		"category":    "business_logic",
		"metadata":    map[string]interface{}{"team": "finance", "source": "ignored"},
	}))
	id := data["id"].(string)
	require.NotEmpty(t, id)

	saved, err := f.store.GetLearning(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, knowledge.CategoryBusinessLogic, saved.Category)
	assert.Equal(t, knowledge.SourceManual, saved.Source())
	assert.Equal(t, "finance", saved.Metadata["team"])
	assert.Equal(t, "main", saved.Connection)
}

func TestSaveLearning_Validation(t *testing.T) {
	f := newFixture(t, Settings{LearningEnabled: true})
	ts := NewToolset(f.deps, "")

	tests := []struct {
		name   string
		params map[string]interface{}
		want   string
	}{
		{
			name:   "empty title",
			params: map[string]interface{}{"title": " ", "description": "d", "category": "schema_fix"},
			want:   "title is required",
		},
		{
			name:   "bad category",
			params: map[string]interface{}{"title": "t", "description": "d", "category": "gossip"},
			want:   "category must be one of",
		},
		{
			name:   "long title",
			params: map[string]interface{}{"title": strings.Repeat("a", 101), "description": "d", "category": "schema_fix"},
			want:   "at most 100 characters",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := execute(t, ts, ToolSaveLearning, tt.params)
			require.False(t, result.Success)
			assert.Contains(t, result.Error.Message, tt.want)
		})
	}
}

func TestSaveLearning_Disabled(t *testing.T) {
	f := newFixture(t, Settings{LearningEnabled: false})
	ts := NewToolset(f.deps, "")

	result := execute(t, ts, ToolSaveLearning, map[string]interface{}{
		"title": "t", "description": "d", "category": "schema_fix",
	})
	require.False(t, result.Success)
	assert.Equal(t, CodeLearningDisabled, result.Error.Code)
}

func validQueryParams() map[string]interface{} {
	return map[string]interface{}{
		"name":        "Weekly signups",
		"question":    "How many users signed up this week?",
		"sql":         "SELECT COUNT(*) FROM users",
		"summary":     "Counts recent users",
		"tables_used": []interface{}{"users"},
	}
}

func TestSaveValidatedQuery(t *testing.T) {
	f := newFixture(t, Settings{})
	ts := NewToolset(f.deps, "")

	data := dataMap(t, execute(t, ts, ToolSaveValidatedQuery, validQueryParams()))
	saved, err := f.store.GetPattern(context.Background(), data["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, saved.TablesUsed)
	assert.Equal(t, "main", saved.Connection)

	dup := validQueryParams()
	dup["question"] = "  how many USERS signed up this week?"
	result := execute(t, ts, ToolSaveValidatedQuery, dup)
	require.False(t, result.Success)
	assert.Equal(t, CodeDuplicate, result.Error.Code)
	assert.Equal(t, saved.ID, result.Error.Details["id"])
}

func TestSaveValidatedQuery_AllowsRestrictedTables(t *testing.T) {
	f := newFixture(t, Settings{})
	ts := NewToolset(f.deps, "")

	params := validQueryParams()
	params["sql"] = "SELECT COUNT(*) FROM secrets"
	params["tables_used"] = []interface{}{"secrets"}
	assert.True(t, execute(t, ts, ToolSaveValidatedQuery, params).Success)
}

func TestSaveValidatedQuery_CommaSeparatedTables(t *testing.T) {
	f := newFixture(t, Settings{})
	ts := NewToolset(f.deps, "")

	params := validQueryParams()
	params["tables_used"] = "users, orders"
	data := dataMap(t, execute(t, ts, ToolSaveValidatedQuery, params))
	saved, err := f.store.GetPattern(context.Background(), data["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "orders"}, saved.TablesUsed)
}

func TestSaveValidatedQuery_Validation(t *testing.T) {
	f := newFixture(t, Settings{})
	ts := NewToolset(f.deps, "")

	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		code   string
		want   string
	}{
		{"missing summary", func(p map[string]interface{}) { p["summary"] = "" }, CodeInvalidParams, "summary is required"},
		{"long name", func(p map[string]interface{}) { p["name"] = strings.Repeat("n", 101) }, CodeInvalidParams, "at most 100"},
		{"no tables", func(p map[string]interface{}) { p["tables_used"] = []interface{}{} }, CodeInvalidParams, "tables_used"},
		{"destructive sql", func(p map[string]interface{}) { p["sql"] = "DELETE FROM users" }, CodeValidationFailed, "Only SELECT and WITH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validQueryParams()
			tt.mutate(params)
			result := execute(t, ts, ToolSaveValidatedQuery, params)
			require.False(t, result.Success)
			assert.Equal(t, tt.code, result.Error.Code)
			assert.Contains(t, result.Error.Message, tt.want)
		})
	}
}
