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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/quarrydata/quarry/pkg/types"
)

func TestBuildMessages(t *testing.T) {
	history := []HistoryMessage{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "system", Content: "ignored"},
		{Role: "User", Content: "three"},
		{Role: "assistant", Content: "   "},
		{Role: "assistant", Content: "four"},
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "no limit hit", limit: 10, want: []string{"system:sys", "user:one", "assistant:two", "user:three", "assistant:four", "user:q"}},
		{name: "keeps latest turns", limit: 2, want: []string{"system:sys", "user:three", "assistant:four", "user:q"}},
		{name: "zero drops history", limit: 0, want: []string{"system:sys", "user:q"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildMessages("sys", history, "q", tt.limit)
			flat := make([]string, len(got))
			for i, m := range got {
				flat[i] = m.Role + ":" + m.Content
			}
			if diff := cmp.Diff(tt.want, flat); diff != "" {
				t.Errorf("messages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildMessages_NoSystem(t *testing.T) {
	got := BuildMessages("", nil, "q", 5)
	assert.Equal(t, []types.Message{types.UserMessage("q")}, got)
}

func TestSystemContent(t *testing.T) {
	assert.Equal(t, "prompt", systemContent("prompt", "  "))
	assert.Equal(t, "prompt\n\n## A\n\nbody", systemContent("prompt\n", "## A\n\nbody"))
}

func TestDefaultSystemPromptMentionsTools(t *testing.T) {
	assert.Contains(t, DefaultSystemPrompt, "run_sql")
	assert.Contains(t, DefaultSystemPrompt, "save_validated_query")
	assert.Contains(t, DefaultSystemPrompt, "save_learning")
}
