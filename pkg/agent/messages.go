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
	"strings"

	"github.com/MakeNowJust/heredoc"

	"github.com/quarrydata/quarry/pkg/types"
)

// DefaultSystemPrompt instructs the model how to answer data questions.
var DefaultSystemPrompt = heredoc.Doc(`
	You are a data analyst answering questions about a SQL database.

	Work in small steps:
	- Search saved knowledge for similar questions and known gotchas first.
	- Inspect the schema of tables you are unsure about before querying them.
	- Run read-only SQL with run_sql. If it fails, read the error, fix the query and retry.
	- When a query answers the question and you checked its results, save it with save_validated_query.
	- When you discover something non-obvious about the data, record it with save_learning.

	Answer with the numbers you found and explain briefly how you got them.
	Never invent data, and never present sample rows from schema inspection as results.
`)

// BuildMessages assembles the conversation for one question: the system
// turn, at most limit earlier user/assistant turns, then the question.
// Other roles and empty turns in history are dropped.
func BuildMessages(system string, history []HistoryMessage, question string, limit int) []types.Message {
	var kept []HistoryMessage
	for _, h := range history {
		role := strings.ToLower(strings.TrimSpace(h.Role))
		if role != types.RoleUser && role != types.RoleAssistant {
			continue
		}
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		kept = append(kept, HistoryMessage{Role: role, Content: h.Content})
	}
	if limit >= 0 && len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}

	messages := make([]types.Message, 0, len(kept)+2)
	if system != "" {
		messages = append(messages, types.SystemMessage(system))
	}
	for _, h := range kept {
		messages = append(messages, types.Message{Role: h.Role, Content: h.Content})
	}
	return append(messages, types.UserMessage(question))
}

// systemContent appends the assembled context to the prompt.
func systemContent(prompt, assembled string) string {
	if strings.TrimSpace(assembled) == "" {
		return prompt
	}
	return strings.TrimRight(prompt, "\n") + "\n\n" + assembled
}
