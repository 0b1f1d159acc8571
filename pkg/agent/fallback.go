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
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/quarrydata/quarry/pkg/fabric"
	"github.com/quarrydata/quarry/pkg/shuttle/builtin"
	"github.com/quarrydata/quarry/pkg/types"
)

const sqlPreviewLength = 200

// GenericFallbackAnswer is used when the iteration limit is reached and the
// last successful tool was not a query.
const GenericFallbackAnswer = "I gathered information about your question but could not finish the answer " +
	"within the step limit. Try asking a narrower question."

// fallbackAnswer acknowledges the last query result when the loop stops
// without a final answer.
func fallbackAnswer(lastTool string, last *fabric.QueryResult) string {
	if lastTool != builtin.ToolRunSQL || last == nil {
		return GenericFallbackAnswer
	}
	rows := "rows"
	if last.TotalRows == 1 {
		rows = "row"
	}
	msg := fmt.Sprintf("The query returned %d %s", last.TotalRows, rows)
	if last.Truncated {
		msg += fmt.Sprintf(" (showing the first %d)", last.RowCount)
	}
	return msg + ", but I reached the step limit before summarizing them. The SQL and results are attached."
}

// describeToolCall returns the label, kind and SQL preview shown while a
// tool runs.
func describeToolCall(call types.ToolCall) (label, kind, preview string) {
	arg := func(key string) string {
		s, _ := call.Input[key].(string)
		return strings.TrimSpace(s)
	}

	switch call.Name {
	case builtin.ToolRunSQL:
		return "Running SQL", ToolTypeSQL, truncateRunes(arg("sql"), sqlPreviewLength)
	case builtin.ToolIntrospectSchema:
		if table := arg("table_name"); table != "" {
			return "Inspecting table " + table, ToolTypeSchema, ""
		}
		return "Listing tables", ToolTypeSchema, ""
	case builtin.ToolSearchKnowledge:
		return "Searching knowledge: " + arg("query"), ToolTypeSearch, ""
	case builtin.ToolSaveLearning:
		return "Saving learning: " + arg("title"), ToolTypeKnowledge, ""
	case builtin.ToolSaveValidatedQuery:
		return "Saving validated query: " + arg("name"), ToolTypeKnowledge, truncateRunes(arg("sql"), sqlPreviewLength)
	default:
		return "Calling " + call.Name, ToolTypeOther, ""
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
