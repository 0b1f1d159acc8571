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
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/knowledge"
	"github.com/quarrydata/quarry/pkg/shuttle"
)

// SearchTypeAll searches every index.
const SearchTypeAll = "all"

// SearchKnowledgeTool searches saved query patterns and learnings.
type SearchKnowledgeTool struct {
	ts *Toolset
}

func (t *SearchKnowledgeTool) Name() string { return ToolSearchKnowledge }

func (t *SearchKnowledgeTool) Description() string {
	return heredoc.Doc(`
		Search saved knowledge before writing SQL.

		query_patterns are validated question to SQL examples; learnings are
		known gotchas, error fixes and data quirks. Use type to restrict the
		search to one kind.
	`)
}

func (t *SearchKnowledgeTool) InputSchema() *shuttle.JSONSchema {
	types := []interface{}{SearchTypeAll}
	for _, idx := range knowledge.Indexes {
		types = append(types, string(idx))
	}
	return shuttle.NewObjectSchema(
		"Parameters for knowledge search",
		map[string]*shuttle.JSONSchema{
			"query": shuttle.NewStringSchema("What to look for"),
			"type": shuttle.NewStringSchema("Which knowledge to search (default: all)").
				WithEnum(types...).
				WithDefault(SearchTypeAll),
			"limit": shuttle.NewIntegerSchema(fmt.Sprintf("Maximum results per kind (default: %d, max: %d)",
				t.ts.deps.Settings.SearchLimit, MaxSearchLimit)).
				WithRange(1, MaxSearchLimit),
		},
		[]string{"query"},
	)
}

func (t *SearchKnowledgeTool) Execute(ctx context.Context, params map[string]interface{}) (*shuttle.Result, error) {
	query := stringParam(params, "query")
	if query == "" {
		return shuttle.Failure(CodeInvalidParams, missingParam("query")), nil
	}
	if t.ts.deps.Searcher == nil {
		return shuttle.Failure(CodeExecutionFailed, "knowledge search is not configured"), nil
	}

	limit := intParam(params, "limit", t.ts.deps.Settings.SearchLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	// Unknown types search everything so a typo does not leave the model
	// retrying.
	indexes := knowledge.Indexes
	if idx, ok := knowledge.ParseIndex(stringParam(params, "type")); ok {
		indexes = []knowledge.Index{idx}
	}

	patterns := make([]*knowledge.QueryPattern, 0)
	learnings := make([]*knowledge.Learning, 0)
	for _, idx := range indexes {
		hits, err := t.ts.deps.Searcher.Search(ctx, query, idx, limit)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", idx, err)
		}
		for _, hit := range hits {
			switch {
			case hit.Pattern != nil:
				patterns = append(patterns, hit.Pattern)
			case hit.Learning != nil:
				learnings = append(learnings, hit.Learning)
			}
		}
	}

	t.touch(ctx, learnings)

	data := map[string]interface{}{
		"query": query,
		"total": len(patterns) + len(learnings),
	}
	data[string(knowledge.IndexQueryPatterns)] = patterns
	data[string(knowledge.IndexLearnings)] = learnings
	return shuttle.Success(data), nil
}

// touch records that learnings were shown to the model.
func (t *SearchKnowledgeTool) touch(ctx context.Context, learnings []*knowledge.Learning) {
	if t.ts.deps.Store == nil {
		return
	}
	for _, l := range learnings {
		if err := t.ts.deps.Store.TouchLearning(ctx, l.ID); err != nil {
			zap.L().Debug("failed to record learning usage",
				zap.String("learning_id", l.ID),
				zap.Error(err),
			)
		}
	}
}
