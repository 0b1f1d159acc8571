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
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/knowledge"
	"github.com/quarrydata/quarry/pkg/shuttle"
)

// duplicateSearchLimit bounds the search used to spot an existing pattern
// for the same question.
const duplicateSearchLimit = 10

// SaveValidatedQueryTool stores a question and the SQL that answered it.
type SaveValidatedQueryTool struct {
	ts *Toolset
}

func (t *SaveValidatedQueryTool) Name() string { return ToolSaveValidatedQuery }

func (t *SaveValidatedQueryTool) Description() string {
	return heredoc.Doc(`
		Save a query that correctly answered a question, for reuse.

		Only save SQL you ran successfully and whose results you checked.
		The question must not already have a saved query.
	`)
}

func (t *SaveValidatedQueryTool) InputSchema() *shuttle.JSONSchema {
	return shuttle.NewObjectSchema(
		"Parameters for saving a validated query",
		map[string]*shuttle.JSONSchema{
			"name":               shuttle.NewStringSchema("Short name").WithMaxLength(knowledge.MaxTitleLength),
			"question":           shuttle.NewStringSchema("The natural-language question the SQL answers"),
			"sql":                shuttle.NewStringSchema("The validated SQL"),
			"summary":            shuttle.NewStringSchema("What the query returns"),
			"tables_used":        shuttle.NewArraySchema("Tables the query reads", shuttle.NewStringSchema("Table name")),
			"data_quality_notes": shuttle.NewStringSchema("Caveats about the data"),
			"connection":         connectionSchema(),
		},
		[]string{"name", "question", "sql", "summary", "tables_used"},
	)
}

func (t *SaveValidatedQueryTool) Execute(ctx context.Context, params map[string]interface{}) (*shuttle.Result, error) {
	if t.ts.deps.Store == nil {
		return shuttle.Failure(CodeLearningDisabled, "Knowledge storage is not configured; nothing was saved."), nil
	}

	p := &knowledge.QueryPattern{
		Name:             stringParam(params, "name"),
		Question:         stringParam(params, "question"),
		SQL:              stringParam(params, "sql"),
		Summary:          stringParam(params, "summary"),
		TablesUsed:       stringSliceParam(params, "tables_used"),
		DataQualityNotes: stringParam(params, "data_quality_notes"),
	}

	var problems []string
	for _, field := range []struct{ name, value string }{
		{"name", p.Name},
		{"question", p.Question},
		{"sql", p.SQL},
		{"summary", p.Summary},
	} {
		if field.value == "" {
			problems = append(problems, missingParam(field.name))
		}
	}
	if utf8.RuneCountInString(p.Name) > knowledge.MaxTitleLength {
		problems = append(problems, fmt.Sprintf("name must be at most %d characters", knowledge.MaxTitleLength))
	}
	if len(p.TablesUsed) == 0 {
		problems = append(problems, "tables_used must list at least one table")
	}
	if len(problems) > 0 {
		return shuttle.Failure(CodeInvalidParams, strings.Join(problems, "; ")), nil
	}

	// Statement checks only: a saved pattern may mention tables for
	// documentation.
	if err := t.ts.deps.Validator.ValidateStatement(p.SQL); err != nil {
		return validationFailure(err), nil
	}

	existing, err := t.findDuplicate(ctx, p.Question)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		res := shuttle.Failuref(CodeDuplicate, "A validated query for this question already exists: %s", existing.Name)
		res.Error.Details = map[string]interface{}{"id": existing.ID}
		return res, nil
	}

	if conn, failure := t.ts.connection(params); failure == nil {
		p.Connection = conn.Name
	}
	if err := t.ts.deps.Store.SavePattern(ctx, p); err != nil {
		return nil, err
	}

	zap.L().Info("validated query saved",
		zap.String("pattern_id", p.ID),
		zap.Strings("tables", p.TablesUsed),
	)
	return shuttle.Success(map[string]interface{}{
		"id":      p.ID,
		"message": fmt.Sprintf("Validated query saved: %s", p.Name),
	}), nil
}

// findDuplicate looks for a pattern whose question equals question,
// ignoring case. Search results are checked first, then the store.
func (t *SaveValidatedQueryTool) findDuplicate(ctx context.Context, question string) (*knowledge.QueryPattern, error) {
	if t.ts.deps.Searcher != nil {
		hits, err := t.ts.deps.Searcher.Search(ctx, question, knowledge.IndexQueryPatterns, duplicateSearchLimit)
		if err != nil {
			zap.L().Warn("duplicate search failed", zap.Error(err))
		}
		for _, hit := range hits {
			if hit.Pattern != nil && strings.EqualFold(strings.TrimSpace(hit.Pattern.Question), question) {
				return hit.Pattern, nil
			}
		}
	}

	existing, err := t.ts.deps.Store.FindPatternByQuestion(ctx, question)
	if errors.Is(err, knowledge.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate question: %w", err)
	}
	return existing, nil
}
