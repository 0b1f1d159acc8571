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
	"strings"
	"unicode/utf8"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/knowledge"
	"github.com/quarrydata/quarry/pkg/shuttle"
)

// SaveLearningTool stores a discovery made while answering.
type SaveLearningTool struct {
	ts *Toolset
}

func (t *SaveLearningTool) Name() string { return ToolSaveLearning }

func (t *SaveLearningTool) Description() string {
	return heredoc.Doc(`
		Save something you learned about the data so future questions benefit.

		Use it for gotchas (a column storing cents, soft-deleted rows), fixes for
		errors you hit, and business definitions the schema does not show.
		Keep the title short and specific.
	`)
}

func (t *SaveLearningTool) InputSchema() *shuttle.JSONSchema {
	categories := make([]interface{}, len(knowledge.Categories))
	for i, c := range knowledge.Categories {
		categories[i] = string(c)
	}
	return shuttle.NewObjectSchema(
		"Parameters for saving a learning",
		map[string]*shuttle.JSONSchema{
			"title":       shuttle.NewStringSchema("Short title").WithMaxLength(knowledge.MaxTitleLength),
			"description": shuttle.NewStringSchema("What was learned and how to apply it"),
			"category":    shuttle.NewStringSchema("Kind of learning").WithEnum(categories...),
			"sql":         shuttle.NewStringSchema("SQL illustrating the learning"),
			"metadata":    shuttle.NewFreeformObjectSchema("Extra key/value context"),
			"connection":  connectionSchema(),
		},
		[]string{"title", "description", "category"},
	)
}

func (t *SaveLearningTool) Execute(ctx context.Context, params map[string]interface{}) (*shuttle.Result, error) {
	if !t.ts.deps.Settings.LearningEnabled || t.ts.deps.Store == nil {
		return shuttle.Failure(CodeLearningDisabled, "Learning is disabled in the configuration; nothing was saved."), nil
	}

	title := stringParam(params, "title")
	description := stringParam(params, "description")
	var problems []string
	if title == "" {
		problems = append(problems, missingParam("title"))
	}
	if description == "" {
		problems = append(problems, missingParam("description"))
	}
	if utf8.RuneCountInString(title) > knowledge.MaxTitleLength {
		problems = append(problems, fmt.Sprintf("title must be at most %d characters", knowledge.MaxTitleLength))
	}
	category, ok := knowledge.ParseCategory(stringParam(params, "category"))
	if !ok {
		problems = append(problems, fmt.Sprintf("category must be one of: %s", categoryList()))
	}
	if len(problems) > 0 {
		return shuttle.Failure(CodeInvalidParams, strings.Join(problems, "; ")), nil
	}

	metadata := map[string]interface{}{}
	if extra, ok := params["metadata"].(map[string]interface{}); ok {
		for k, v := range extra {
			metadata[k] = v
		}
	}
	metadata["source"] = knowledge.SourceManual
	if t.ts.Question != "" {
		metadata["question"] = t.ts.Question
	}

	l := &knowledge.Learning{
		Title:       title,
		Description: description,
		Category:    category,
		SQL:         stringParam(params, "sql"),
		Metadata:    metadata,
		Connection:  t.connectionName(params),
	}
	if err := t.ts.deps.Store.SaveLearning(ctx, l); err != nil {
		return nil, err
	}

	zap.L().Info("learning saved",
		zap.String("learning_id", l.ID),
		zap.String("category", string(l.Category)),
		zap.String("source", knowledge.SourceManual),
	)
	return shuttle.Success(map[string]interface{}{
		"id":      l.ID,
		"message": fmt.Sprintf("Learning saved: %s", l.Title),
	}), nil
}

// connectionName resolves the connection a saved item belongs to without
// failing when none is configured.
func (t *SaveLearningTool) connectionName(params map[string]interface{}) string {
	if conn, failure := t.ts.connection(params); failure == nil {
		return conn.Name
	}
	return stringParam(params, "connection")
}

func categoryList() string {
	names := make([]string, len(knowledge.Categories))
	for i, c := range knowledge.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
