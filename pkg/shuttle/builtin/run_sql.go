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
	"strings"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/fabric"
	"github.com/quarrydata/quarry/pkg/guardrails"
	"github.com/quarrydata/quarry/pkg/learning"
	"github.com/quarrydata/quarry/pkg/shuttle"
)

// RunSQLTool validates and executes a read-only query.
type RunSQLTool struct {
	ts *Toolset
}

func (t *RunSQLTool) Name() string { return ToolRunSQL }

func (t *RunSQLTool) Description() string {
	return heredoc.Docf(`
		Execute a read-only SQL query and return the rows.

		Only SELECT and WITH statements are accepted, one statement per call.
		At most %d rows are returned; "truncated" tells you when more matched.
		Restricted tables are rejected. Hidden columns are removed from rows and
		a query that names one is rejected.
		If the query fails, read the error, fix the SQL and try again.
	`, t.ts.deps.Settings.MaxRows)
}

func (t *RunSQLTool) InputSchema() *shuttle.JSONSchema {
	return shuttle.NewObjectSchema(
		"Parameters for running SQL",
		map[string]*shuttle.JSONSchema{
			"sql":        shuttle.NewStringSchema("The SQL query to execute"),
			"connection": connectionSchema(),
		},
		[]string{"sql"},
	)
}

func (t *RunSQLTool) Execute(ctx context.Context, params map[string]interface{}) (*shuttle.Result, error) {
	query := stringParam(params, "sql")
	if query == "" {
		return shuttle.Failure(CodeInvalidParams, missingParam("sql")), nil
	}

	conn, failure := t.ts.connection(params)
	if failure != nil {
		return failure, nil
	}

	if err := t.ts.deps.Validator.Validate(query, conn.Name); err != nil {
		return validationFailure(err), nil
	}

	result, err := conn.Backend.ExecuteQuery(ctx, query, t.ts.deps.Settings.MaxRows)
	if err != nil {
		t.ts.State.RecordFailure(ctx, query, conn.Name, err)
		t.learn(ctx, query, conn.Name, err)
		return &shuttle.Result{
			Success: false,
			Error: &shuttle.Error{
				Code:       CodeExecutionFailed,
				Message:    err.Error(),
				Suggestion: "Check table and column names with introspect_schema, then retry.",
			},
		}, nil
	}

	result = redactRows(result, t.ts.deps.Access, guardrails.ExtractTables(query), conn.Name)
	t.ts.State.RecordSuccess(ctx, query, conn.Name, result)

	return &shuttle.Result{
		Success: true,
		Data: map[string]interface{}{
			"rows":       result.Rows,
			"row_count":  result.RowCount,
			"total_rows": result.TotalRows,
			"truncated":  result.Truncated,
		},
		Metadata: map[string]interface{}{
			"connection":  conn.Name,
			"duration_ms": result.ExecutionStats.DurationMs,
		},
	}, nil
}

// learn forwards an execution failure to the learner. Learner errors are
// logged only; the model already gets the query error.
func (t *RunSQLTool) learn(ctx context.Context, query, connection string, queryErr error) {
	if t.ts.deps.Learner == nil {
		return
	}
	l, err := t.ts.deps.Learner.LearnFromError(ctx, learning.ErrorContext{
		Question:   t.ts.Question,
		SQL:        query,
		Error:      queryErr.Error(),
		Connection: connection,
	})
	if err != nil {
		zap.L().Warn("failed to record learning from query error",
			zap.String("connection", connection),
			zap.Error(err),
		)
		return
	}
	if l != nil {
		zap.L().Debug("learned from query error",
			zap.String("learning_id", l.ID),
			zap.String("category", string(l.Category)),
		)
	}
}

func validationFailure(err error) *shuttle.Result {
	res := shuttle.Failure(CodeValidationFailed, err.Error())
	var verr *guardrails.ValidationError
	if errors.As(err, &verr) {
		res.Error.Details = map[string]interface{}{"rule": verr.Rule}
		if verr.Rule == guardrails.RuleTableAccess || verr.Rule == guardrails.RuleColumnAccess {
			res.Error.Code = CodeAccessDenied
			res.Error.Details["table"] = verr.Table
		}
		if verr.Column != "" {
			res.Error.Details["column"] = verr.Column
		}
		if verr.Keyword != "" {
			res.Error.Details["keyword"] = verr.Keyword
		}
	}
	return res
}

// redactRows drops hidden columns of every referenced table from result.
// The result is copied only when something is hidden.
func redactRows(result *fabric.QueryResult, access *guardrails.AccessControl, tables []string, connection string) *fabric.QueryResult {
	var hidden []string
	for _, table := range tables {
		hidden = append(hidden, access.HiddenColumns(table, connection)...)
	}
	if len(hidden) == 0 || result == nil {
		return result
	}

	isHidden := func(col string) bool {
		for _, h := range hidden {
			if strings.EqualFold(h, col) {
				return true
			}
		}
		return false
	}

	redacted := *result
	redacted.Columns = make([]fabric.Column, 0, len(result.Columns))
	for _, col := range result.Columns {
		if !isHidden(col.Name) {
			redacted.Columns = append(redacted.Columns, col)
		}
	}
	redacted.Rows = make([]map[string]interface{}, len(result.Rows))
	for i, row := range result.Rows {
		clean := make(map[string]interface{}, len(row))
		for k, v := range row {
			if !isHidden(k) {
				clean[k] = v
			}
		}
		redacted.Rows[i] = clean
	}
	return &redacted
}
