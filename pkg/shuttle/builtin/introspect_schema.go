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

	"github.com/MakeNowJust/heredoc"
	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/fabric"
	"github.com/quarrydata/quarry/pkg/guardrails"
	"github.com/quarrydata/quarry/pkg/shuttle"
)

// SampleNote accompanies sample rows returned by introspect_schema.
const SampleNote = "Sample rows are for understanding the schema only. Never quote them to the user as results."

// IntrospectSchemaTool lists tables or describes one table.
type IntrospectSchemaTool struct {
	ts *Toolset
}

func (t *IntrospectSchemaTool) Name() string { return ToolIntrospectSchema }

func (t *IntrospectSchemaTool) Description() string {
	return heredoc.Doc(`
		Inspect the database schema.

		Without table_name, lists the tables you may query.
		With table_name, returns its columns (type, nullability, keys, defaults)
		and relationships to other tables. Set include_sample_data to see up to
		three example rows; they help you understand formats, never quote them
		as an answer.
	`)
}

func (t *IntrospectSchemaTool) InputSchema() *shuttle.JSONSchema {
	return shuttle.NewObjectSchema(
		"Parameters for schema introspection",
		map[string]*shuttle.JSONSchema{
			"table_name":          shuttle.NewStringSchema("Table to describe. Omit to list tables."),
			"include_sample_data": shuttle.NewBooleanSchema("Include up to 3 sample rows (default: false)"),
			"connection":          connectionSchema(),
		},
		nil,
	)
}

func (t *IntrospectSchemaTool) Execute(ctx context.Context, params map[string]interface{}) (*shuttle.Result, error) {
	conn, failure := t.ts.connection(params)
	if failure != nil {
		return failure, nil
	}

	available, err := t.accessibleTables(ctx, conn)
	if err != nil {
		return nil, err
	}

	table := stringParam(params, "table_name")
	if table == "" {
		names := make([]string, len(available))
		for i, r := range available {
			names[i] = r.Name
		}
		return shuttle.Success(map[string]interface{}{
			"connection": conn.Name,
			"tables":     names,
			"count":      len(names),
		}), nil
	}

	access := t.ts.deps.Access
	if !access.IsTableAllowed(table, conn.Name) {
		return shuttle.Failuref(CodeAccessDenied, "Access denied: table '%s' is restricted.", table), nil
	}

	resource, ok := findResource(available, table)
	if !ok {
		return tableNotFound(table, available), nil
	}

	schema, err := conn.Backend.GetSchema(ctx, resource.Name)
	if errors.Is(err, fabric.ErrTableNotFound) {
		return tableNotFound(table, available), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", resource.Name, err)
	}

	data := map[string]interface{}{
		"table":         schema.Name,
		"type":          schema.Type,
		"columns":       describeColumns(schema, access, conn.Name),
		"relationships": visibleRelationships(schema, access, conn.Name),
	}
	if resource.Description != "" {
		data["description"] = resource.Description
	}

	if boolParam(params, "include_sample_data") {
		rows, err := conn.Backend.SampleRows(ctx, schema.Name, t.ts.deps.Settings.SampleRows)
		if err != nil {
			zap.L().Warn("failed to sample rows",
				zap.String("table", schema.Name),
				zap.Error(err),
			)
		} else {
			sample := redactRows(&fabric.QueryResult{Rows: rows}, access, []string{schema.Name}, conn.Name)
			data["sample_rows"] = sample.Rows
			data["sample_note"] = SampleNote
		}
	}

	return shuttle.Success(data), nil
}

func (t *IntrospectSchemaTool) accessibleTables(ctx context.Context, conn *fabric.Connection) ([]fabric.Resource, error) {
	resources, err := conn.Backend.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	out := resources[:0:0]
	for _, r := range resources {
		if t.ts.deps.Access.IsTableAllowed(r.Name, conn.Name) {
			out = append(out, r)
		}
	}
	return out, nil
}

func findResource(resources []fabric.Resource, table string) (fabric.Resource, bool) {
	want := guardrails.NormalizeTable(table)
	for _, r := range resources {
		if guardrails.NormalizeTable(r.Name) == want {
			return r, true
		}
	}
	return fabric.Resource{}, false
}

func tableNotFound(table string, available []fabric.Resource) *shuttle.Result {
	names := make([]string, len(available))
	for i, r := range available {
		names[i] = r.Name
	}

	msg := fmt.Sprintf("Table '%s' not found. Available tables: %s", table, strings.Join(names, ", "))
	res := shuttle.Failure(CodeTableNotFound, msg)
	if matches := fuzzy.Find(guardrails.NormalizeTable(table), names); len(matches) > 0 {
		res.Error.Suggestion = fmt.Sprintf("Did you mean '%s'?", matches[0].Str)
		res.Error.Message += ". " + res.Error.Suggestion
	}
	res.Error.Details = map[string]interface{}{"available_tables": names}
	return res
}

func describeColumns(schema *fabric.Schema, access *guardrails.AccessControl, connection string) []map[string]interface{} {
	cols := make([]map[string]interface{}, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		if access.IsColumnHidden(schema.Name, f.Name, connection) {
			continue
		}
		col := map[string]interface{}{
			"name":        f.Name,
			"type":        f.Type,
			"nullable":    f.Nullable,
			"primary_key": f.PrimaryKey,
			"foreign_key": f.ForeignKey != nil,
		}
		if f.ForeignKey != nil {
			col["references"] = f.ForeignKey.ReferencedTable + "." + f.ForeignKey.ReferencedColumn
		}
		if f.Default != nil {
			col["default"] = f.Default
		}
		if f.Description != "" {
			col["description"] = f.Description
		}
		cols = append(cols, col)
	}
	return cols
}

// visibleRelationships drops edges touching restricted tables or hidden
// columns.
func visibleRelationships(schema *fabric.Schema, access *guardrails.AccessControl, connection string) []fabric.Relationship {
	rels := make([]fabric.Relationship, 0)
	for _, rel := range schema.Relationships() {
		if !access.IsTableAllowed(rel.FromTable, connection) || !access.IsTableAllowed(rel.ToTable, connection) {
			continue
		}
		if access.IsColumnHidden(rel.FromTable, rel.FromColumn, connection) ||
			access.IsColumnHidden(rel.ToTable, rel.ToColumn, connection) {
			continue
		}
		rels = append(rels, rel)
	}
	return rels
}
