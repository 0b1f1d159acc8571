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

// Package fabric is the database side of the agent: executing read queries
// and introspecting tables, columns and foreign keys behind one interface
// per dialect.
package fabric

import (
	"context"
)

// ExecutionBackend executes queries and exposes schema metadata for one
// database.
type ExecutionBackend interface {
	// Name returns the dialect identifier ("postgres", "mysql", "sqlite")
	Name() string

	// ExecuteQuery runs query and keeps at most maxRows rows. Remaining rows
	// are counted but not materialized. maxRows <= 0 keeps everything.
	ExecuteQuery(ctx context.Context, query string, maxRows int) (*QueryResult, error)

	// GetSchema returns columns and relationships of a table.
	GetSchema(ctx context.Context, table string) (*Schema, error)

	// ListResources lists tables and views.
	ListResources(ctx context.Context) ([]Resource, error)

	// SampleRows returns up to n rows of table.
	SampleRows(ctx context.Context, table string, n int) ([]map[string]interface{}, error)

	// Ping checks backend connectivity and health.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// QueryResult represents the result of executing a query.
type QueryResult struct {
	Rows    []map[string]interface{}
	Columns []Column

	// RowCount is len(Rows)
	RowCount int

	// TotalRows counts every row the database returned
	TotalRows int

	// Truncated is set when TotalRows > RowCount
	Truncated bool

	ExecutionStats ExecutionStats
}

// Column represents a column in tabular results.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// ExecutionStats tracks execution metrics.
type ExecutionStats struct {
	DurationMs int64
}

// Schema represents the schema of a table.
type Schema struct {
	Name   string
	Type   string
	Fields []Field

	// ReferencedBy lists foreign keys in other tables pointing at this one.
	ReferencedBy []Relationship
}

// Field represents a column in a schema.
type Field struct {
	Name        string
	Type        string
	Description string
	Nullable    bool
	PrimaryKey  bool
	ForeignKey  *ForeignKey
	Default     interface{}
}

// ForeignKey represents a foreign key relationship.
type ForeignKey struct {
	ReferencedTable  string
	ReferencedColumn string
}

// Relationship is one foreign key edge between two tables.
type Relationship struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// Relationships returns the outgoing and incoming edges of s.
func (s *Schema) Relationships() []Relationship {
	var rels []Relationship
	for _, f := range s.Fields {
		if f.ForeignKey == nil {
			continue
		}
		rels = append(rels, Relationship{
			FromTable:  s.Name,
			FromColumn: f.Name,
			ToTable:    f.ForeignKey.ReferencedTable,
			ToColumn:   f.ForeignKey.ReferencedColumn,
		})
	}
	return append(rels, s.ReferencedBy...)
}

// Resource represents a table or view.
type Resource struct {
	Name        string
	Type        string
	Description string
}
