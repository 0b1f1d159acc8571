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
package fabric

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/observability"
)

const testSchema = `
CREATE TABLE users (
	id INTEGER PRIMARY KEY,
	email TEXT NOT NULL,
	signup_date TEXT DEFAULT 'now'
);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL REFERENCES users(id),
	total REAL
);
CREATE VIEW big_orders AS SELECT * FROM orders WHERE total > 100;
INSERT INTO users (id, email) VALUES (1, 'a@example.com'), (2, 'b@example.com'), (3, 'c@example.com');
INSERT INTO orders (id, user_id, total) VALUES (1, 1, 50.5), (2, 1, 150), (3, 2, 20);
`

func newTestBackend(t *testing.T) *SQLBackend {
	t.Helper()
	backend, err := OpenSQL(context.Background(), SQLConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	_, err = backend.DB().Exec(testSchema)
	require.NoError(t, err)
	return backend
}

func TestSQLBackend_ExecuteQuery(t *testing.T) {
	backend := newTestBackend(t)
	assert.Equal(t, DialectSQLite, backend.Name())

	result, err := backend.ExecuteQuery(context.Background(), "SELECT id, email FROM users ORDER BY id", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result.RowCount)
	assert.Equal(t, 3, result.TotalRows)
	assert.False(t, result.Truncated)
	require.Len(t, result.Columns, 2)
	assert.Equal(t, "email", result.Columns[1].Name)
	assert.Equal(t, "a@example.com", result.Rows[0]["email"])
	assert.EqualValues(t, 1, result.Rows[0]["id"])
}

func TestSQLBackend_ExecuteQueryCapsRows(t *testing.T) {
	backend := newTestBackend(t)

	result, err := backend.ExecuteQuery(context.Background(), "SELECT id FROM users ORDER BY id", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, 3, result.TotalRows)
	assert.True(t, result.Truncated)
	assert.Len(t, result.Rows, 2)
}

func TestSQLBackend_ExecuteQueryEmptyResult(t *testing.T) {
	backend := newTestBackend(t)

	result, err := backend.ExecuteQuery(context.Background(), "SELECT id FROM users WHERE id > 100", 10)
	require.NoError(t, err)
	assert.NotNil(t, result.Rows)
	assert.Equal(t, 0, result.RowCount)
}

func TestSQLBackend_ExecuteQueryError(t *testing.T) {
	backend := newTestBackend(t)

	_, err := backend.ExecuteQuery(context.Background(), "SELECT * FROM missing_table", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_table")
}

func TestSQLBackend_GetSchema(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	orders, err := backend.GetSchema(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, orders.Fields, 3)

	assert.Equal(t, "id", orders.Fields[0].Name)
	assert.True(t, orders.Fields[0].PrimaryKey)
	assert.Equal(t, "INTEGER", orders.Fields[1].Type)
	assert.False(t, orders.Fields[1].Nullable)
	assert.True(t, orders.Fields[2].Nullable)
	require.NotNil(t, orders.Fields[1].ForeignKey)
	assert.Equal(t, "users", orders.Fields[1].ForeignKey.ReferencedTable)
	assert.Equal(t, "id", orders.Fields[1].ForeignKey.ReferencedColumn)
	assert.Empty(t, orders.ReferencedBy)

	users, err := backend.GetSchema(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "'now'", users.Fields[2].Default)
	require.Len(t, users.ReferencedBy, 1)
	assert.Equal(t, Relationship{FromTable: "orders", FromColumn: "user_id", ToTable: "users", ToColumn: "id"}, users.ReferencedBy[0])
	assert.Len(t, users.Relationships(), 1)
	assert.Len(t, orders.Relationships(), 1)
}

func TestSQLBackend_GetSchemaUnknownTable(t *testing.T) {
	backend := newTestBackend(t)

	_, err := backend.GetSchema(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrTableNotFound))
}

func TestSQLBackend_ListResources(t *testing.T) {
	backend := newTestBackend(t)

	resources, err := backend.ListResources(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 3)
	assert.Equal(t, Resource{Name: "big_orders", Type: "view"}, resources[0])
	assert.Equal(t, "orders", resources[1].Name)
	assert.Equal(t, "users", resources[2].Name)
}

func TestSQLBackend_SampleRows(t *testing.T) {
	backend := newTestBackend(t)

	rows, err := backend.SampleRows(context.Background(), "users", 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = backend.SampleRows(context.Background(), "users", 0)
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"we""ird"`, NewSQLBackend(nil, "postgres").QuoteIdentifier(`we"ird`))
	assert.Equal(t, "`we``ird`", NewSQLBackend(nil, "mysql").QuoteIdentifier("we`ird"))
}

func TestDriverName(t *testing.T) {
	for dialect, want := range map[string]string{
		"postgres":   "postgres",
		"postgresql": "postgres",
		"mysql":      "mysql",
		"sqlite":     "sqlite3",
		"SQLite3":    "sqlite3",
	} {
		got, err := DriverName(dialect)
		require.NoError(t, err, dialect)
		assert.Equal(t, want, got, dialect)
	}

	_, err := DriverName("oracle")
	assert.Error(t, err)
}

func TestOpenSQL_RequiresDSN(t *testing.T) {
	_, err := OpenSQL(context.Background(), SQLConfig{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestInstrumentedBackend(t *testing.T) {
	tracer := observability.NewMockTracer()
	backend := NewInstrumentedBackend(newTestBackend(t), tracer)
	ctx := context.Background()

	_, err := backend.ExecuteQuery(ctx, "SELECT * FROM users", 10)
	require.NoError(t, err)
	_, err = backend.ExecuteQuery(ctx, "SELECT * FROM nope", 10)
	require.Error(t, err)
	_, err = backend.GetSchema(ctx, "users")
	require.NoError(t, err)

	queries := tracer.GetSpansByName(observability.SpanBackendQuery)
	require.Len(t, queries, 2)
	assert.Equal(t, observability.StatusOK, queries[0].Status.Code)
	assert.Equal(t, observability.StatusError, queries[1].Status.Code)
	assert.Len(t, tracer.GetSpansByName(observability.SpanBackendSchema), 1)
	assert.Equal(t, 1.0, tracer.Metric(observability.MetricBackendErrors))
	assert.Equal(t, 3.0, tracer.Metric(observability.MetricBackendRows))

	assert.Same(t, backend.(*InstrumentedBackend).Unwrap(), backend.(*InstrumentedBackend).backend)
	plain := newTestBackend(t)
	assert.Same(t, plain, NewInstrumentedBackend(plain, nil))
}
