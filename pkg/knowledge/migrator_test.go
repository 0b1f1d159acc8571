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
package knowledge

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/observability"
)

func openRawSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLoadMigrations(t *testing.T) {
	for _, dialect := range []string{"sqlite", "postgres", "mysql"} {
		t.Run(dialect, func(t *testing.T) {
			migrations, err := loadMigrations(dialect)
			require.NoError(t, err)
			require.Len(t, migrations, 2)
			assert.Equal(t, 1, migrations[0].Version)
			assert.Equal(t, "initial", migrations[0].Description)
			assert.Equal(t, "fulltext", migrations[1].Description)
			for _, m := range migrations {
				assert.NotEmpty(t, m.UpSQL)
				assert.NotEmpty(t, m.DownSQL)
			}
		})
	}

	_, err := loadMigrations("oracle")
	assert.Error(t, err)
}

func TestMigrator_UpDown(t *testing.T) {
	ctx := context.Background()
	db := openRawSQLite(t)
	tracer := observability.NewMockTracer()

	m, err := NewMigrator(db, "sqlite", tracer)
	require.NoError(t, err)

	pending, err := m.PendingMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, m.MigrateUp(ctx))
	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.Len(t, tracer.GetSpansByName("knowledge.migrate_up"), 1)

	// Idempotent.
	require.NoError(t, m.MigrateUp(ctx))

	require.NoError(t, m.MigrateDown(ctx, 1))
	version, err = m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'learnings_fts'`).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, m.MigrateUp(ctx))
	version, err = m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", rebind("postgres", "SELECT * FROM t WHERE a = ? AND b = ?"))
	assert.Equal(t, "SELECT ?", rebind("mysql", "SELECT ?"))
	assert.Equal(t, "SELECT ?", rebind("sqlite", "SELECT ?"))
}

func TestMigrator_StatementsSplitOutsideSQLite(t *testing.T) {
	m := &Migrator{dialect: "mysql"}
	stmts := m.statements("CREATE TABLE a (x INT);\nCREATE TABLE b (y INT);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE TABLE b (y INT)"}, stmts)

	m.dialect = "sqlite"
	assert.Len(t, m.statements("A;\nB;\n"), 1)
}
