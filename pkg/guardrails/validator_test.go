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
package guardrails

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator() *Validator {
	access := NewAccessControl(ConnectionPolicy{
		Name:          "analytics",
		AllowedTables: []string{"users", "orders", "secrets"},
		DeniedTables:  []string{"secrets", "audit_log"},
	})
	return NewValidator(Config{}, access)
}

func TestValidate_StatementType(t *testing.T) {
	v := newTestValidator()

	require.NoError(t, v.Validate("SELECT * FROM users", ""))
	require.NoError(t, v.Validate("  with x as (select 1) select * from x", ""))

	err := v.Validate("DROP TABLE users", "")
	require.Error(t, err)
	assert.Equal(t, "Only SELECT and WITH statements are allowed.", err.Error())

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, RuleStatementType, verr.Rule)

	assert.Error(t, v.Validate("SELECTED_VIEW", ""))
}

func TestValidate_ForbiddenKeywords(t *testing.T) {
	v := newTestValidator()

	err := v.Validate("SELECT * FROM users; DELETE FROM users", "")
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, RuleForbiddenKeyword, verr.Rule)
	assert.Equal(t, "DELETE", verr.Keyword)
	assert.Contains(t, err.Error(), "DELETE")

	assert.Error(t, v.Validate("select 1; drop table users", ""))
	assert.Error(t, v.Validate("WITH d AS (delete from users returning *) SELECT * FROM d", ""))

	// Whole words only.
	require.NoError(t, v.Validate("SELECT created_at, last_update, is_deleted FROM users", ""))
	require.NoError(t, v.Validate("SELECT executed_by FROM orders", ""))
}

func TestValidate_MultipleStatements(t *testing.T) {
	v := newTestValidator()

	require.NoError(t, v.Validate("SELECT 1;", ""))
	require.NoError(t, v.Validate("SELECT * FROM users WHERE name = 'a;b;c';", ""))
	require.NoError(t, v.Validate(`SELECT * FROM users WHERE note = "x;y" AND tag = 'it''s;'`, ""))

	err := v.Validate("SELECT 1; SELECT 2;", "")
	require.Error(t, err)
	assert.Equal(t, "Multiple statements are not allowed.", err.Error())
}

func TestValidate_TableAccess(t *testing.T) {
	v := newTestValidator()

	err := v.Validate("SELECT * FROM secrets", "analytics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access denied")
	assert.Contains(t, err.Error(), "secrets")

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, RuleTableAccess, verr.Rule)
	assert.Equal(t, "secrets", verr.Table)

	assert.Error(t, v.Validate("SELECT * FROM users u JOIN payments p ON p.user_id = u.id", "analytics"))
	assert.Error(t, v.Validate("SELECT * FROM users, public.audit_log", "analytics"))
	require.NoError(t, v.Validate("SELECT * FROM users u JOIN orders o ON o.user_id = u.id", "analytics"))

	for _, sql := range []string{
		"SELECT * FROM /* c */ secrets",
		"SELECT * FROM -- c\n secrets",
		"SELECT * FROM/**/secrets",
		`SELECT * FROM"secrets"`,
		"SELECT * FROM users u JOIN/**/secrets s ON true",
		"SELECT * FROM (SELECT 1) x, secrets",
		"WITH secrets AS (SELECT * FROM secrets) SELECT * FROM secrets",
		"WITH audit_log AS (SELECT 1 AS id) SELECT * FROM audit_log",
		`SELECT * FROM users WHERE name = 'a\' UNION SELECT * FROM secrets --'`,
	} {
		err := v.Validate(sql, "analytics")
		require.Error(t, err, sql)
		assert.Contains(t, err.Error(), "Access denied", sql)
	}
	require.NoError(t, v.Validate("WITH recent AS (SELECT * FROM orders) SELECT * FROM recent", "analytics"))

	// No connection: permissive.
	require.NoError(t, v.Validate("SELECT * FROM secrets", ""))
	// ValidateStatement skips table access.
	require.NoError(t, v.ValidateStatement("SELECT * FROM secrets"))
}

func TestValidate_ColumnAccess(t *testing.T) {
	access := NewAccessControl(ConnectionPolicy{
		Name:          "crm",
		HiddenColumns: map[string][]string{"users": {"ssn"}},
	})
	v := NewValidator(Config{}, access)

	for _, sql := range []string{
		"SELECT ssn AS x FROM users",
		"SELECT u.SSN FROM users u",
		`SELECT "ssn" FROM users`,
		"SELECT upper(ssn) || '' AS tag FROM users",
		"SELECT * FROM (SELECT ssn AS x FROM users) t",
	} {
		err := v.Validate(sql, "crm")
		require.Error(t, err, sql)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), sql)
		assert.Equal(t, RuleColumnAccess, verr.Rule)
		assert.Equal(t, "users", verr.Table)
		assert.Equal(t, "ssn", verr.Column)
		assert.Equal(t, "Access denied: column 'ssn' of table 'users' is restricted.", err.Error())
	}

	// Star selects are redacted after execution, not rejected.
	require.NoError(t, v.Validate("SELECT * FROM users", "crm"))
	// Mentions in literals and comments do not count.
	require.NoError(t, v.Validate("SELECT id FROM users WHERE note = 'ssn' -- ssn", "crm"))
	// Columns are only hidden for the tables that declare them.
	require.NoError(t, v.Validate("SELECT ssn FROM applicants", "crm"))
	require.NoError(t, v.Validate("SELECT ssn AS x FROM users", ""))
}

func TestValidate_CustomConfig(t *testing.T) {
	v := NewValidator(Config{
		AllowedStatements: []string{"select", "with", "explain"},
		ForbiddenKeywords: []string{"pg_sleep"},
	}, nil)

	require.NoError(t, v.Validate("EXPLAIN SELECT 1", ""))
	err := v.Validate("SHOW TABLES", "")
	require.Error(t, err)
	assert.Equal(t, "Only SELECT, WITH and EXPLAIN statements are allowed.", err.Error())
	assert.Error(t, v.Validate("SELECT pg_sleep(10)", ""))
	// DELETE is not in the custom list.
	require.NoError(t, v.ValidateStatement("SELECT 1 AS delete_me"))
}

func TestExtractTables(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"simple", "SELECT * FROM users", []string{"users"}},
		{"alias and join", "SELECT * FROM users u LEFT JOIN orders o ON o.uid = u.id", []string{"users", "orders"}},
		{"qualified", `SELECT * FROM "public"."Users"`, []string{"public.Users"}},
		{"comma list", "SELECT * FROM a, b AS bb, c WHERE a.id = b.id", []string{"a", "b", "c"}},
		{"subquery", "SELECT * FROM (SELECT id FROM inner_t) x JOIN other o ON o.id = x.id", []string{"inner_t", "other"}},
		{"cte excluded", "WITH recent AS (SELECT * FROM orders) SELECT * FROM recent", []string{"orders"}},
		{"extract is not a table", "SELECT EXTRACT(YEAR FROM created_at) FROM orders", []string{"orders"}},
		{"literal ignored", "SELECT * FROM users WHERE note = 'from secrets'", []string{"users"}},
		{"dedup", "SELECT * FROM users JOIN users u2 ON true", []string{"users"}},
		{"block comment", "SELECT * FROM /* c */ secrets", []string{"secrets"}},
		{"line comment", "SELECT * FROM -- c\n secrets", []string{"secrets"}},
		{"empty comment", "SELECT * FROM/**/secrets", []string{"secrets"}},
		{"quoted without space", `SELECT * FROM"secrets"`, []string{"secrets"}},
		{"quoted with space in name", `SELECT * FROM "audit log" a`, []string{"audit log"}},
		{"join after comment", "SELECT * FROM users JOIN/**/secrets ON true", []string{"users", "secrets"}},
		{"comment hides literal quote", "SELECT * FROM users -- it's\nJOIN secrets s ON true", []string{"users", "secrets"}},
		{"source after subquery", "SELECT * FROM (SELECT 1) x, secrets", []string{"secrets"}},
		{"cte body reads the real table", "WITH secrets AS (SELECT * FROM secrets) SELECT * FROM secrets", []string{"secrets"}},
		{"cte scoped to its subquery", "SELECT * FROM (WITH secrets AS (SELECT 1 AS id) SELECT id FROM secrets) x, secrets", []string{"secrets"}},
		{"earlier cte used by later cte", "WITH a AS (SELECT * FROM orders), b AS (SELECT * FROM a) SELECT * FROM b", []string{"orders"}},
		{"recursive cte self reference", "WITH RECURSIVE t(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM t WHERE n < 5) SELECT * FROM t", nil},
		{"backslash in literal", `SELECT * FROM users WHERE name = 'a\' UNION SELECT * FROM secrets --'`, []string{"users", "secrets"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTables(tt.sql))
		})
	}
}

func TestStripCommentsAndLiterals(t *testing.T) {
	assert.Equal(t, "SELECT  , ", StripCommentsAndLiterals(`SELECT 'a;b' , "c;d"`))
	assert.Equal(t, "x  y", StripCommentsAndLiterals(`x 'it\'s' y`))
	assert.Equal(t, "x ", StripCommentsAndLiterals(`x 'unterminated; ;`))
	assert.Equal(t, "a   b", StripCommentsAndLiterals("a /* ; */ b"))
	assert.Equal(t, "a  b", StripCommentsAndLiterals("a -- ;\nb"))
	assert.Equal(t, "a  `x--y`", StripCommentsAndLiterals("a '--' `x--y`"))
}
