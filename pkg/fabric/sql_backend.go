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
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // mysql
	_ "github.com/lib/pq"              // postgres

	"github.com/quarrydata/quarry/internal/sqlitedriver"
)

// Supported dialects.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// ErrTableNotFound is returned by GetSchema for unknown tables.
var ErrTableNotFound = errors.New("table not found")

// SQLConfig describes how to open a SQL backend.
type SQLConfig struct {
	// Driver is the dialect: postgres, mysql or sqlite.
	Driver string
	DSN    string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLBackend implements ExecutionBackend over database/sql.
type SQLBackend struct {
	db      *sql.DB
	dialect string
}

// DriverName maps a dialect to its registered database/sql driver.
func DriverName(dialect string) (string, error) {
	switch strings.ToLower(dialect) {
	case DialectPostgres, "postgresql":
		return "postgres", nil
	case DialectMySQL:
		return "mysql", nil
	case DialectSQLite, "sqlite3":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported SQL dialect: %s", dialect)
	}
}

// CanonicalDialect normalizes dialect aliases.
func CanonicalDialect(dialect string) string {
	switch strings.ToLower(dialect) {
	case "postgresql":
		return DialectPostgres
	case "sqlite3":
		return DialectSQLite
	default:
		return strings.ToLower(dialect)
	}
}

// OpenSQL opens and pings a SQL backend.
func OpenSQL(ctx context.Context, cfg SQLConfig) (*SQLBackend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	driver, err := DriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch {
	case driver == "sqlite3" && sqlitedriver.IsMemory(cfg.DSN):
		db.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewSQLBackend(db, cfg.Driver), nil
}

// NewSQLBackend wraps an open database handle.
func NewSQLBackend(db *sql.DB, dialect string) *SQLBackend {
	return &SQLBackend{db: db, dialect: CanonicalDialect(dialect)}
}

func (b *SQLBackend) Name() string {
	return b.dialect
}

// DB exposes the underlying handle.
func (b *SQLBackend) DB() *sql.DB {
	return b.db
}

func (b *SQLBackend) ExecuteQuery(ctx context.Context, query string, maxRows int) (*QueryResult, error) {
	start := time.Now()

	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	cols := make([]Column, len(columns))
	for i, col := range columns {
		nullable, _ := columnTypes[i].Nullable()
		cols[i] = Column{
			Name:     col,
			Type:     columnTypes[i].DatabaseTypeName(),
			Nullable: nullable,
		}
	}

	resultRows := make([]map[string]interface{}, 0)
	total := 0
	for rows.Next() {
		total++
		if maxRows > 0 && len(resultRows) >= maxRows {
			continue
		}
		row, err := scanRow(rows, columns)
		if err != nil {
			return nil, err
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	return &QueryResult{
		Rows:      resultRows,
		Columns:   cols,
		RowCount:  len(resultRows),
		TotalRows: total,
		Truncated: total > len(resultRows),
		ExecutionStats: ExecutionStats{
			DurationMs: time.Since(start).Milliseconds(),
		},
	}, nil
}

func scanRow(rows *sql.Rows, columns []string) (map[string]interface{}, error) {
	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range columns {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	row := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		// Text columns come back as []byte from most drivers
		if b, ok := values[i].([]byte); ok {
			row[col] = string(b)
		} else {
			row[col] = values[i]
		}
	}
	return row, nil
}

func (b *SQLBackend) GetSchema(ctx context.Context, table string) (*Schema, error) {
	var (
		fields []Field
		rels   []Relationship
		err    error
	)
	switch b.dialect {
	case DialectPostgres:
		fields, err = b.postgresColumns(ctx, table)
		if err == nil {
			rels, err = b.queryRelationships(ctx, postgresForeignKeys, table, table)
		}
	case DialectMySQL:
		fields, err = b.mysqlColumns(ctx, table)
		if err == nil {
			rels, err = b.queryRelationships(ctx, mysqlForeignKeys, table, table)
		}
	case DialectSQLite:
		fields, err = b.sqliteColumns(ctx, table)
		if err == nil {
			rels, err = b.queryRelationships(ctx, sqliteForeignKeys, table, table)
		}
	default:
		return nil, fmt.Errorf("schema introspection not supported for %s", b.dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schema for %s: %w", table, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	schema := &Schema{Name: table, Type: "table", Fields: fields}
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		byName[strings.ToLower(f.Name)] = i
	}
	for _, rel := range rels {
		if strings.EqualFold(rel.FromTable, table) {
			if i, ok := byName[strings.ToLower(rel.FromColumn)]; ok {
				schema.Fields[i].ForeignKey = &ForeignKey{
					ReferencedTable:  rel.ToTable,
					ReferencedColumn: rel.ToColumn,
				}
			}
			continue
		}
		schema.ReferencedBy = append(schema.ReferencedBy, rel)
	}
	return schema, nil
}

const postgresColumns = `
SELECT c.column_name, c.data_type, c.is_nullable, c.column_default,
       COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position), ''),
       EXISTS (
           SELECT 1 FROM information_schema.table_constraints tc
           JOIN information_schema.key_column_usage kcu
             ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
           WHERE tc.constraint_type = 'PRIMARY KEY'
             AND tc.table_schema = c.table_schema AND tc.table_name = c.table_name
             AND kcu.column_name = c.column_name
       )
FROM information_schema.columns c
WHERE c.table_schema = current_schema() AND c.table_name = $1
ORDER BY c.ordinal_position`

const postgresForeignKeys = `
SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = current_schema()
  AND (kcu.table_name = $1 OR ccu.table_name = $2)
ORDER BY kcu.table_name, kcu.column_name`

const mysqlColumns = `
SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT, COLUMN_COMMENT, COLUMN_KEY = 'PRI'
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`

const mysqlForeignKeys = `
SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
FROM information_schema.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = DATABASE() AND REFERENCED_TABLE_NAME IS NOT NULL
  AND (TABLE_NAME = ? OR REFERENCED_TABLE_NAME = ?)
ORDER BY TABLE_NAME, COLUMN_NAME`

const sqliteColumns = `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`

const sqliteForeignKeys = `
SELECT m.name, p."from", p."table", p."to"
FROM sqlite_master m JOIN pragma_foreign_key_list(m.name) p
WHERE m.type = 'table'
  AND (m.name = ? COLLATE NOCASE OR p."table" = ? COLLATE NOCASE)
ORDER BY m.name, p."from"`

func (b *SQLBackend) postgresColumns(ctx context.Context, table string) ([]Field, error) {
	return b.informationSchemaColumns(ctx, postgresColumns, table)
}

func (b *SQLBackend) mysqlColumns(ctx context.Context, table string) ([]Field, error) {
	return b.informationSchemaColumns(ctx, mysqlColumns, table)
}

func (b *SQLBackend) informationSchemaColumns(ctx context.Context, query, table string) ([]Field, error) {
	rows, err := b.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var fields []Field
	for rows.Next() {
		var (
			name, dataType, nullable string
			defaultVal, description  sql.NullString
			primaryKey               bool
		)
		if err := rows.Scan(&name, &dataType, &nullable, &defaultVal, &description, &primaryKey); err != nil {
			return nil, err
		}
		field := Field{
			Name:        name,
			Type:        dataType,
			Description: description.String,
			Nullable:    nullable == "YES",
			PrimaryKey:  primaryKey,
		}
		if defaultVal.Valid {
			field.Default = defaultVal.String
		}
		fields = append(fields, field)
	}
	return fields, rows.Err()
}

func (b *SQLBackend) sqliteColumns(ctx context.Context, table string) ([]Field, error) {
	rows, err := b.db.QueryContext(ctx, sqliteColumns, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var fields []Field
	for rows.Next() {
		var (
			name, colType string
			notNull, pk   int
			defaultVal    sql.NullString
		)
		if err := rows.Scan(&name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		field := Field{
			Name:       name,
			Type:       colType,
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
		}
		if defaultVal.Valid {
			field.Default = defaultVal.String
		}
		fields = append(fields, field)
	}
	return fields, rows.Err()
}

func (b *SQLBackend) queryRelationships(ctx context.Context, query string, args ...interface{}) ([]Relationship, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rels []Relationship
	for rows.Next() {
		var (
			rel      Relationship
			toColumn sql.NullString // sqlite leaves it NULL for implicit primary keys
		)
		if err := rows.Scan(&rel.FromTable, &rel.FromColumn, &rel.ToTable, &toColumn); err != nil {
			return nil, err
		}
		rel.ToColumn = toColumn.String
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

func (b *SQLBackend) ListResources(ctx context.Context) ([]Resource, error) {
	var query string
	switch b.dialect {
	case DialectPostgres:
		query = `SELECT table_name, table_type FROM information_schema.tables WHERE table_schema = current_schema()`
	case DialectMySQL:
		query = `SELECT TABLE_NAME, TABLE_TYPE FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE()`
	case DialectSQLite:
		query = `SELECT name, type FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'`
	default:
		return nil, fmt.Errorf("resource listing not supported for %s", b.dialect)
	}

	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var resources []Resource
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		resources = append(resources, Resource{Name: name, Type: resourceType(typ)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].Name < resources[j].Name })
	return resources, nil
}

func resourceType(raw string) string {
	if strings.Contains(strings.ToLower(raw), "view") {
		return "view"
	}
	return "table"
}

func (b *SQLBackend) SampleRows(ctx context.Context, table string, n int) ([]map[string]interface{}, error) {
	if n <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", b.QuoteIdentifier(table), n)
	result, err := b.ExecuteQuery(ctx, query, n)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

// QuoteIdentifier quotes a table name for the backend's dialect.
func (b *SQLBackend) QuoteIdentifier(name string) string {
	if b.dialect == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (b *SQLBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *SQLBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
