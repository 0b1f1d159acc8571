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
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql" // mysql
	_ "github.com/lib/pq"              // postgres

	"github.com/quarrydata/quarry/internal/sqlitedriver"
	"github.com/quarrydata/quarry/pkg/observability"
)

// Config selects the database holding learnings and patterns.
type Config struct {
	// Driver is sqlite, postgres or mysql.
	Driver string
	DSN    string

	// EncryptionKey opens a sqlite database through SQLCipher.
	EncryptionKey string
}

// Indexer is notified when knowledge items change, so derived search
// structures (embeddings) stay current.
type Indexer interface {
	IndexLearning(ctx context.Context, l *Learning) error
	IndexPattern(ctx context.Context, p *QueryPattern) error
	Remove(ctx context.Context, index Index, id string) error
}

// Store persists learnings and query patterns in a SQL database. Every write
// is a single-row statement.
type Store struct {
	db      *sql.DB
	dialect string

	mu       sync.RWMutex
	indexers []Indexer
}

// Open connects to the configured database and migrates it.
func Open(ctx context.Context, cfg Config, tracer observability.Tracer) (*Store, error) {
	dialect, driver, err := resolveDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if dialect == "sqlite" {
		if dsn, err = sqlitedriver.DSN(cfg.DSN, cfg.EncryptionKey); err != nil {
			return nil, err
		}
	} else if cfg.EncryptionKey != "" {
		return nil, fmt.Errorf("encryption_key is only supported for sqlite")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge database: %w", err)
	}
	if dialect == "sqlite" && sqlitedriver.IsMemory(dsn) {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping knowledge database: %w", err)
	}

	store, err := NewStore(ctx, db, dialect, tracer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore migrates db and wraps it.
func NewStore(ctx context.Context, db *sql.DB, dialect string, tracer observability.Tracer) (*Store, error) {
	migrator, err := NewMigrator(db, dialect, tracer)
	if err != nil {
		return nil, err
	}
	if err := migrator.MigrateUp(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate knowledge database: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

func resolveDriver(name string) (dialect, driver string, err error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return "sqlite", "sqlite3", nil
	case "postgres", "postgresql":
		return "postgres", "postgres", nil
	case "mysql":
		return "mysql", "mysql", nil
	default:
		return "", "", fmt.Errorf("unsupported knowledge driver: %s", name)
	}
}

// Dialect returns sqlite, postgres or mysql.
func (s *Store) Dialect() string {
	return s.dialect
}

// AddIndexer registers ix for change notifications.
func (s *Store) AddIndexer(ix Indexer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexers = append(s.indexers, ix)
}

func (s *Store) notify(fn func(Indexer) error) {
	s.mu.RLock()
	indexers := s.indexers
	s.mu.RUnlock()
	for _, ix := range indexers {
		// The row is already committed; a stale index only degrades ranking.
		if err := fn(ix); err != nil {
			zap.L().Warn("knowledge indexer failed", zap.Error(err))
		}
	}
}

func (s *Store) q(query string) string {
	return rebind(s.dialect, query)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const learningColumns = "id, title, description, category, sql_text, metadata, conn_name, created_at, updated_at"

const patternColumns = "id, name, question, sql_text, summary, tables_used, data_quality_notes, conn_name, created_at"

func prefixed(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLearning(row rowScanner, extra ...interface{}) (*Learning, error) {
	var (
		l                    Learning
		category, metadata   string
		createdAt, updatedAt int64
	)
	dest := append([]interface{}{&l.ID, &l.Title, &l.Description, &category, &l.SQL, &metadata, &l.Connection, &createdAt, &updatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	l.Category = Category(category)
	l.CreatedAt = time.UnixMilli(createdAt).UTC()
	l.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &l.Metadata); err != nil {
			return nil, fmt.Errorf("corrupt metadata for learning %s: %w", l.ID, err)
		}
	}
	return &l, nil
}

func scanPattern(row rowScanner, extra ...interface{}) (*QueryPattern, error) {
	var (
		p          QueryPattern
		tablesUsed string
		createdAt  int64
	)
	dest := append([]interface{}{&p.ID, &p.Name, &p.Question, &p.SQL, &p.Summary, &tablesUsed, &p.DataQualityNotes, &p.Connection, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	if tablesUsed != "" {
		if err := json.Unmarshal([]byte(tablesUsed), &p.TablesUsed); err != nil {
			return nil, fmt.Errorf("corrupt tables_used for pattern %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func marshalJSON(v interface{}, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveLearning inserts l, assigning ID and timestamps when unset.
func (s *Store) SaveLearning(ctx context.Context, l *Learning) error {
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("learning title is required")
	}
	if _, ok := ParseCategory(string(l.Category)); !ok {
		return fmt.Errorf("invalid learning category: %s", l.Category)
	}
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	metadata, err := marshalJSON(l.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO learnings (`+learningColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.Title, l.Description, string(l.Category), l.SQL, metadata, l.Connection,
		l.CreatedAt.UnixMilli(), l.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save learning: %w", err)
	}

	s.notify(func(ix Indexer) error { return ix.IndexLearning(ctx, l) })
	return nil
}

// GetLearning loads one learning.
func (s *Store) GetLearning(ctx context.Context, id string) (*Learning, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+learningColumns+` FROM learnings WHERE id = ?`), id)
	l, err := scanLearning(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("learning %s: %w", id, ErrNotFound)
	}
	return l, err
}

// FindLearning returns a learning with the same title, or the same non-empty
// SQL text. It returns ErrNotFound when neither exists.
func (s *Store) FindLearning(ctx context.Context, title, sqlText string) (*Learning, error) {
	query := `SELECT ` + learningColumns + ` FROM learnings WHERE title = ?`
	args := []interface{}{title}
	if strings.TrimSpace(sqlText) != "" {
		query += ` OR sql_text = ?`
		args = append(args, sqlText)
	}
	query += ` ORDER BY created_at LIMIT 1`

	l, err := scanLearning(s.db.QueryRowContext(ctx, s.q(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

// ListLearnings returns learnings newest first.
func (s *Store) ListLearnings(ctx context.Context, filter LearningFilter) ([]*Learning, error) {
	query := `SELECT ` + learningColumns + ` FROM learnings`
	var (
		where []string
		args  []interface{}
	)
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.Connection != "" {
		where = append(where, "conn_name = ?")
		args = append(args, filter.Connection)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	// Source lives in the metadata document, so paging happens after filtering.
	if filter.Source == "" && filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list learnings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var learnings []*Learning
	for rows.Next() {
		l, err := scanLearning(rows)
		if err != nil {
			return nil, err
		}
		if filter.Source != "" && l.Source() != filter.Source {
			continue
		}
		learnings = append(learnings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if filter.Source != "" {
		learnings = page(learnings, filter.Limit, filter.Offset)
	}
	return learnings, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// DeleteLearning removes one learning.
func (s *Store) DeleteLearning(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM learnings WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete learning: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("learning %s: %w", id, ErrNotFound)
	}
	s.notify(func(ix Indexer) error { return ix.Remove(ctx, IndexLearnings, id) })
	return nil
}

// TouchLearning records that a learning was served to the model:
// metadata.use_count is incremented and metadata.last_used_at set.
func (s *Store) TouchLearning(ctx context.Context, id string) error {
	l, err := s.GetLearning(ctx, id)
	if err != nil {
		return err
	}
	if l.Metadata == nil {
		l.Metadata = make(map[string]interface{})
	}
	count := 0
	switch v := l.Metadata["use_count"].(type) {
	case float64:
		count = int(v)
	case int:
		count = v
	}
	now := time.Now().UTC()
	l.Metadata["use_count"] = count + 1
	l.Metadata["last_used_at"] = now.Format(time.RFC3339)

	metadata, err := marshalJSON(l.Metadata, "{}")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`UPDATE learnings SET metadata = ? WHERE id = ?`), metadata, id)
	if err != nil {
		return fmt.Errorf("failed to update learning usage: %w", err)
	}
	return nil
}

// PruneLearnings deletes learnings created before cutoff and returns how
// many were removed.
func (s *Store) PruneLearnings(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.idsWhere(ctx, `SELECT id FROM learnings WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return s.deleteLearnings(ctx, ids)
}

// CollapseDuplicateLearnings keeps the oldest learning of every group
// sharing a title (case-insensitive) or a non-empty SQL text, deletes the
// rest and returns how many were removed.
func (s *Store) CollapseDuplicateLearnings(ctx context.Context) (int, error) {
	all, err := s.ListLearnings(ctx, LearningFilter{})
	if err != nil {
		return 0, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	seenTitle := make(map[string]bool)
	seenSQL := make(map[string]bool)
	var dupes []string
	for _, l := range all {
		title := strings.ToLower(strings.TrimSpace(l.Title))
		sqlKey := strings.TrimSpace(l.SQL)
		if seenTitle[title] || (sqlKey != "" && seenSQL[sqlKey]) {
			dupes = append(dupes, l.ID)
			continue
		}
		seenTitle[title] = true
		if sqlKey != "" {
			seenSQL[sqlKey] = true
		}
	}
	return s.deleteLearnings(ctx, dupes)
}

func (s *Store) idsWhere(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) deleteLearnings(ctx context.Context, ids []string) (int, error) {
	removed := 0
	for _, id := range ids {
		if err := s.DeleteLearning(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// SavePattern inserts p, assigning ID and CreatedAt when unset.
func (s *Store) SavePattern(ctx context.Context, p *QueryPattern) error {
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Question) == "" || strings.TrimSpace(p.SQL) == "" {
		return fmt.Errorf("pattern name, question and sql are required")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	tables, err := marshalJSON(p.TablesUsed, "[]")
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO query_patterns (`+patternColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Name, p.Question, p.SQL, p.Summary, tables, p.DataQualityNotes, p.Connection, p.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save query pattern: %w", err)
	}

	s.notify(func(ix Indexer) error { return ix.IndexPattern(ctx, p) })
	return nil
}

// GetPattern loads one pattern.
func (s *Store) GetPattern(ctx context.Context, id string) (*QueryPattern, error) {
	p, err := scanPattern(s.db.QueryRowContext(ctx, s.q(`SELECT `+patternColumns+` FROM query_patterns WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	return p, err
}

// ListPatterns returns patterns newest first. limit <= 0 returns all.
func (s *Store) ListPatterns(ctx context.Context, limit int) ([]*QueryPattern, error) {
	query := `SELECT ` + patternColumns + ` FROM query_patterns ORDER BY created_at DESC, id`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list query patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []*QueryPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// FindPatternByQuestion returns the pattern whose question equals question,
// ignoring case and surrounding whitespace.
func (s *Store) FindPatternByQuestion(ctx context.Context, question string) (*QueryPattern, error) {
	p, err := scanPattern(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+patternColumns+` FROM query_patterns WHERE LOWER(TRIM(question)) = ? LIMIT 1`),
		strings.ToLower(strings.TrimSpace(question))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// DeletePattern removes one pattern.
func (s *Store) DeletePattern(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM query_patterns WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete query pattern: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	s.notify(func(ix Indexer) error { return ix.Remove(ctx, IndexQueryPatterns, id) })
	return nil
}
