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
	"fmt"
	"strings"
)

// FulltextSearcher delegates ranking to the database's native text search:
// FTS5 bm25 on sqlite, ts_rank on postgres, MATCH ... AGAINST on mysql.
type FulltextSearcher struct {
	store *Store
}

// NewFulltextSearcher creates a full-text searcher.
func NewFulltextSearcher(store *Store) *FulltextSearcher {
	return &FulltextSearcher{store: store}
}

func (f *FulltextSearcher) Name() string { return DriverFulltext }

func (f *FulltextSearcher) Search(ctx context.Context, query string, index Index, limit int) ([]Hit, error) {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	sqlText, args, err := f.statement(index, tokens, limit)
	if err != nil {
		return nil, err
	}

	rows, err := f.store.db.QueryContext(ctx, f.store.q(sqlText), args...)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var score float64
		switch index {
		case IndexLearnings:
			l, err := scanLearning(rows, &score)
			if err != nil {
				return nil, err
			}
			hits = append(hits, Hit{Index: index, ID: l.ID, Score: score, Learning: l})
		case IndexQueryPatterns:
			p, err := scanPattern(rows, &score)
			if err != nil {
				return nil, err
			}
			hits = append(hits, Hit{Index: index, ID: p.ID, Score: score, Pattern: p})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankHits(hits, limit), nil
}

func (f *FulltextSearcher) statement(index Index, tokens []string, limit int) (string, []interface{}, error) {
	var table, columns, textExpr, matchCols string
	switch index {
	case IndexLearnings:
		table, columns = "learnings", learningColumns
		textExpr = "title || ' ' || description || ' ' || sql_text"
		matchCols = "title, description, sql_text"
	case IndexQueryPatterns:
		table, columns = "query_patterns", patternColumns
		textExpr = "name || ' ' || question || ' ' || summary || ' ' || sql_text"
		matchCols = "name, question, summary, sql_text"
	default:
		return "", nil, fmt.Errorf("unknown index: %s", index)
	}
	plain := strings.Join(tokens, " ")

	switch f.store.dialect {
	case "sqlite":
		// Quoted terms OR-ed together so punctuation in the question never
		// reaches the FTS5 query parser.
		terms := make([]string, len(tokens))
		for i, t := range tokens {
			terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
		}
		fts := table + "_fts"
		q := fmt.Sprintf(`SELECT %s, -%s.rank FROM %s JOIN %s t ON t.id = %s.id WHERE %s MATCH ? ORDER BY %s.rank LIMIT ?`,
			prefixed(columns, "t"), fts, fts, table, fts, fts, fts)
		return q, []interface{}{strings.Join(terms, " OR "), limit}, nil

	case "postgres":
		// OR semantics like the other dialects: any token may match.
		tsquery := strings.Join(tokens, " | ")
		q := fmt.Sprintf(`SELECT %s, ts_rank(to_tsvector('english', %s), to_tsquery('english', ?)) AS score
FROM %s WHERE to_tsvector('english', %s) @@ to_tsquery('english', ?)
ORDER BY score DESC LIMIT ?`, columns, textExpr, table, textExpr)
		return q, []interface{}{tsquery, tsquery, limit}, nil

	case "mysql":
		q := fmt.Sprintf(`SELECT %s, MATCH(%s) AGAINST (? IN NATURAL LANGUAGE MODE) AS score
FROM %s WHERE MATCH(%s) AGAINST (? IN NATURAL LANGUAGE MODE)
ORDER BY score DESC LIMIT ?`, columns, matchCols, table, matchCols)
		return q, []interface{}{plain, plain, limit}, nil

	default:
		return "", nil, fmt.Errorf("full-text search not supported for %s", f.store.dialect)
	}
}
