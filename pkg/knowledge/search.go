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
	"sort"
	"strings"

	"github.com/quarrydata/quarry/pkg/embedding"
)

// Searcher ranks knowledge items of one index against a query.
type Searcher interface {
	// Search returns at most limit hits, best first.
	Search(ctx context.Context, query string, index Index, limit int) ([]Hit, error)

	// Name identifies the driver ("keyword", "fulltext", "vector").
	Name() string
}

// Search driver names.
const (
	DriverKeyword  = "keyword"
	DriverFulltext = "fulltext"
	DriverVector   = "vector"
)

// SearcherOptions configures NewSearcher.
type SearcherOptions struct {
	// Engine is required by the vector driver.
	Engine embedding.Engine

	// MinSimilarity drops vector hits below this cosine similarity.
	MinSimilarity float64
}

// NewSearcher builds the named driver over store. An empty name selects
// the keyword driver. The vector driver registers itself as an indexer.
func NewSearcher(driver string, store *Store, opts SearcherOptions) (Searcher, error) {
	switch strings.ToLower(driver) {
	case "", DriverKeyword:
		return NewKeywordSearcher(store), nil
	case DriverFulltext:
		return NewFulltextSearcher(store), nil
	case DriverVector:
		if opts.Engine == nil {
			return nil, fmt.Errorf("vector search requires an embedding engine")
		}
		vs := NewVectorSearcher(store, opts.Engine, opts.MinSimilarity)
		store.AddIndexer(vs)
		return vs, nil
	default:
		return nil, fmt.Errorf("unknown search driver: %s (want keyword, fulltext or vector)", driver)
	}
}

// SearchAll searches every index and returns the hits per index.
func SearchAll(ctx context.Context, s Searcher, query string, limit int) (map[Index][]Hit, error) {
	out := make(map[Index][]Hit, len(Indexes))
	for _, idx := range Indexes {
		hits, err := s.Search(ctx, query, idx, limit)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", idx, err)
		}
		out[idx] = hits
	}
	return out, nil
}

func rankHits(hits []Hit, limit int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// KeywordSearcher ranks by overlap between stopword-filtered tokens of the
// query and of each candidate. It needs no search support from the database.
type KeywordSearcher struct {
	store *Store
}

// NewKeywordSearcher creates a keyword searcher.
func NewKeywordSearcher(store *Store) *KeywordSearcher {
	return &KeywordSearcher{store: store}
}

func (k *KeywordSearcher) Name() string { return DriverKeyword }

func (k *KeywordSearcher) Search(ctx context.Context, query string, index Index, limit int) ([]Hit, error) {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	var hits []Hit
	switch index {
	case IndexLearnings:
		learnings, err := k.store.ListLearnings(ctx, LearningFilter{})
		if err != nil {
			return nil, err
		}
		for _, l := range learnings {
			if score := KeywordScore(queryTokens, Tokenize(learningText(l))); score > 0 {
				hits = append(hits, Hit{Index: index, ID: l.ID, Score: score, Learning: l})
			}
		}
	case IndexQueryPatterns:
		patterns, err := k.store.ListPatterns(ctx, 0)
		if err != nil {
			return nil, err
		}
		for _, p := range patterns {
			if score := KeywordScore(queryTokens, Tokenize(patternText(p))); score > 0 {
				hits = append(hits, Hit{Index: index, ID: p.ID, Score: score, Pattern: p})
			}
		}
	default:
		return nil, fmt.Errorf("unknown index: %s", index)
	}
	return rankHits(hits, limit), nil
}

// KeywordScore weighs each query token 2 for an exact candidate token match
// or 1 for a substring match either way, normalized by the larger token set.
func KeywordScore(queryTokens, candidateTokens []string) float64 {
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return 0
	}
	exact := make(map[string]bool, len(candidateTokens))
	for _, t := range candidateTokens {
		exact[t] = true
	}

	score := 0
	for _, q := range queryTokens {
		if exact[q] {
			score += 2
			continue
		}
		for _, c := range candidateTokens {
			if strings.Contains(c, q) || strings.Contains(q, c) {
				score++
				break
			}
		}
	}
	return float64(score) / float64(max(len(queryTokens), len(candidateTokens)))
}

func learningText(l *Learning) string {
	return l.Title + " " + l.Description
}

func patternText(p *QueryPattern) string {
	return p.Name + " " + p.Question + " " + p.Summary + " " + strings.Join(p.TablesUsed, " ")
}
