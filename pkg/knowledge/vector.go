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
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/embedding"
)

// VectorSearcher ranks knowledge by cosine similarity between the query
// embedding and stored item embeddings. It is also an Indexer: the store
// keeps embeddings current as items are saved and deleted.
type VectorSearcher struct {
	store         *Store
	engine        embedding.Engine
	minSimilarity float64
}

// NewVectorSearcher creates a vector searcher. Hits below minSimilarity
// are dropped.
func NewVectorSearcher(store *Store, engine embedding.Engine, minSimilarity float64) *VectorSearcher {
	return &VectorSearcher{store: store, engine: engine, minSimilarity: minSimilarity}
}

func (v *VectorSearcher) Name() string { return DriverVector }

func (v *VectorSearcher) IndexLearning(ctx context.Context, l *Learning) error {
	return v.upsert(ctx, IndexLearnings, l.ID, learningText(l))
}

func (v *VectorSearcher) IndexPattern(ctx context.Context, p *QueryPattern) error {
	return v.upsert(ctx, IndexQueryPatterns, p.ID, patternText(p))
}

func (v *VectorSearcher) Remove(ctx context.Context, index Index, id string) error {
	_, err := v.store.db.ExecContext(ctx,
		v.store.q(`DELETE FROM embeddings WHERE item_index = ? AND item_id = ?`), string(index), id)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}

func (v *VectorSearcher) upsert(ctx context.Context, index Index, id, text string) error {
	vec, err := v.engine.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed %s %s: %w", index, id, err)
	}
	return v.store.saveEmbedding(ctx, index, id, v.engine.Name(), vec)
}

// Backfill embeds every item that has no embedding for the current engine
// and returns how many were embedded.
func (v *VectorSearcher) Backfill(ctx context.Context) (int, error) {
	embedded := 0
	for _, index := range Indexes {
		have, err := v.store.loadEmbeddings(ctx, index, v.engine.Name())
		if err != nil {
			return embedded, err
		}

		var ids, texts []string
		switch index {
		case IndexLearnings:
			learnings, err := v.store.ListLearnings(ctx, LearningFilter{})
			if err != nil {
				return embedded, err
			}
			for _, l := range learnings {
				if _, ok := have[l.ID]; !ok {
					ids = append(ids, l.ID)
					texts = append(texts, learningText(l))
				}
			}
		case IndexQueryPatterns:
			patterns, err := v.store.ListPatterns(ctx, 0)
			if err != nil {
				return embedded, err
			}
			for _, p := range patterns {
				if _, ok := have[p.ID]; !ok {
					ids = append(ids, p.ID)
					texts = append(texts, patternText(p))
				}
			}
		}
		if len(texts) == 0 {
			continue
		}

		vecs, err := v.engine.EmbedBatch(ctx, texts)
		if err != nil {
			return embedded, fmt.Errorf("failed to embed %s: %w", index, err)
		}
		for i, vec := range vecs {
			if err := v.store.saveEmbedding(ctx, index, ids[i], v.engine.Name(), vec); err != nil {
				return embedded, err
			}
			embedded++
		}
	}
	if embedded > 0 {
		zap.L().Info("knowledge embeddings backfilled",
			zap.Int("count", embedded),
			zap.String("engine", v.engine.Name()))
	}
	return embedded, nil
}

func (v *VectorSearcher) Search(ctx context.Context, query string, index Index, limit int) ([]Hit, error) {
	if _, ok := ParseIndex(string(index)); !ok {
		return nil, fmt.Errorf("unknown index: %s", index)
	}
	if query == "" {
		return nil, nil
	}

	queryVec, err := v.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	stored, err := v.store.loadEmbeddings(ctx, index, v.engine.Name())
	if err != nil {
		return nil, err
	}

	var scored []Hit
	for id, vec := range stored {
		sim, err := embedding.CosineSimilarity(queryVec, vec)
		if err != nil {
			// Dimension changed under the same engine name; skip stale rows.
			continue
		}
		if sim < v.minSimilarity {
			continue
		}
		scored = append(scored, Hit{Index: index, ID: id, Score: sim})
	}
	scored = rankHits(scored, limit)

	hits := make([]Hit, 0, len(scored))
	for _, h := range scored {
		switch index {
		case IndexLearnings:
			l, err := v.store.GetLearning(ctx, h.ID)
			if errors.Is(err, ErrNotFound) {
				continue
			} else if err != nil {
				return nil, err
			}
			h.Learning = l
		case IndexQueryPatterns:
			p, err := v.store.GetPattern(ctx, h.ID)
			if errors.Is(err, ErrNotFound) {
				continue
			} else if err != nil {
				return nil, err
			}
			h.Pattern = p
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func (s *Store) saveEmbedding(ctx context.Context, index Index, id, model string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM embeddings WHERE item_index = ? AND item_id = ?`), string(index), id); err != nil {
		return fmt.Errorf("failed to replace embedding: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO embeddings (item_index, item_id, model, vector) VALUES (?, ?, ?, ?)`),
		string(index), id, model, string(data)); err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	return tx.Commit()
}

func (s *Store) loadEmbeddings(ctx context.Context, index Index, model string) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT item_id, vector FROM embeddings WHERE item_index = ? AND model = ?`), string(index), model)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]float32)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			zap.L().Warn("skipping corrupt embedding", zap.String("id", id), zap.Error(err))
			continue
		}
		out[id] = vec
	}
	return out, rows.Err()
}
