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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bagEngine embeds text as counts over a fixed vocabulary.
type bagEngine struct {
	vocab []string
	calls int
	fail  bool
}

func newBagEngine() *bagEngine {
	return &bagEngine{vocab: []string{"users", "signed", "week", "orders", "revenue", "status"}}
}

func (b *bagEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	b.calls++
	if b.fail {
		return nil, errors.New("engine down")
	}
	vec := make([]float32, len(b.vocab))
	for _, tok := range Tokenize(text) {
		for i, w := range b.vocab {
			if strings.HasPrefix(tok, w) {
				vec[i]++
			}
		}
	}
	return vec, nil
}

func (b *bagEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := b.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (b *bagEngine) Dimensions() int { return len(b.vocab) }
func (b *bagEngine) Name() string    { return "bag:test" }

func seedKnowledge(t *testing.T, store *Store) (signups, revenue *QueryPattern, status *Learning) {
	t.Helper()
	ctx := context.Background()
	signups = &QueryPattern{
		Name:       "Weekly signups",
		Question:   "How many users signed up this week?",
		SQL:        "SELECT COUNT(*) FROM users WHERE created_at >= date('now', '-7 days')",
		Summary:    "Counts new users.",
		TablesUsed: []string{"users"},
	}
	revenue = &QueryPattern{
		Name:       "Monthly revenue",
		Question:   "What was revenue last month?",
		SQL:        "SELECT SUM(amount) FROM orders",
		Summary:    "Sums order amounts.",
		TablesUsed: []string{"orders"},
	}
	status = &Learning{
		Title:       "orders.status values",
		Description: "Status is one of pending, paid or refunded.",
		Category:    CategoryDataQuality,
	}
	require.NoError(t, store.SavePattern(ctx, signups))
	require.NoError(t, store.SavePattern(ctx, revenue))
	require.NoError(t, store.SaveLearning(ctx, status))
	return signups, revenue, status
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"users", "signed", "week"}, Tokenize("How many users signed up this week?"))
	assert.Equal(t, []string{"created_at"}, Tokenize("the created_at, created_at"))
	assert.Empty(t, Tokenize("a an the"))
	assert.True(t, IsStopword("the"))
}

func TestKeywordScore(t *testing.T) {
	assert.InDelta(t, 1.0, KeywordScore([]string{"users"}, []string{"users", "week"}), 1e-9)
	assert.InDelta(t, 0.5, KeywordScore([]string{"user"}, []string{"users", "week"}), 1e-9)
	assert.Zero(t, KeywordScore([]string{"revenue"}, []string{"users"}))
	assert.Zero(t, KeywordScore(nil, []string{"users"}))
}

func TestKeywordSearcher(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	signups, _, status := seedKnowledge(t, store)

	s, err := NewSearcher("", store, SearcherOptions{})
	require.NoError(t, err)
	assert.Equal(t, DriverKeyword, s.Name())

	hits, err := s.Search(ctx, "users who signed up this week", IndexQueryPatterns, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, signups.ID, hits[0].ID)
	assert.NotNil(t, hits[0].Pattern)

	all, err := SearchAll(ctx, s, "order status", 5)
	require.NoError(t, err)
	require.NotEmpty(t, all[IndexLearnings])
	assert.Equal(t, status.ID, all[IndexLearnings][0].ID)

	hits, err = s.Search(ctx, "the a of", IndexLearnings, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = s.Search(ctx, "users", Index("tables"), 5)
	assert.Error(t, err)
}

func TestFulltextSearcher_SQLite(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, revenue, status := seedKnowledge(t, store)

	s, err := NewSearcher(DriverFulltext, store, SearcherOptions{})
	require.NoError(t, err)

	hits, err := s.Search(ctx, "what was the revenue?", IndexQueryPatterns, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, revenue.ID, hits[0].ID)
	assert.Greater(t, hits[0].Score, 0.0)

	hits, err = s.Search(ctx, `refunded "orders"`, IndexLearnings, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, status.ID, hits[0].ID)

	// Deleted rows leave the index through the trigger.
	require.NoError(t, store.DeleteLearning(ctx, status.ID))
	hits, err = s.Search(ctx, "refunded", IndexLearnings, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorSearcher(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	engine := newBagEngine()

	_, err := NewSearcher(DriverVector, store, SearcherOptions{})
	assert.ErrorContains(t, err, "embedding engine")

	s, err := NewSearcher(DriverVector, store, SearcherOptions{Engine: engine, MinSimilarity: 0.3})
	require.NoError(t, err)
	signups, revenue, status := seedKnowledge(t, store)

	hits, err := s.Search(ctx, "users signed up", IndexQueryPatterns, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, signups.ID, hits[0].ID)
	assert.NotNil(t, hits[0].Pattern)

	hits, err = s.Search(ctx, "revenue from orders", IndexQueryPatterns, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, revenue.ID, hits[0].ID)

	require.NoError(t, store.DeleteLearning(ctx, status.ID))
	hits, err = s.Search(ctx, "orders status", IndexLearnings, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorSearcher_Backfill(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedKnowledge(t, store)

	vs := NewVectorSearcher(store, newBagEngine(), 0)
	n, err := vs.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = vs.Backfill(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVectorSearcher_IndexFailureDoesNotFailSave(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	engine := newBagEngine()
	engine.fail = true
	store.AddIndexer(NewVectorSearcher(store, engine, 0))

	l := &Learning{Title: "still saved", Category: CategorySchemaFix}
	require.NoError(t, store.SaveLearning(ctx, l))
	assert.Equal(t, 1, engine.calls)

	_, err := store.GetLearning(ctx, l.ID)
	assert.NoError(t, err)
}

func TestNewSearcher_UnknownDriver(t *testing.T) {
	_, err := NewSearcher("magic", newTestStore(t), SearcherOptions{})
	assert.ErrorContains(t, err, "unknown search driver")
}
