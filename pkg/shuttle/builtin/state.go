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
package builtin

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/quarrydata/quarry/pkg/fabric"
	"github.com/quarrydata/quarry/pkg/shuttle"
)

// QueryRecord is one run_sql call made while answering a question.
type QueryRecord struct {
	SQL        string `json:"sql"`
	Connection string `json:"connection,omitempty"`
	Success    bool   `json:"success"`
	RowCount   int    `json:"row_count"`
	Error      string `json:"error,omitempty"`
}

// RunState records the SQL executed while answering one question. The loop
// reads it to report the SQL and rows even when the model never repeats
// them in its answer. Safe for concurrent tool calls.
//
// Records are ordered by the executor's call sequence, not by completion,
// so parallel calls of one batch keep the order the model requested them in.
type RunState struct {
	mu         sync.Mutex
	lastSeq    int64
	lastSQL    string
	lastResult *fabric.QueryResult
	maxSeq     int64
	queries    []sequencedQuery
}

type sequencedQuery struct {
	seq int64
	rec QueryRecord
}

// NewRunState returns an empty state.
func NewRunState() *RunState {
	return &RunState{}
}

// RecordSuccess stores sql and its (already filtered) result. It becomes the
// latest result unless a call requested after it already succeeded.
func (s *RunState) RecordSuccess(ctx context.Context, sql, connection string, result *fabric.QueryResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := 0
	if result != nil {
		rows = result.RowCount
	}
	seq := s.insert(ctx, QueryRecord{
		SQL:        sql,
		Connection: connection,
		Success:    true,
		RowCount:   rows,
	})
	if seq >= s.lastSeq {
		s.lastSeq = seq
		s.lastSQL = sql
		s.lastResult = result
	}
}

// RecordFailure adds a failed query. The last successful result is kept.
func (s *RunState) RecordFailure(ctx context.Context, sql, connection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := QueryRecord{SQL: sql, Connection: connection}
	if err != nil {
		rec.Error = err.Error()
	}
	s.insert(ctx, rec)
}

// insert places rec by call sequence. Calls made outside an executor are
// sequenced after everything recorded so far. Callers hold s.mu.
func (s *RunState) insert(ctx context.Context, rec QueryRecord) int64 {
	seq, ok := shuttle.CallSeq(ctx)
	if !ok {
		seq = s.maxSeq + 1
	}
	s.maxSeq = max(s.maxSeq, seq)

	i := sort.Search(len(s.queries), func(i int) bool { return s.queries[i].seq > seq })
	s.queries = slices.Insert(s.queries, i, sequencedQuery{seq: seq, rec: rec})
	return seq
}

// LastSQL returns the most recent successful SQL, or "".
func (s *RunState) LastSQL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSQL
}

// LastResult returns the most recent successful result, or nil.
func (s *RunState) LastResult() *fabric.QueryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// Queries returns a copy of every recorded query in call order.
func (s *RunState) Queries() []QueryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QueryRecord, len(s.queries))
	for i, q := range s.queries {
		out[i] = q.rec
	}
	return out
}

// Reset clears the state.
func (s *RunState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeq, s.maxSeq = 0, 0
	s.lastSQL = ""
	s.lastResult = nil
	s.queries = nil
}
