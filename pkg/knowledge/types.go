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

// Package knowledge persists learnings and validated query patterns and
// ranks them against a question.
package knowledge

import (
	"errors"
	"strings"
	"time"
)

// Category classifies a learning.
type Category string

const (
	CategoryTypeError     Category = "type_error"
	CategorySchemaFix     Category = "schema_fix"
	CategoryQueryPattern  Category = "query_pattern"
	CategoryDataQuality   Category = "data_quality"
	CategoryBusinessLogic Category = "business_logic"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryTypeError,
	CategorySchemaFix,
	CategoryQueryPattern,
	CategoryDataQuality,
	CategoryBusinessLogic,
}

// ParseCategory validates s.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Learning sources recorded in metadata["source"].
const (
	SourceManual      = "manual"
	SourceAutoLearned = "auto_learned"
)

// MaxTitleLength bounds learning titles and pattern names.
const MaxTitleLength = 100

// Learning is a persisted discovery about the data, an error or its fix.
type Learning struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Category    Category               `json:"category"`
	SQL         string                 `json:"sql,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Connection  string                 `json:"connection,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Source returns metadata["source"], if any.
func (l *Learning) Source() string {
	if s, ok := l.Metadata["source"].(string); ok {
		return s
	}
	return ""
}

// QueryPattern is a validated question to SQL mapping.
type QueryPattern struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Question         string    `json:"question"`
	SQL              string    `json:"sql"`
	Summary          string    `json:"summary"`
	TablesUsed       []string  `json:"tables_used"`
	DataQualityNotes string    `json:"data_quality_notes,omitempty"`
	Connection       string    `json:"connection,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Index names a searchable knowledge class.
type Index string

const (
	IndexQueryPatterns Index = "query_patterns"
	IndexLearnings     Index = "learnings"
)

// Indexes lists every searchable index.
var Indexes = []Index{IndexQueryPatterns, IndexLearnings}

// ParseIndex validates s.
func ParseIndex(s string) (Index, bool) {
	for _, idx := range Indexes {
		if string(idx) == s {
			return idx, true
		}
	}
	return "", false
}

// Hit is one ranked search result. Exactly one of Learning and Pattern is set.
type Hit struct {
	Index    Index
	ID       string
	Score    float64
	Learning *Learning
	Pattern  *QueryPattern
}

// LearningFilter narrows ListLearnings. Zero values mean no restriction.
type LearningFilter struct {
	Category   Category
	Connection string
	Source     string
	Limit      int
	Offset     int
}

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
)
