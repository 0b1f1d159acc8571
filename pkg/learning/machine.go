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
package learning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/guardrails"
	"github.com/quarrydata/quarry/pkg/knowledge"
	"github.com/quarrydata/quarry/pkg/observability"
)

// ErrLearningDisabled is returned when learning is switched off.
var ErrLearningDisabled = errors.New("learning is disabled")

// Config gates learning.
type Config struct {
	// Enabled switches all learning on or off, manual saves included.
	Enabled bool

	// AutoSaveErrors stores a learning for every new run_sql failure.
	AutoSaveErrors bool
}

// Store is the part of the knowledge store the machine writes to.
type Store interface {
	FindLearning(ctx context.Context, title, sqlText string) (*knowledge.Learning, error)
	SaveLearning(ctx context.Context, l *knowledge.Learning) error
}

// ErrorContext describes a failed query.
type ErrorContext struct {
	Question   string
	SQL        string
	Error      string
	Connection string

	// Tables defaults to the tables referenced by SQL.
	Tables []string
}

// Machine records learnings from failed queries.
type Machine struct {
	store  Store
	cfg    Config
	tracer observability.Tracer
}

// NewMachine creates a learning machine over store.
func NewMachine(store Store, cfg Config, tracer observability.Tracer) *Machine {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &Machine{store: store, cfg: cfg, tracer: tracer}
}

// Enabled reports whether learning is on at all.
func (m *Machine) Enabled() bool {
	return m != nil && m.cfg.Enabled && m.store != nil
}

// LearnFromError stores a learning for ec unless auto-saving is off or an
// equivalent learning (same title or same SQL) exists. It returns the new
// learning, or nil when nothing was saved.
func (m *Machine) LearnFromError(ctx context.Context, ec ErrorContext) (*knowledge.Learning, error) {
	if !m.Enabled() || !m.cfg.AutoSaveErrors {
		return nil, nil
	}
	if strings.TrimSpace(ec.Error) == "" {
		return nil, nil
	}

	title := Title(ec.Error)
	existing, err := m.store.FindLearning(ctx, title, ec.SQL)
	if err == nil {
		zap.L().Debug("learning already recorded",
			zap.String("title", title),
			zap.String("existing_id", existing.ID))
		return nil, nil
	}
	if !errors.Is(err, knowledge.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing learning: %w", err)
	}

	tables := ec.Tables
	if len(tables) == 0 && ec.SQL != "" {
		tables = guardrails.ExtractTables(ec.SQL)
	}
	if tables == nil {
		tables = []string{}
	}

	category := Classify(ec.Error)
	l := &knowledge.Learning{
		Title:       title,
		Description: describe(category, ec),
		Category:    category,
		SQL:         ec.SQL,
		Connection:  ec.Connection,
		Metadata: map[string]interface{}{
			"source":     knowledge.SourceAutoLearned,
			"question":   ec.Question,
			"error":      ec.Error,
			"connection": ec.Connection,
			"tables":     tables,
		},
	}
	if err := m.store.SaveLearning(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to save learning: %w", err)
	}

	m.tracer.RecordMetric(observability.MetricLearningsCreated, 1, map[string]string{
		"category": string(category),
		"source":   knowledge.SourceAutoLearned,
	})
	zap.L().Info("learned from query error",
		zap.String("id", l.ID),
		zap.String("title", title),
		zap.String("category", string(category)))
	return l, nil
}

func describe(category knowledge.Category, ec ErrorContext) string {
	var sb strings.Builder
	switch category {
	case knowledge.CategorySchemaFix:
		sb.WriteString("The query referenced a table or column that does not exist. Check the schema before querying.")
	case knowledge.CategoryTypeError:
		sb.WriteString("The query compared or converted values of incompatible types. Check column types and cast explicitly.")
	case knowledge.CategoryQueryPattern:
		sb.WriteString("The query was malformed. Check syntax and grouping.")
	case knowledge.CategoryDataQuality:
		sb.WriteString("The query tripped over the data itself. Guard against nulls, zeros and constraint edges.")
	default:
		sb.WriteString("The query failed.")
	}
	sb.WriteString("\nError: " + strings.TrimSpace(ec.Error))
	if ec.Question != "" {
		sb.WriteString("\nQuestion: " + ec.Question)
	}
	return sb.String()
}
