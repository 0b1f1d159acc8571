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

// Package builtin provides the database tools the agent calls: run_sql,
// introspect_schema, search_knowledge, save_learning and
// save_validated_query.
//
// Tools that remember what happened during a question (the last SQL, its
// rows) keep that in a RunState. A Toolset, with its own RunState and
// registry, is built for every question so concurrent questions never see
// each other's queries:
//
//	ts := builtin.NewToolset(deps, question)
//	executor := shuttle.NewExecutor(ts.Registry)
//	...
//	sql := ts.State.LastSQL()
package builtin

import (
	"context"

	"github.com/quarrydata/quarry/pkg/fabric"
	"github.com/quarrydata/quarry/pkg/guardrails"
	"github.com/quarrydata/quarry/pkg/knowledge"
	"github.com/quarrydata/quarry/pkg/learning"
	"github.com/quarrydata/quarry/pkg/shuttle"
)

// Tool names.
const (
	ToolRunSQL             = "run_sql"
	ToolIntrospectSchema   = "introspect_schema"
	ToolSearchKnowledge    = "search_knowledge"
	ToolSaveLearning       = "save_learning"
	ToolSaveValidatedQuery = "save_validated_query"
)

// Error codes returned by the built-in tools.
const (
	CodeValidationFailed  = "validation_failed"
	CodeExecutionFailed   = "execution_failed"
	CodeAccessDenied      = "access_denied"
	CodeTableNotFound     = "table_not_found"
	CodeUnknownConnection = "unknown_connection"
	CodeLearningDisabled  = "learning_disabled"
	CodeDuplicate         = "duplicate"
	CodeInvalidParams     = "invalid_params"
)

// Defaults applied by Settings.withDefaults.
const (
	DefaultMaxRows     = 1000
	DefaultSearchLimit = 5
	MaxSearchLimit     = 20
	MaxSampleRows      = 3
)

// Settings tune the tools.
type Settings struct {
	// MaxRows caps the rows run_sql returns. Zero means DefaultMaxRows.
	MaxRows int

	// LearningEnabled allows save_learning.
	LearningEnabled bool

	// SampleRows is how many rows introspect_schema samples, at most
	// MaxSampleRows.
	SampleRows int

	// DefaultConnection is used when a tool call names no connection.
	// Empty means the registry default.
	DefaultConnection string

	// SearchLimit is the search_knowledge limit when the model sends none.
	SearchLimit int
}

func (s Settings) withDefaults() Settings {
	if s.MaxRows <= 0 {
		s.MaxRows = DefaultMaxRows
	}
	if s.SampleRows <= 0 || s.SampleRows > MaxSampleRows {
		s.SampleRows = MaxSampleRows
	}
	if s.SearchLimit <= 0 {
		s.SearchLimit = DefaultSearchLimit
	}
	if s.SearchLimit > MaxSearchLimit {
		s.SearchLimit = MaxSearchLimit
	}
	return s
}

// KnowledgeStore is the part of the knowledge store the tools write to.
// *knowledge.Store implements it.
type KnowledgeStore interface {
	SaveLearning(ctx context.Context, l *knowledge.Learning) error
	TouchLearning(ctx context.Context, id string) error
	SavePattern(ctx context.Context, p *knowledge.QueryPattern) error
	FindPatternByQuestion(ctx context.Context, question string) (*knowledge.QueryPattern, error)
}

// Learner turns query failures into learnings. *learning.Machine
// implements it.
type Learner interface {
	LearnFromError(ctx context.Context, ec learning.ErrorContext) (*knowledge.Learning, error)
}

// Deps are the long-lived collaborators shared by every Toolset. Store,
// Searcher and Learner may be nil; the tools that need them then report
// that knowledge is unavailable.
type Deps struct {
	Connections *fabric.Connections
	Validator   guardrails.SQLValidator
	Access      *guardrails.AccessControl
	Store       KnowledgeStore
	Searcher    knowledge.Searcher
	Learner     Learner
	Settings    Settings
}

// Toolset is the set of built-in tools for one question.
type Toolset struct {
	State    *RunState
	Registry *shuttle.Registry
	Question string

	deps Deps
}

// NewToolset builds fresh tool instances, a fresh RunState and a fresh
// registry for question.
func NewToolset(deps Deps, question string) *Toolset {
	deps.Settings = deps.Settings.withDefaults()
	if deps.Validator == nil {
		deps.Validator = guardrails.NewValidator(guardrails.Config{}, deps.Access)
	}

	ts := &Toolset{
		State:    NewRunState(),
		Registry: shuttle.NewRegistry(),
		Question: question,
		deps:     deps,
	}
	for _, tool := range ts.Tools() {
		ts.Registry.Register(tool)
	}
	return ts
}

// Tools returns the toolset's tools in a stable order.
func (ts *Toolset) Tools() []shuttle.Tool {
	return []shuttle.Tool{
		&RunSQLTool{ts: ts},
		&IntrospectSchemaTool{ts: ts},
		&SearchKnowledgeTool{ts: ts},
		&SaveLearningTool{ts: ts},
		&SaveValidatedQueryTool{ts: ts},
	}
}

// Names returns the names of the built-in tools.
func Names() []string {
	return []string{
		ToolRunSQL,
		ToolIntrospectSchema,
		ToolSearchKnowledge,
		ToolSaveLearning,
		ToolSaveValidatedQuery,
	}
}

// connection resolves the connection a call targets.
func (ts *Toolset) connection(params map[string]interface{}) (*fabric.Connection, *shuttle.Result) {
	name := stringParam(params, "connection")
	if name == "" {
		name = ts.deps.Settings.DefaultConnection
	}
	if ts.deps.Connections == nil {
		return nil, shuttle.Failure(CodeUnknownConnection, "no database connection configured")
	}
	conn, err := ts.deps.Connections.Get(name)
	if err != nil {
		return nil, shuttle.Failure(CodeUnknownConnection, err.Error())
	}
	return conn, nil
}

func connectionSchema() *shuttle.JSONSchema {
	return shuttle.NewStringSchema("Connection name. Omit to use the default connection.")
}
