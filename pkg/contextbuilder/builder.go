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

// Package contextbuilder assembles the context block of the system prompt:
// documented schema, business rules, similar past queries, learnings and
// live schema for tables the question mentions.
package contextbuilder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quarrydata/quarry/pkg/catalog"
	"github.com/quarrydata/quarry/pkg/fabric"
	"github.com/quarrydata/quarry/pkg/guardrails"
	"github.com/quarrydata/quarry/pkg/knowledge"
	"github.com/quarrydata/quarry/pkg/observability"
)

// Section headings, in render order.
const (
	HeadingSchema     = "DATABASE SCHEMA"
	HeadingRules      = "BUSINESS RULES"
	HeadingPatterns   = "SIMILAR QUERY EXAMPLES"
	HeadingLearnings  = "RELEVANT LEARNINGS"
	HeadingLiveSchema = "LIVE SCHEMA"
)

// trimOrder lists the sections dropped first when over budget. Schema and
// rules are never trimmed.
var trimOrder = []string{HeadingLiveSchema, HeadingLearnings, HeadingPatterns}

// Section is one rendered part of the context.
type Section struct {
	Heading string
	Body    string
	Tokens  int
}

// Context is the assembled context block.
type Context struct {
	Sections []Section

	// MentionedTables are the live-schema tables matched in the question.
	MentionedTables []string

	// Patterns and Learnings are the search hits rendered, before trimming.
	Patterns  []*knowledge.QueryPattern
	Learnings []*knowledge.Learning

	// Trimmed names sections dropped to fit the token budget.
	Trimmed []string

	Tokens int
}

// String renders every section as "## HEADING" followed by its body.
func (c *Context) String() string {
	if c == nil {
		return ""
	}
	parts := make([]string, 0, len(c.Sections))
	for _, s := range c.Sections {
		parts = append(parts, "## "+s.Heading+"\n\n"+s.Body)
	}
	return strings.Join(parts, "\n\n")
}

// Has reports whether the heading is present.
func (c *Context) Has(heading string) bool {
	for _, s := range c.Sections {
		if s.Heading == heading {
			return true
		}
	}
	return false
}

// Options tunes the builder.
type Options struct {
	// PatternsLimit and LearningsLimit cap search hits (default 3 and 5).
	PatternsLimit  int
	LearningsLimit int

	// MaxTokens bounds the rendered context; 0 disables the budget.
	MaxTokens int

	// DisableLiveSchema skips introspection of mentioned tables.
	DisableLiveSchema bool
}

// Builder assembles contexts. All collaborators are optional; a missing one
// leaves its section out.
type Builder struct {
	catalog     *catalog.Library
	access      *guardrails.AccessControl
	searcher    knowledge.Searcher
	connections *fabric.Connections
	tracer      observability.Tracer
	opts        Options
	counter     *TokenCounter
}

// New creates a builder.
func New(lib *catalog.Library, access *guardrails.AccessControl, searcher knowledge.Searcher,
	connections *fabric.Connections, opts Options) *Builder {
	if opts.PatternsLimit <= 0 {
		opts.PatternsLimit = 3
	}
	if opts.LearningsLimit <= 0 {
		opts.LearningsLimit = 5
	}
	return &Builder{
		catalog:     lib,
		access:      access,
		searcher:    searcher,
		connections: connections,
		tracer:      observability.NewNoOpTracer(),
		opts:        opts,
		counter:     GetTokenCounter(),
	}
}

// WithTracer sets the tracer.
func (b *Builder) WithTracer(tracer observability.Tracer) *Builder {
	if tracer != nil {
		b.tracer = tracer
	}
	return b
}

// Build assembles the full context for question on connection. Search and
// introspection failures are logged and leave their section out; a question
// can still be answered without them.
func (b *Builder) Build(ctx context.Context, question, connection string) (*Context, error) {
	ctx, span := b.tracer.StartSpan(ctx, observability.SpanContextBuild,
		observability.WithAttribute(observability.AttrConnection, connection))
	defer b.tracer.EndSpan(span)

	connection = b.resolveConnection(connection)
	out := &Context{}

	b.add(out, HeadingSchema, b.renderSchema(connection))
	b.add(out, HeadingRules, b.renderRules())

	if b.searcher != nil && strings.TrimSpace(question) != "" {
		out.Patterns = b.searchPatterns(ctx, question, connection)
		b.add(out, HeadingPatterns, renderPatterns(out.Patterns))

		out.Learnings = b.searchLearnings(ctx, question, connection)
		b.add(out, HeadingLearnings, renderLearnings(out.Learnings))
	}

	if !b.opts.DisableLiveSchema && b.connections != nil {
		tables, body := b.renderLiveSchema(ctx, question, connection)
		out.MentionedTables = tables
		b.add(out, HeadingLiveSchema, body)
	}

	b.enforceBudget(out)

	span.SetAttribute("context.sections", len(out.Sections))
	span.SetAttribute("context.tokens", out.Tokens)
	return out, nil
}

// BuildMinimal assembles schema and rules only, with no search or
// introspection.
func (b *Builder) BuildMinimal(ctx context.Context, connection string) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	connection = b.resolveConnection(connection)
	out := &Context{}
	b.add(out, HeadingSchema, b.renderSchema(connection))
	b.add(out, HeadingRules, b.renderRules())
	return out, nil
}

func (b *Builder) resolveConnection(connection string) string {
	if connection == "" && b.connections != nil {
		return b.connections.Default()
	}
	return connection
}

func (b *Builder) add(out *Context, heading, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	tokens := b.counter.CountTokens("## " + heading + "\n\n" + body)
	out.Sections = append(out.Sections, Section{Heading: heading, Body: body, Tokens: tokens})
	out.Tokens += tokens
}

func (b *Builder) enforceBudget(out *Context) {
	if b.opts.MaxTokens <= 0 {
		return
	}
	for _, heading := range trimOrder {
		if out.Tokens <= b.opts.MaxTokens {
			return
		}
		for i, s := range out.Sections {
			if s.Heading == heading {
				out.Sections = append(out.Sections[:i], out.Sections[i+1:]...)
				out.Tokens -= s.Tokens
				out.Trimmed = append(out.Trimmed, heading)
				break
			}
		}
	}
	if out.Tokens > b.opts.MaxTokens {
		zap.L().Warn("context exceeds token budget after trimming",
			zap.Int("tokens", out.Tokens),
			zap.Int("max_tokens", b.opts.MaxTokens))
	}
}

func (b *Builder) renderSchema(connection string) string {
	if b.catalog == nil {
		return ""
	}
	var sb strings.Builder
	for _, t := range b.catalog.Tables(connection) {
		if !b.access.IsTableAllowed(t.Name, connection) {
			continue
		}
		fmt.Fprintf(&sb, "### %s\n", t.Name)
		if t.Description != "" {
			sb.WriteString(t.Description + "\n")
		}
		for _, c := range t.Columns {
			if b.access.IsColumnHidden(t.Name, c.Name, connection) {
				continue
			}
			sb.WriteString("- " + c.Name)
			if c.Type != "" {
				sb.WriteString(" (" + c.Type + ")")
			}
			if c.Description != "" {
				sb.WriteString(": " + c.Description)
			}
			sb.WriteString("\n")
		}
		for _, r := range t.Relationships {
			if b.access.IsColumnHidden(t.Name, r.Column, connection) {
				continue
			}
			target, _, _ := strings.Cut(r.References, ".")
			if !b.access.IsTableAllowed(target, connection) {
				continue
			}
			fmt.Fprintf(&sb, "- %s -> %s", r.Column, r.References)
			if r.Description != "" {
				sb.WriteString(": " + r.Description)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *Builder) renderRules() string {
	if b.catalog == nil {
		return ""
	}
	var sb strings.Builder
	for _, r := range b.catalog.Rules() {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", r.Kind, r.Name, r.Description)
		if r.SQL != "" {
			fmt.Fprintf(&sb, "  SQL: %s\n", r.SQL)
		}
	}
	return sb.String()
}

func (b *Builder) searchPatterns(ctx context.Context, question, connection string) []*knowledge.QueryPattern {
	var out []*knowledge.QueryPattern
	hits := b.searchFiltered(ctx, question, knowledge.IndexQueryPatterns, b.opts.PatternsLimit, func(h knowledge.Hit) bool {
		return h.Pattern != nil && sameConnection(h.Pattern.Connection, connection)
	})
	for _, h := range hits {
		out = append(out, h.Pattern)
	}
	return out
}

func (b *Builder) searchLearnings(ctx context.Context, question, connection string) []*knowledge.Learning {
	var out []*knowledge.Learning
	hits := b.searchFiltered(ctx, question, knowledge.IndexLearnings, b.opts.LearningsLimit, func(h knowledge.Hit) bool {
		return h.Learning != nil && sameConnection(h.Learning.Connection, connection)
	})
	for _, h := range hits {
		out = append(out, h.Learning)
	}
	return out
}

// maxSearchFetch bounds how far searchFiltered widens one search.
const maxSearchFetch = 100

// searchFiltered returns up to limit hits that pass keep. Hits for other
// connections only drop out after ranking, so a short page is searched
// again with a wider limit until it fills or the index runs out.
func (b *Builder) searchFiltered(ctx context.Context, question string, index knowledge.Index, limit int,
	keep func(knowledge.Hit) bool) []knowledge.Hit {
	fetch := limit
	for {
		hits, err := b.search(ctx, question, index, fetch)
		if err != nil {
			return nil
		}
		var out []knowledge.Hit
		for _, h := range hits {
			if !keep(h) {
				continue
			}
			out = append(out, h)
			if len(out) == limit {
				return out
			}
		}
		if len(hits) < fetch || fetch >= maxSearchFetch {
			return out
		}
		fetch = min(fetch*4, maxSearchFetch)
	}
}

func (b *Builder) search(ctx context.Context, question string, index knowledge.Index, limit int) ([]knowledge.Hit, error) {
	ctx, span := b.tracer.StartSpan(ctx, observability.SpanKnowledgeSearch,
		observability.WithAttribute("knowledge.index", string(index)),
		observability.WithAttribute("knowledge.driver", b.searcher.Name()))
	defer b.tracer.EndSpan(span)

	hits, err := b.searcher.Search(ctx, question, index, limit)
	if err != nil {
		span.RecordError(err)
		zap.L().Warn("knowledge search failed, section omitted",
			zap.String("index", string(index)),
			zap.Error(err))
		return nil, err
	}
	span.SetAttribute("knowledge.hits", len(hits))
	return hits, nil
}

// sameConnection keeps items recorded without a connection everywhere.
func sameConnection(itemConn, connection string) bool {
	return itemConn == "" || connection == "" || strings.EqualFold(itemConn, connection)
}

func renderPatterns(patterns []*knowledge.QueryPattern) string {
	var sb strings.Builder
	for _, p := range patterns {
		fmt.Fprintf(&sb, "Question: %s\n", p.Question)
		if p.Summary != "" {
			fmt.Fprintf(&sb, "Summary: %s\n", p.Summary)
		}
		fmt.Fprintf(&sb, "SQL:\n```sql\n%s\n```\n", strings.TrimSpace(p.SQL))
		if p.DataQualityNotes != "" {
			fmt.Fprintf(&sb, "Notes: %s\n", p.DataQualityNotes)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderLearnings(learnings []*knowledge.Learning) string {
	var sb strings.Builder
	for _, l := range learnings {
		fmt.Fprintf(&sb, "- [%s] %s", l.Category, l.Title)
		if l.Description != "" {
			sb.WriteString(": " + l.Description)
		}
		sb.WriteString("\n")
		if l.SQL != "" {
			fmt.Fprintf(&sb, "  SQL: %s\n", strings.TrimSpace(l.SQL))
		}
	}
	return sb.String()
}

func (b *Builder) renderLiveSchema(ctx context.Context, question, connection string) ([]string, string) {
	conn, err := b.connections.Get(connection)
	if err != nil {
		return nil, ""
	}
	resources, err := conn.Backend.ListResources(ctx)
	if err != nil {
		zap.L().Warn("live schema listing failed", zap.String("connection", conn.Name), zap.Error(err))
		return nil, ""
	}
	names := make([]string, 0, len(resources))
	for _, r := range resources {
		names = append(names, r.Name)
	}
	mentioned := b.access.AllowedOf(MentionedTables(question, names), conn.Name)

	var sb strings.Builder
	for _, table := range mentioned {
		schema, err := conn.Backend.GetSchema(ctx, table)
		if err != nil {
			zap.L().Warn("live schema introspection failed", zap.String("table", table), zap.Error(err))
			continue
		}
		fmt.Fprintf(&sb, "### %s\n", schema.Name)
		for _, f := range schema.Fields {
			if b.access.IsColumnHidden(table, f.Name, conn.Name) {
				continue
			}
			fmt.Fprintf(&sb, "- %s %s", f.Name, f.Type)
			if f.PrimaryKey {
				sb.WriteString(" PRIMARY KEY")
			}
			if !f.Nullable {
				sb.WriteString(" NOT NULL")
			}
			if f.ForeignKey != nil && b.access.IsTableAllowed(f.ForeignKey.ReferencedTable, conn.Name) {
				fmt.Fprintf(&sb, " REFERENCES %s(%s)", f.ForeignKey.ReferencedTable, f.ForeignKey.ReferencedColumn)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return mentioned, sb.String()
}
