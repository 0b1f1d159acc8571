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
package guardrails

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Validation rules reported in ValidationError.Rule.
const (
	RuleStatementType      = "statement_type"
	RuleForbiddenKeyword   = "forbidden_keyword"
	RuleMultipleStatements = "multiple_statements"
	RuleTableAccess        = "table_access"
	RuleColumnAccess       = "column_access"
)

// Defaults for the statement gate.
var (
	DefaultAllowedStatements = []string{"SELECT", "WITH"}
	DefaultForbiddenKeywords = []string{
		"DROP", "DELETE", "UPDATE", "INSERT", "ALTER", "CREATE",
		"TRUNCATE", "GRANT", "REVOKE", "EXEC", "EXECUTE",
	}
)

// ValidationError is returned when a statement is rejected before execution.
type ValidationError struct {
	Rule    string
	Message string
	Keyword string
	Table   string
	Column  string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SQLValidator gates SQL before it is executed or saved.
type SQLValidator interface {
	// Validate runs every check, including table access for connection.
	Validate(sql, connection string) error

	// ValidateStatement runs only the statement-type and keyword checks.
	ValidateStatement(sql string) error
}

// Config configures a Validator.
type Config struct {
	AllowedStatements []string
	ForbiddenKeywords []string
}

// Validator is the regex-based SQLValidator.
type Validator struct {
	allowed   []string
	forbidden []*keywordRule
	access    *AccessControl
}

type keywordRule struct {
	keyword string
	re      *regexp.Regexp
}

// NewValidator builds a validator. Empty config lists fall back to the
// defaults; a nil access control allows every table.
func NewValidator(cfg Config, access *AccessControl) *Validator {
	allowed := cfg.AllowedStatements
	if len(allowed) == 0 {
		allowed = DefaultAllowedStatements
	}
	forbidden := cfg.ForbiddenKeywords
	if len(forbidden) == 0 {
		forbidden = DefaultForbiddenKeywords
	}

	v := &Validator{access: access}
	for _, s := range allowed {
		v.allowed = append(v.allowed, strings.ToUpper(strings.TrimSpace(s)))
	}
	for _, kw := range forbidden {
		kw = strings.ToUpper(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		v.forbidden = append(v.forbidden, &keywordRule{
			keyword: kw,
			re:      regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`),
		})
	}
	return v
}

// Validate checks statement type, forbidden keywords, the multi-statement
// heuristic, table access and hidden-column references, in that order.
func (v *Validator) Validate(sql, connection string) error {
	if err := v.ValidateStatement(sql); err != nil {
		return err
	}

	n := max(
		strings.Count(scrub(sql, false, true), ";"),
		strings.Count(scrub(sql, false, false), ";"),
	)
	if n > 1 {
		return &ValidationError{
			Rule:    RuleMultipleStatements,
			Message: "Multiple statements are not allowed.",
		}
	}

	refs := scanReferences(sql)
	for _, table := range refs.tables {
		if !v.access.IsTableAllowed(table, connection) {
			return tableDenied(table)
		}
	}
	// A WITH name that shadows a denied table is rejected outright.
	for _, name := range refs.ctes {
		if v.access.IsTableDenied(name, connection) {
			return tableDenied(name)
		}
	}
	// Result redaction works on output names, which an alias or an
	// expression renames, so a hidden column may not be named at all.
	for _, table := range refs.tables {
		for _, col := range v.access.HiddenColumns(table, connection) {
			if _, named := refs.idents[strings.ToLower(col)]; named {
				return &ValidationError{
					Rule:    RuleColumnAccess,
					Table:   table,
					Column:  col,
					Message: fmt.Sprintf("Access denied: column '%s' of table '%s' is restricted.", col, table),
				}
			}
		}
	}
	return nil
}

func tableDenied(table string) *ValidationError {
	return &ValidationError{
		Rule:    RuleTableAccess,
		Table:   table,
		Message: fmt.Sprintf("Access denied: table '%s' is restricted.", table),
	}
}

// ValidateStatement checks the leading statement and forbidden keywords only.
// Saved query patterns go through this so they may document any table.
func (v *Validator) ValidateStatement(sql string) error {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	if !v.hasAllowedPrefix(upper) {
		return &ValidationError{
			Rule:    RuleStatementType,
			Message: fmt.Sprintf("Only %s statements are allowed.", joinWithAnd(v.allowed)),
		}
	}

	for _, rule := range v.forbidden {
		if rule.re.MatchString(sql) {
			return &ValidationError{
				Rule:    RuleForbiddenKeyword,
				Keyword: rule.keyword,
				Message: fmt.Sprintf("Forbidden keyword detected: %s", rule.keyword),
			}
		}
	}
	return nil
}

func (v *Validator) hasAllowedPrefix(upper string) bool {
	for _, prefix := range v.allowed {
		if !strings.HasPrefix(upper, prefix) {
			continue
		}
		// "SELECTED" is not "SELECT".
		rest := upper[len(prefix):]
		if rest == "" || !isIdentChar(rest[0]) {
			return true
		}
	}
	return false
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

func joinWithAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
// StripCommentsAndLiterals removes -- and /* */ comments along with single-
// and double-quoted literals, honoring doubled quotes and backslash escapes.
// Unterminated literals and comments run to the end of the input.
func StripCommentsAndLiterals(sql string) string {
	return scrub(sql, false, true)
}

// scrub replaces comments with a space and drops single-quoted literals.
// Double-quoted text is kept verbatim when keepIdents is set, since most
// dialects read it as an identifier. Backquoted identifiers are always kept.
// backslash selects whether \' escapes a quote inside a literal; dialects
// disagree, so callers that gate access scan both ways.
func scrub(sql string, keepIdents, backslash bool) string {
	var b strings.Builder
	b.Grow(len(sql))

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 3
			}
			b.WriteByte(' ')
		case c == '\'' || (c == '"' && !keepIdents):
			i = closingQuote(sql, i, backslash)
		case c == '"' || c == '`':
			end := closingQuote(sql, i, false)
			b.WriteString(sql[i:min(end+1, len(sql))])
			i = end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// closingQuote returns the index of the quote closing the literal opened at
// start, or len(sql) when it is unterminated.
func closingQuote(sql string, start int, backslash bool) int {
	quote := sql[start]
	for i := start + 1; i < len(sql); i++ {
		switch {
		case backslash && sql[i] == '\\' && i+1 < len(sql):
			i++
		case sql[i] == quote && i+1 < len(sql) && sql[i+1] == quote:
			i++
		case sql[i] == quote:
			return i
		}
	}
	return len(sql)
}

const identifier = `(?:"[^"]*"|\x60[^\x60]*\x60|\[[^\]]*\]|[\w$]+)`

var (
	tableRef = `(` + identifier + `(?:\s*\.\s*` + identifier + `){0,2})`

	singleTablePattern = regexp.MustCompile(`(?i)\b(?:JOIN|INTO|UPDATE)\b\s*` + tableRef)
	fromKeyword        = regexp.MustCompile(`(?i)\bFROM\b`)
	fromClauseEnd      = regexp.MustCompile(`(?i)^(?:WHERE|GROUP|ORDER|HAVING|LIMIT|OFFSET|FETCH|UNION|EXCEPT|INTERSECT|WINDOW|QUALIFY|RETURNING|INNER|LEFT|RIGHT|FULL|CROSS|NATURAL|OUTER|JOIN|ON|USING)\b`)
	leadingTable       = regexp.MustCompile(`^\s*` + tableRef)
	identifierPattern  = regexp.MustCompile(identifier)
	ctePattern         = regexp.MustCompile(`(?i)(?:\bWITH\b\s*(RECURSIVE\b\s*)?|,\s*)(` + identifier + `)\s*(?:\([^)]*\)\s*)?AS\s*(?:NOT\s+)?(?:MATERIALIZED\s+)?\(`)
)

// ExtractTables returns table identifiers referenced after FROM, JOIN, INTO
// and UPDATE, including comma-separated FROM lists. A name defined by a WITH
// clause is skipped wherever that definition is in scope, except inside its
// own non-recursive body where it still names the real table. Comments and
// literals are ignored. The result keeps first-seen order without duplicates.
func ExtractTables(sql string) []string {
	return scanReferences(sql).tables
}

type references struct {
	tables []string
	ctes   []string
	idents map[string]struct{}
}

// scanReferences runs the extraction under both backslash conventions and
// merges the results, so a literal that ends early in one dialect cannot hide
// a table from the other.
func scanReferences(sql string) references {
	out := references{idents: map[string]struct{}{}}
	seenTable := map[string]struct{}{}
	seenCTE := map[string]struct{}{}
	for _, backslash := range []bool{true, false} {
		src := scrub(sql, true, backslash)
		for _, tok := range identifierPattern.FindAllString(src, -1) {
			out.idents[strings.ToLower(strings.Trim(tok, "`\"[]"))] = struct{}{}
		}
		r := scanSource(src)
		for _, t := range r.tables {
			if _, dup := seenTable[NormalizeTable(t)]; !dup {
				seenTable[NormalizeTable(t)] = struct{}{}
				out.tables = append(out.tables, t)
			}
		}
		for _, c := range r.ctes {
			if _, dup := seenCTE[c]; !dup {
				seenCTE[c] = struct{}{}
				out.ctes = append(out.ctes, c)
			}
		}
	}
	return out
}

type cteDef struct {
	name                 string
	scopeStart, scopeEnd int
	bodyStart, bodyEnd   int
	recursive            bool
}

// shadows reports whether the definition hides a real table named like it
// at pos.
func (d cteDef) shadows(pos int) bool {
	if pos < d.scopeStart || pos >= d.scopeEnd {
		return false
	}
	return d.recursive || pos < d.bodyStart || pos > d.bodyEnd
}

func scanSource(src string) references {
	var (
		out  references
		defs []cteDef
	)
	recursiveScope := map[int]bool{}
	for _, m := range ctePattern.FindAllStringSubmatchIndex(src, -1) {
		name := NormalizeTable(src[m[4]:m[5]])
		scopeStart, scopeEnd := enclosingGroup(src, m[0])
		if strings.HasPrefix(strings.TrimSpace(src[m[0]:m[1]]), ",") {
			if _, open := recursiveScope[scopeStart]; !open {
				// A comma list outside any WITH clause.
				continue
			}
		} else {
			recursiveScope[scopeStart] = m[2] >= 0
		}
		open := m[1] - 1
		defs = append(defs, cteDef{
			name:       name,
			scopeStart: scopeStart,
			scopeEnd:   scopeEnd,
			bodyStart:  open,
			bodyEnd:    matchingParen(src, open),
			recursive:  recursiveScope[scopeStart],
		})
		if !slices.Contains(out.ctes, name) {
			out.ctes = append(out.ctes, name)
		}
	}

	seen := map[string]struct{}{}
	add := func(ref string, pos int) {
		name := NormalizeTable(ref)
		if name == "" || name == "lateral" {
			return
		}
		for _, d := range defs {
			if d.name == name && d.shadows(pos) {
				return
			}
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out.tables = append(out.tables, unquote.Replace(ref))
	}

	for _, idx := range fromKeyword.FindAllStringIndex(src, -1) {
		if !isQueryFrom(src, idx[0]) {
			continue
		}
		for _, part := range fromClauseParts(src, idx[1]) {
			text := src[part[0]:part[1]]
			if strings.HasPrefix(strings.TrimSpace(text), "(") {
				continue
			}
			if tm := leadingTable.FindStringSubmatchIndex(text); tm != nil {
				add(text[tm[2]:tm[3]], part[0]+tm[2])
			}
		}
	}
	for _, m := range singleTablePattern.FindAllStringSubmatchIndex(src, -1) {
		add(src[m[2]:m[3]], m[2])
	}
	return out
}

var unquote = strings.NewReplacer("`", "", `"`, "", "[", "", "]", "")

// fromClauseParts splits the FROM list starting at pos on top-level commas
// and returns the [start, end) span of each item. Parenthesized sources are
// stepped over whole so a comma after a subquery is still seen.
func fromClauseParts(src string, pos int) [][2]int {
	var parts [][2]int
	start, depth := pos, 0
	for i := pos; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"' || c == '`':
			i = closingQuote(src, i, false)
		case c == '(':
			depth++
		case c == ')':
			if depth == 0 {
				return append(parts, [2]int{start, i})
			}
			depth--
		case depth > 0:
		case c == ';':
			return append(parts, [2]int{start, i})
		case c == ',':
			parts = append(parts, [2]int{start, i})
			start = i + 1
		case isIdentChar(c) && (i == 0 || !isIdentChar(src[i-1])) && fromClauseEnd.MatchString(src[i:]):
			return append(parts, [2]int{start, i})
		}
	}
	return append(parts, [2]int{start, len(src)})
}

// enclosingGroup returns the span of the innermost parenthesized group
// around pos, or the whole input at the top level.
func enclosingGroup(src string, pos int) (int, int) {
	depth := 0
	for i := pos - 1; i >= 0; i-- {
		switch src[i] {
		case ')':
			depth++
		case '(':
			if depth == 0 {
				return i + 1, matchingParen(src, i)
			}
			depth--
		}
	}
	return 0, len(src)
}

// matchingParen returns the index of the parenthesis closing the one at
// open, or len(src) when it is unbalanced.
func matchingParen(src string, open int) int {
	depth := 0
	for i := open; i < len(src); i++ {
		switch src[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(src)
}

var (
	queryVerb      = regexp.MustCompile(`(?i)\b(?:SELECT|DELETE)\b`)
	distinctBefore = regexp.MustCompile(`(?i)\bDISTINCT\s*$`)
)

// isQueryFrom reports whether the FROM at pos belongs to a query rather than
// to EXTRACT(x FROM y), SUBSTRING(s FROM n) or IS DISTINCT FROM.
func isQueryFrom(src string, pos int) bool {
	start, depth := 0, 0
scan:
	for i := pos - 1; i >= 0; i-- {
		switch src[i] {
		case ')':
			depth++
		case '(':
			if depth == 0 {
				start = i + 1
				break scan
			}
			depth--
		}
	}
	segment := src[start:pos]
	if distinctBefore.MatchString(segment) {
		return false
	}
	return queryVerb.MatchString(segment)
}
