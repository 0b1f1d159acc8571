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

// Package guardrails holds the static checks every SQL statement passes before
// it reaches a database: statement-type and keyword gating, a multi-statement
// heuristic, and per-connection table and column access policy.
//
// The checks are regex heuristics, not a SQL parser. They sit behind the
// SQLValidator interface so a parser-backed implementation can replace them.
package guardrails

import (
	"strings"
)

// ConnectionPolicy is the static access policy of one logical database.
type ConnectionPolicy struct {
	Name        string
	Label       string
	Description string

	// AllowedTables is a whitelist. Empty means every table not denied.
	AllowedTables []string

	// DeniedTables always wins over AllowedTables.
	DeniedTables []string

	// HiddenColumns maps table name to columns that are never exposed.
	HiddenColumns map[string][]string
}

type compiledPolicy struct {
	allowed map[string]struct{}
	denied  map[string]struct{}
	hidden  map[string][]string
}

// AccessControl answers table and column visibility questions per connection.
// It is read-only after construction and safe for concurrent use.
type AccessControl struct {
	policies map[string]*compiledPolicy
	raw      map[string]ConnectionPolicy
}

// NewAccessControl compiles the given policies.
func NewAccessControl(policies ...ConnectionPolicy) *AccessControl {
	ac := &AccessControl{
		policies: make(map[string]*compiledPolicy, len(policies)),
		raw:      make(map[string]ConnectionPolicy, len(policies)),
	}
	for _, p := range policies {
		cp := &compiledPolicy{
			allowed: make(map[string]struct{}, len(p.AllowedTables)),
			denied:  make(map[string]struct{}, len(p.DeniedTables)),
			hidden:  make(map[string][]string, len(p.HiddenColumns)),
		}
		for _, t := range p.AllowedTables {
			cp.allowed[NormalizeTable(t)] = struct{}{}
		}
		for _, t := range p.DeniedTables {
			cp.denied[NormalizeTable(t)] = struct{}{}
		}
		for t, cols := range p.HiddenColumns {
			key := NormalizeTable(t)
			cp.hidden[key] = append(cp.hidden[key], cols...)
		}
		ac.policies[p.Name] = cp
		ac.raw[p.Name] = p
	}
	return ac
}

// Policy returns the configured policy for a connection.
func (ac *AccessControl) Policy(connection string) (ConnectionPolicy, bool) {
	if ac == nil {
		return ConnectionPolicy{}, false
	}
	p, ok := ac.raw[connection]
	return p, ok
}

func (ac *AccessControl) policy(connection string) *compiledPolicy {
	if ac == nil || connection == "" {
		return nil
	}
	return ac.policies[connection]
}

// IsTableAllowed reports whether table may be read on connection. Unknown or
// empty connection names are permissive.
func (ac *AccessControl) IsTableAllowed(table, connection string) bool {
	p := ac.policy(connection)
	if p == nil {
		return true
	}
	name := NormalizeTable(table)
	if _, denied := p.denied[name]; denied {
		return false
	}
	if len(p.allowed) == 0 {
		return true
	}
	_, ok := p.allowed[name]
	return ok
}

// IsTableDenied reports whether table is explicitly denied on connection.
func (ac *AccessControl) IsTableDenied(table, connection string) bool {
	p := ac.policy(connection)
	if p == nil {
		return false
	}
	_, denied := p.denied[NormalizeTable(table)]
	return denied
}

// AllowedOf returns the subset of tables visible on connection, in order.
func (ac *AccessControl) AllowedOf(tables []string, connection string) []string {
	if ac.policy(connection) == nil {
		return tables
	}
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		if ac.IsTableAllowed(t, connection) {
			out = append(out, t)
		}
	}
	return out
}

// HiddenColumns returns the columns of table never exposed on connection.
func (ac *AccessControl) HiddenColumns(table, connection string) []string {
	p := ac.policy(connection)
	if p == nil {
		return nil
	}
	return p.hidden[NormalizeTable(table)]
}

// FilterColumns drops hidden columns. When nothing is hidden the input slice
// itself is returned, so callers can compare identity to skip re-wrapping.
func (ac *AccessControl) FilterColumns(table string, columns []string, connection string) []string {
	hidden := ac.HiddenColumns(table, connection)
	if len(hidden) == 0 {
		return columns
	}

	firstHidden := -1
	for i, c := range columns {
		if isHidden(c, hidden) {
			firstHidden = i
			break
		}
	}
	if firstHidden < 0 {
		return columns
	}

	out := make([]string, firstHidden, len(columns))
	copy(out, columns[:firstHidden])
	for _, c := range columns[firstHidden:] {
		if !isHidden(c, hidden) {
			out = append(out, c)
		}
	}
	return out
}

// IsColumnHidden reports whether column of table is hidden on connection.
func (ac *AccessControl) IsColumnHidden(table, column, connection string) bool {
	return isHidden(column, ac.HiddenColumns(table, connection))
}

func isHidden(column string, hidden []string) bool {
	for _, h := range hidden {
		if strings.EqualFold(h, column) {
			return true
		}
	}
	return false
}

// NormalizeTable lowercases a table reference and strips quoting and any
// schema or database qualifier: `"Sales"."Orders"` becomes "orders".
func NormalizeTable(table string) string {
	t := strings.TrimSpace(table)
	if i := strings.LastIndex(t, "."); i >= 0 {
		t = strings.TrimSpace(t[i+1:])
	}
	t = strings.Trim(t, "`\"[]")
	return strings.ToLower(t)
}
