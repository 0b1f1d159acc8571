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

// Package catalog holds the semantic layer: hand-written table documentation
// and business rules loaded from YAML files.
//
// A catalog directory looks like:
//
//	catalog/
//	  tables/
//	    users.yaml
//	    orders.yaml
//	  rules/
//	    revenue.yaml
//
// A table file documents one table:
//
//	name: users
//	connection: analytics
//	description: One row per registered account.
//	columns:
//	  - name: created_at
//	    type: TEXT
//	    description: ISO-8601 signup timestamp.
//	relationships:
//	  - column: id
//	    references: orders.user_id
//
// A rules file holds a list of rules:
//
//	rules:
//	  - name: Active user
//	    kind: metric
//	    description: Logged in within the last 30 days.
//	    sql: last_login_at >= date('now', '-30 days')
package catalog

import (
	"fmt"
	"strings"
)

// ColumnDoc documents one column.
type ColumnDoc struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// RelationshipDoc documents a join path from one of the table's columns.
type RelationshipDoc struct {
	Column      string `yaml:"column" json:"column"`
	References  string `yaml:"references" json:"references"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// TableDoc documents one table. An empty Connection applies the document to
// every connection.
type TableDoc struct {
	Name          string            `yaml:"name" json:"name"`
	Connection    string            `yaml:"connection,omitempty" json:"connection,omitempty"`
	Description   string            `yaml:"description,omitempty" json:"description,omitempty"`
	Columns       []ColumnDoc       `yaml:"columns,omitempty" json:"columns,omitempty"`
	Relationships []RelationshipDoc `yaml:"relationships,omitempty" json:"relationships,omitempty"`
}

// Validate checks required fields.
func (t *TableDoc) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is required")
	}
	for i, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("table %s: column %d has no name", t.Name, i)
		}
	}
	for i, r := range t.Relationships {
		if r.Column == "" || r.References == "" {
			return fmt.Errorf("table %s: relationship %d needs column and references", t.Name, i)
		}
	}
	return nil
}

// RuleKind classifies a business rule.
type RuleKind string

const (
	KindRule   RuleKind = "rule"
	KindMetric RuleKind = "metric"
	KindGotcha RuleKind = "gotcha"
)

// BusinessRule is a piece of global domain knowledge. Rules are not scoped
// to a connection or filtered by table access.
type BusinessRule struct {
	Name        string   `yaml:"name" json:"name"`
	Kind        RuleKind `yaml:"kind,omitempty" json:"kind,omitempty"`
	Description string   `yaml:"description" json:"description"`
	SQL         string   `yaml:"sql,omitempty" json:"sql,omitempty"`
}

// Validate checks required fields and defaults Kind to rule.
func (r *BusinessRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("rule %s: description is required", r.Name)
	}
	switch r.Kind {
	case "":
		r.Kind = KindRule
	case KindRule, KindMetric, KindGotcha:
	default:
		return fmt.Errorf("rule %s: unknown kind %q (want rule, metric or gotcha)", r.Name, r.Kind)
	}
	return nil
}

type rulesFile struct {
	Rules []BusinessRule `yaml:"rules"`
}
