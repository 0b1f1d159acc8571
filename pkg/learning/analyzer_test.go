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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quarrydata/quarry/pkg/knowledge"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  string
		want knowledge.Category
	}{
		{"SQL logic error: no such column: signup_date (1)", knowledge.CategorySchemaFix},
		{`pq: relation "customers" does not exist`, knowledge.CategorySchemaFix},
		{"Error 1146 (42S02): Table 'shop.customer' doesn't exist", knowledge.CategorySchemaFix},
		{"Error 1054 (42S22): Unknown column 'nme' in 'field list'", knowledge.CategorySchemaFix},
		{`pq: invalid input syntax for type integer: "abc"`, knowledge.CategoryTypeError},
		{"pq: operator does not exist: text > integer", knowledge.CategoryTypeError},
		{"datatype mismatch", knowledge.CategoryTypeError},
		{`SQL logic error: near "FORM": syntax error (1)`, knowledge.CategoryQueryPattern},
		{`pq: column "users.email" must appear in the GROUP BY clause or be used in an aggregate function`, knowledge.CategoryQueryPattern},
		{"pq: division by zero", knowledge.CategoryDataQuality},
		{"UNIQUE constraint failed: users.email", knowledge.CategoryDataQuality},
		{"context deadline exceeded", knowledge.CategoryBusinessLogic},
		{"", knowledge.CategoryBusinessLogic},
	}
	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_SchemaBeforeType(t *testing.T) {
	// Matches both a schema and a type pattern; schema wins.
	assert.Equal(t, knowledge.CategorySchemaFix,
		Classify(`column "amount" does not exist; type mismatch`))
}

func TestTitle(t *testing.T) {
	tests := []struct {
		err  string
		want string
	}{
		{"SQLSTATE[42S02]: Base table or view not found: 1146 Table 'x' doesn't exist",
			"Base table or view not found: 1146 Table 'x' doesn't exist"},
		{"SQLSTATE[HY000]: General error: 1 no such table: orderz", "no such table: orderz"},
		{"[42S02] Table missing", "Table missing"},
		{"query failed: SQL logic error: no such column: signup_date (1)", "no such column: signup_date"},
		{`query failed: pq: column "nme" does not exist`, `column "nme" does not exist`},
		{"Error 1054 (42S22): Unknown column 'nme'", "Unknown column 'nme'"},
		{"ERROR:   syntax \n error   at or near \"FORM\"", `syntax error at or near "FORM"`},
		{"   ", "Query error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.err))
		})
	}
}

func TestTitle_Truncates(t *testing.T) {
	title := Title(strings.Repeat("column does not exist ", 20))
	assert.LessOrEqual(t, len([]rune(title)), knowledge.MaxTitleLength)
	assert.True(t, strings.HasSuffix(title, "..."))

	unicode := Title(strings.Repeat("é", 150))
	assert.Equal(t, knowledge.MaxTitleLength, len([]rune(unicode)))
}
