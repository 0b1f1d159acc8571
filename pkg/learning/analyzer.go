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

// Package learning turns failed queries into stored learnings and keeps the
// learning set tidy.
package learning

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/quarrydata/quarry/pkg/knowledge"
)

type categoryRule struct {
	category knowledge.Category
	patterns []*regexp.Regexp
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// classification is checked in order; the first matching category wins.
// Syntax errors are recorded as query_pattern: the query shape was wrong.
var classification = []categoryRule{
	{knowledge.CategorySchemaFix, compileAll(
		`unknown column`,
		`no such (column|table)`,
		`(column|relation|table) .* does not exist`,
		`table .* doesn't exist`,
		`undefined (column|table)`,
		`invalid (column|object) name`,
		`ambiguous column`,
		`has no column named`,
	)},
	{knowledge.CategoryTypeError, compileAll(
		`type mismatch`,
		`datatype mismatch`,
		`invalid input syntax`,
		`invalid input value`,
		`cannot be cast`,
		`cannot cast`,
		`operator does not exist`,
		`conversion failed`,
		`incorrect \w+ value`,
		`could not convert`,
	)},
	{knowledge.CategoryQueryPattern, compileAll(
		`syntax error`,
		`error in your sql syntax`,
		`parse error`,
		`unexpected token`,
		`incomplete input`,
		`must appear in the group by`,
		`not a group by expression`,
		`misuse of aggregate`,
		`aggregate functions are not allowed`,
	)},
	{knowledge.CategoryDataQuality, compileAll(
		`constraint`,
		`violat`,
		`division by zero`,
		`divide by zero`,
		`null value`,
		`duplicate (key|entry)`,
		`out of range`,
		`overflow`,
		`data truncat`,
	)},
}

// Classify maps a raw database error to a learning category. Unmatched
// errors are business_logic.
func Classify(errMsg string) knowledge.Category {
	for _, rule := range classification {
		for _, re := range rule.patterns {
			if re.MatchString(errMsg) {
				return rule.category
			}
		}
	}
	return knowledge.CategoryBusinessLogic
}

var titleNoise = compileAll(
	`^\s*(query|execution) failed:\s*`,
	`SQLSTATE\[[0-9A-Z]+\]:?\s*`,
	`\[[0-9A-Z]{5}\]:?\s*`,
	`General error:\s*(\d+\s+)?`,
	`^\s*pq:\s*`,
	`^\s*ERROR:\s*`,
	`^\s*Error \d+( \([0-9A-Z]+\))?:\s*`,
	`^\s*SQL logic error:\s*`,
	`\s*\(\d+\)\s*$`,
	`\s*\(SQLSTATE [0-9A-Z]+\)\s*$`,
)

var whitespace = regexp.MustCompile(`\s+`)

// Title derives a short learning title from a raw error: vendor codes and
// driver prefixes are removed, whitespace is collapsed and the result is
// truncated to knowledge.MaxTitleLength characters.
func Title(errMsg string) string {
	title := errMsg
	for _, re := range titleNoise {
		title = re.ReplaceAllString(title, "")
	}
	title = strings.TrimSpace(whitespace.ReplaceAllString(title, " "))
	if title == "" {
		title = "Query error"
	}
	return truncate(title, knowledge.MaxTitleLength)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-3])) + "..."
}
