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
package contextbuilder

import (
	"sort"
	"strings"
)

// MentionedTables returns the tables whose names appear in question. A
// table matches when the lowercased question contains its name, its
// singular or plural form, or the name with underscores read as spaces
// ("order_items" matches "order items"). Schema qualifiers are ignored.
// Results keep the order of tables.
func MentionedTables(question string, tables []string) []string {
	q := " " + normalizeText(question) + " "
	var out []string
	for _, table := range tables {
		for _, variant := range nameVariants(table) {
			if strings.Contains(q, " "+variant+" ") {
				out = append(out, table)
				break
			}
		}
	}
	return out
}

// normalizeText lowercases s and turns punctuation into spaces so that
// word-boundary checks are plain substring checks.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range strings.ToLower(s) {
		isWord := r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127
		if !isWord {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

func nameVariants(table string) []string {
	name := strings.ToLower(table)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Trim(name, "`\"[]")
	if name == "" {
		return nil
	}

	seen := make(map[string]bool)
	var variants []string
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}
	for _, base := range []string{name, strings.ReplaceAll(name, "_", " ")} {
		add(base)
		add(singular(base))
		add(plural(base))
	}
	sort.SliceStable(variants, func(i, j int) bool { return len(variants[i]) > len(variants[j]) })
	return variants
}

func singular(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 3:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "sses"), strings.HasSuffix(w, "xes"), strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s") && len(w) > 1:
		return w[:len(w)-1]
	}
	return w
}

func plural(w string) string {
	switch {
	case strings.HasSuffix(w, "s"):
		return w
	case strings.HasSuffix(w, "y") && len(w) > 1 && !strings.ContainsRune("aeiou", rune(w[len(w)-2])):
		return w[:len(w)-1] + "ies"
	case strings.HasSuffix(w, "x"), strings.HasSuffix(w, "ch"), strings.HasSuffix(w, "sh"):
		return w + "es"
	}
	return w + "s"
}
