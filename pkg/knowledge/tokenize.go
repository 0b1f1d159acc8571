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
package knowledge

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again all also am an and any are as at be because been
		before being below between both but by can could did do does doing down
		during each few for from further get got had has have having he her here
		hers him his how i if in into is it its itself just me more most my no nor
		not now of off on once only or other our ours out over own same she should
		so some such than that the their theirs them then there these they this
		those through to too under until up very was we were what when where which
		while who whom why will with would you your yours
		show give list tell find many much please want need`) {
		stopwords[w] = true
	}
}

// Tokenize lowercases text, splits it on anything but letters, digits and
// underscores, and drops stopwords and single characters. Tokens are
// unique and keep first-occurrence order.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	seen := make(map[string]bool, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}

// IsStopword reports whether w (lowercase) carries no search signal.
func IsStopword(w string) bool {
	return stopwords[w]
}
