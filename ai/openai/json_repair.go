// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import "strings"

// repairJSON fixes a malformation some models produce: an object key missing
// its opening quote, e.g. `{tags": [...]}`. The closing quote and colon are
// still present, so the repair only inserts the opening quote.
func repairJSON(s string) string {
	runes := []rune(s)

	var b strings.Builder
	b.Grow(len(s) + 16)

	i := 0
	for i < len(runes) {
		ch := runes[i]
		b.WriteRune(ch)
		i++
		if ch != '{' && ch != ',' {
			continue
		}

		// Copy whitespace between the delimiter and whatever follows.
		for i < len(runes) && (runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t') {
			b.WriteRune(runes[i])
			i++
		}
		if i >= len(runes) || !isLetter(runes[i]) {
			continue
		}

		// A bare word here is only a broken key when a closing quote and
		// colon follow it; anything else passes through unchanged.
		start := i
		for i < len(runes) && (isLetter(runes[i]) || runes[i] == '_' || runes[i] == ' ') {
			i++
		}
		if i+1 < len(runes) && runes[i] == '"' && runes[i+1] == ':' {
			b.WriteRune('"')
			b.WriteString(strings.TrimSpace(string(runes[start:i])))
		} else {
			b.WriteString(string(runes[start:i]))
		}
	}

	return b.String()
}
