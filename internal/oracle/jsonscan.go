// Copyright (c) 2026 John Earle
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

package oracle

import (
	"encoding/json"
	"strings"
)

// The oracle wraps its JSON in markdown fences, apologies, and trailing
// remarks. A greedy regex can swallow text between two unrelated JSON-like
// fragments, so extraction is a real balance scan: track nesting depth and
// ignore delimiters inside string literals.

// firstJSONObject returns the first balanced {...} substring of s that is
// valid JSON.
func firstJSONObject(s string) (string, bool) {
	return firstBalanced(s, '{', '}')
}

// firstJSONArray returns the first balanced [...] substring of s that is
// valid JSON.
func firstJSONArray(s string) (string, bool) {
	return firstBalanced(s, '[', ']')
}

func firstBalanced(s string, open, close byte) (string, bool) {
	start := 0
	for {
		idx := strings.IndexByte(s[start:], open)
		if idx < 0 {
			return "", false
		}
		start += idx

		span, ok := balancedAt(s, start, open, close)
		if !ok {
			// Unbalanced: the response was truncated mid-structure.
			return "", false
		}
		if json.Valid([]byte(span)) {
			return span, true
		}
		// Balanced but not JSON, e.g. prose braces ahead of the real
		// payload. Keep scanning.
		start++
	}
}

// balancedAt returns the balanced span opening at start.
func balancedAt(s string, start int, open, close byte) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		ch := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
