/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package expr

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reCall       = regexp.MustCompile(`^\s*([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)*)\s*\((.*)\)\s*$`)
	reAssignment = regexp.MustCompile(`^\s*([A-Za-z_$][\w$.\[\]]*)\s*=(.*)$`)
	reNumber     = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)$`)
)

// Call is a parsed "name(arg, ...)" expression with unresolved argument text.
type Call struct {
	Name string
	Args []string
}

// ParseCall recognizes "name(args)" where name may be a dotted path. The
// argument list must have balanced parentheses and quotes.
func ParseCall(s string) (Call, bool) {
	m := reCall.FindStringSubmatch(s)
	if m == nil {
		return Call{}, false
	}
	args, ok := splitArgs(m[2])
	if !ok {
		return Call{}, false
	}
	return Call{Name: m[1], Args: args}, true
}

// ParseAssignment splits "name = expr". Comparisons ("a == b") are not assignments.
func ParseAssignment(s string) (name, rhs string, ok bool) {
	m := reAssignment.FindStringSubmatch(s)
	if m == nil || strings.HasPrefix(m[2], "=") {
		return "", "", false
	}
	rhs = strings.TrimSpace(m[2])
	if rhs == "" {
		return "", "", false
	}
	return m[1], rhs, true
}

// splitArgs splits on top-level commas, respecting parentheses and quotes.
func splitArgs(s string) ([]string, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	var (
		out   []string
		depth int
		quote rune
		start int
	)
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return nil, false
			}
		case r == ',' && depth == 0:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if depth != 0 || quote != 0 {
		return nil, false
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out, true
}

// IsNumber reports whether s is a plain numeric literal.
func IsNumber(s string) bool {
	return reNumber.MatchString(strings.TrimSpace(s))
}

// Literal converts literal text into a value: quoted strings lose their quotes,
// numbers become float64, true/false become bool; anything else stays text.
func Literal(s string) any {
	t := strings.TrimSpace(s)
	if n := len(t); n >= 2 && (t[0] == '"' && t[n-1] == '"' || t[0] == '\'' && t[n-1] == '\'') {
		return t[1 : n-1]
	}
	if reNumber.MatchString(t) {
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	switch t {
	case "true":
		return true
	case "false":
		return false
	}
	return t
}
