/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// Patterns
var (
	reDirective   = regexp.MustCompile(`^\{%\s*(page|header|show|hide|set|event|waitFor|makeInvisible|makeVisible)\s+(.*?)\s*%}$`)
	reBracketed   = regexp.MustCompile(`^\{%.*%}$`)
	rePlaceholder = regexp.MustCompile(`\{%\s*(.*?)\s*%}`)
)

// ParseLine classifies a single line. It returns the directive and true only
// when the whole line matches "{% keyword argument %}"; everything else is text,
// including lines that merely contain an inline placeholder.
func ParseLine(line string) (Directive, bool) {
	m := reDirective.FindStringSubmatch(line)
	if m == nil {
		return Directive{}, false
	}
	return Directive{Keyword: Keyword(m[1]), Arg: m[2]}, true
}

// IsDirective reports whether line is a directive line.
func IsDirective(line string) bool {
	return reDirective.MatchString(line)
}

// FromLines builds a Script from lines delivered by the transport. It never fails:
// malformed directives simply stay text.
func FromLines(lines []string) Script {
	s, _ := fromLines(lines)
	return s
}

// Parse splits text into lines and classifies them.
// Supported syntax:
//   - Directive lines: "{% keyword argument %}" occupying the whole line, with keyword one of
//     page, header, show, hide, makeVisible, makeInvisible, set, event, waitFor.
//   - Text lines: anything else. Inline "{% path %}" placeholders are resolved at render time.
//
// Lines that look like a directive (whole line wrapped in "{% %}") but use an unknown keyword
// or lack an argument are reported as Errors and kept as text.
func Parse(input string) (Script, []Error) {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	s, errs := fromLines(lines)
	if err := scanner.Err(); err != nil {
		errs = append(errs, Error{Line: len(lines) + 1, Column: 1, Message: err.Error()})
	}
	return s, errs
}

func fromLines(lines []string) (Script, []Error) {
	s := Script{Lines: make([]Line, 0, len(lines))}
	var errs []Error
	for i, raw := range lines {
		ln := Line{Kind: KindText, Raw: raw, Index: i}
		if d, ok := ParseLine(raw); ok {
			ln.Kind = KindDirective
			ln.Directive = d
		} else if looksLikeDirective(raw) {
			errs = append(errs, Error{
				Line:    i + 1,
				Column:  strings.Index(raw, "{%") + 1,
				Message: fmt.Sprintf("unrecognized directive %q treated as text", strings.TrimSpace(raw)),
			})
		}
		s.Lines = append(s.Lines, ln)
	}
	return s, errs
}

// looksLikeDirective catches "{% keyword arg %}" lines with a misspelled keyword.
// A lone "{% path %}" placeholder has no inner whitespace and is ordinary text.
func looksLikeDirective(raw string) bool {
	trim := strings.TrimSpace(raw)
	if !reBracketed.MatchString(trim) {
		return false
	}
	ph := rePlaceholder.FindAllStringSubmatch(trim, -1)
	return len(ph) == 1 && ph[0][0] == trim && strings.ContainsAny(ph[0][1], " \t")
}

// Placeholders returns every inline "{% path %}" reference in line, in order of appearance.
func Placeholders(line string) []Placeholder {
	found := rePlaceholder.FindAllStringSubmatch(line, -1)
	if len(found) == 0 {
		return nil
	}
	out := make([]Placeholder, 0, len(found))
	for _, f := range found {
		out = append(out, Placeholder{Raw: f[0], Path: f[1]})
	}
	return out
}

// Expand replaces each inline placeholder with resolve(path). Placeholders
// resolve cannot satisfy keep their literal text.
func Expand(line string, resolve func(path string) (string, bool)) string {
	return rePlaceholder.ReplaceAllStringFunc(line, func(raw string) string {
		m := rePlaceholder.FindStringSubmatch(raw)
		if v, ok := resolve(m[1]); ok {
			return v
		}
		return raw
	})
}
