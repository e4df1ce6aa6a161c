/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

// Script is an instruction script: a flat, immutable sequence of lines.
// Pages are not materialized; they are implied by KeywordPage directives.
type Script struct {
	Lines []Line
}

// Keyword names a directive. The set is closed; anything else is text.
type Keyword string

const (
	KeywordPage          Keyword = "page"
	KeywordHeader        Keyword = "header"
	KeywordShow          Keyword = "show"
	KeywordHide          Keyword = "hide"
	KeywordMakeVisible   Keyword = "makeVisible"
	KeywordMakeInvisible Keyword = "makeInvisible"
	KeywordSet           Keyword = "set"
	KeywordEvent         Keyword = "event"
	KeywordWaitFor       Keyword = "waitFor"
)

// Keywords lists every recognized directive keyword.
var Keywords = []Keyword{
	KeywordPage, KeywordHeader, KeywordShow, KeywordHide,
	KeywordSet, KeywordEvent, KeywordWaitFor,
	KeywordMakeInvisible, KeywordMakeVisible,
}

// LineKind indicates whether a line is a directive or literal text.
type LineKind int

const (
	KindText LineKind = iota
	KindDirective
)

func (k LineKind) String() string {
	if k == KindDirective {
		return "directive"
	}
	return "text"
}

// Directive is a parsed "{% keyword argument %}" line.
type Directive struct {
	Keyword Keyword
	Arg     string
}

// Line is a single script line. Directive is only meaningful for KindDirective.
type Line struct {
	Kind      LineKind
	Raw       string
	Directive Directive
	Index     int // 0-based position in the script
}

// IsPage reports whether the line is a page boundary.
func (l Line) IsPage() bool {
	return l.Kind == KindDirective && l.Directive.Keyword == KeywordPage
}

// Placeholder is an inline "{% path %}" reference embedded in text.
type Placeholder struct {
	Raw  string // the full "{% ... %}" text as it appears in the line
	Path string // trimmed inner expression
}

// Error is a non-fatal parse diagnostic with position context.
// The offending line is kept as text; errors never stop parsing.
type Error struct {
	Line    int // 1-based
	Column  int
	Message string
}

// Len returns the number of lines.
func (s Script) Len() int { return len(s.Lines) }

// CountPages counts page directives in a single forward scan.
func (s Script) CountPages() int {
	n := 0
	for _, l := range s.Lines {
		if l.IsPage() {
			n++
		}
	}
	return n
}
