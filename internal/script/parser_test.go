/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import "testing"

func TestParseLineDirectives(t *testing.T) {
	cases := []struct {
		line    string
		ok      bool
		keyword Keyword
		arg     string
	}{
		{"{% page Intro %}", true, KeywordPage, "Intro"},
		{"{%page   Two words   %}", true, KeywordPage, "Two words"},
		{"{% header Welcome to the study %}", true, KeywordHeader, "Welcome to the study"},
		{"{% show slider %}", true, KeywordShow, "slider"},
		{"{% hide chat %}", true, KeywordHide, "chat"},
		{"{% makeVisible bar %}", true, KeywordMakeVisible, "bar"},
		{"{% makeInvisible bar %}", true, KeywordMakeInvisible, "bar"},
		{"{% set x = add(2, 3) %}", true, KeywordSet, "x = add(2, 3)"},
		{"{% event startLife() %}", true, KeywordEvent, "startLife()"},
		{"{% waitFor joySpending %}", true, KeywordWaitFor, "joySpending"},
		// inline placeholders are text
		{"Hello {% name %}", false, "", ""},
		{"{% name %}", false, "", ""},
		{"  {% page Intro %}", false, "", ""},
		{"{% page Intro %} trailing", false, "", ""},
		{"{% unknown thing %}", false, "", ""},
		{"plain text", false, "", ""},
	}
	for _, c := range cases {
		d, ok := ParseLine(c.line)
		if ok != c.ok {
			t.Fatalf("ParseLine(%q) ok=%v, want %v", c.line, ok, c.ok)
		}
		if !ok {
			continue
		}
		if d.Keyword != c.keyword || d.Arg != c.arg {
			t.Fatalf("ParseLine(%q) = %+v, want %s/%q", c.line, d, c.keyword, c.arg)
		}
	}
}

func TestParseClassifiesAndCountsPages(t *testing.T) {
	input := "{% page Intro %}\r\nHello {% name %}\n{% header Hi %}\n{% page Details %}\nMore text"
	s, errs := Parse(input)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if s.Len() != 5 {
		t.Fatalf("expected 5 lines, got %d", s.Len())
	}
	if s.CountPages() != 2 {
		t.Fatalf("expected 2 pages, got %d", s.CountPages())
	}
	if !s.Lines[0].IsPage() || s.Lines[0].Directive.Arg != "Intro" {
		t.Fatalf("first line should be page Intro, got %+v", s.Lines[0])
	}
	if s.Lines[1].Kind != KindText || s.Lines[1].Raw != "Hello {% name %}" {
		t.Fatalf("second line should be text, got %+v", s.Lines[1])
	}
	if s.Lines[2].Kind != KindDirective || s.Lines[2].Directive.Keyword != KeywordHeader {
		t.Fatalf("third line should be header directive, got %+v", s.Lines[2])
	}
	for i, l := range s.Lines {
		if l.Index != i {
			t.Fatalf("line %d has index %d", i, l.Index)
		}
	}
}

func TestParseReportsMisspelledDirective(t *testing.T) {
	s, errs := Parse("{% pgae Intro %}\n{% name %}\nText")
	if len(errs) != 1 {
		t.Fatalf("expected 1 warning, got %+v", errs)
	}
	if errs[0].Line != 1 || errs[0].Column != 1 {
		t.Fatalf("unexpected position: %+v", errs[0])
	}
	if s.Lines[0].Kind != KindText {
		t.Fatalf("misspelled directive must stay text")
	}
	if s.CountPages() != 0 {
		t.Fatalf("expected no pages")
	}
}

func TestFromLinesAndPlaceholders(t *testing.T) {
	s := FromLines([]string{"{% page A %}", "x {% a.b[0] %} and {%c%}"})
	if s.CountPages() != 1 {
		t.Fatalf("expected 1 page")
	}
	ph := Placeholders(s.Lines[1].Raw)
	if len(ph) != 2 {
		t.Fatalf("expected 2 placeholders, got %+v", ph)
	}
	if ph[0].Raw != "{% a.b[0] %}" || ph[0].Path != "a.b[0]" {
		t.Fatalf("unexpected first placeholder: %+v", ph[0])
	}
	if ph[1].Raw != "{%c%}" || ph[1].Path != "c" {
		t.Fatalf("unexpected second placeholder: %+v", ph[1])
	}
	if Placeholders("nothing here") != nil {
		t.Fatalf("expected nil for no placeholders")
	}
}

func TestExpandKeepsUnresolved(t *testing.T) {
	got := Expand("Hi {% name %}, you owe {%cost%} {% nope %}", func(p string) (string, bool) {
		switch p {
		case "name":
			return "Sam", true
		case "cost":
			return "5", true
		}
		return "", false
	})
	if want := "Hi Sam, you owe 5 {% nope %}"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
