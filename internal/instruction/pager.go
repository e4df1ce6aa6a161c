/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package instruction

import (
	"fmt"
	"log/slog"
	"strings"

	"goinstruct/internal/script"
	"goinstruct/internal/vars"
)

// enter executes the page starting at the cursor. The first page directive
// met is part of this page; the next one ends it and stays under the cursor.
// Lines before the script's first page directive therefore belong to page 1.
func (s *Session) enter() {
	s.gates.Clear()
	s.forward = true
	s.nav.PageStart = s.nav.Cursor
	s.title = ""
	s.fragments = nil
	s.toggles = nil
	if d, ok := s.entry[s.nav.CurrentPage]; ok {
		s.display = d.clone()
	} else {
		s.entry[s.nav.CurrentPage] = s.display.clone()
	}

	seen := false
	for s.nav.Cursor < s.sc.Len() {
		ln := s.sc.Lines[s.nav.Cursor]
		if ln.IsPage() {
			if seen {
				break
			}
			seen = true
		}
		s.execute(ln)
		s.nav.Cursor++
	}
	s.log.DebugContext(s.ctx, "page entered",
		slog.Int("page", s.nav.CurrentPage),
		slog.String("title", s.title),
		slog.Int("start", s.nav.PageStart),
		slog.Int("cursor", s.nav.Cursor))
}

// seekBack moves the cursor from the start of the page after the current one
// back to the current page's page directive. The line under the cursor when
// the scan starts is never counted; the scan stops on the second boundary.
func (s *Session) seekBack() {
	crossed := 0
	for i := s.nav.Cursor; i > 0; i-- {
		if i == s.nav.Cursor || i >= s.sc.Len() {
			continue
		}
		if s.sc.Lines[i].IsPage() {
			crossed++
			if crossed == 2 {
				s.nav.Cursor = i
				return
			}
		}
	}
	s.nav.Cursor = 0
}

func (s *Session) execute(ln script.Line) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(ln, fmt.Errorf("panic: %v", r))
		}
	}()
	if ln.Kind == script.KindText {
		s.fragments = append(s.fragments, s.interpolate(ln.Raw))
		return
	}
	d := ln.Directive
	switch d.Keyword {
	case script.KeywordPage:
		s.title = d.Arg
	case script.KeywordHeader:
		s.header = d.Arg
	case script.KeywordShow, script.KeywordHide, script.KeywordMakeVisible, script.KeywordMakeInvisible:
		s.toggle(d)
	case script.KeywordSet:
		if err := s.eval.Set(d.Arg); err != nil {
			s.fail(ln, err)
		}
	case script.KeywordEvent:
		if _, err := s.eval.Event(d.Arg); err != nil {
			s.fail(ln, err)
		}
	case script.KeywordWaitFor:
		s.waitFor(ln)
	}
}

func (s *Session) interpolate(line string) string {
	return script.Expand(line, func(path string) (string, bool) {
		v, ok := s.store.Lookup(path)
		if !ok {
			return "", false
		}
		return vars.Format(v), true
	})
}

func (s *Session) toggle(d script.Directive) {
	target := strings.TrimSpace(d.Arg)
	v := s.elements[target]
	switch d.Keyword {
	case script.KeywordShow:
		v.Hidden = false
	case script.KeywordHide:
		v.Hidden = true
	case script.KeywordMakeVisible:
		v.Invisible = false
	case script.KeywordMakeInvisible:
		v.Invisible = true
	}
	s.elements[target] = v
	s.toggles = append(s.toggles, Toggle{Keyword: d.Keyword, Target: target})
}

// waitFor holds the forward control on pages not completed before, then arms
// the gate. Unknown gates never hold it; a gate that cannot attach releases
// it again.
func (s *Session) waitFor(ln script.Line) {
	name := strings.TrimSpace(ln.Directive.Arg)
	if !s.gates.Has(name) {
		s.log.Debug("unknown gate ignored", slog.String("gate", name), slog.Int("line", ln.Index+1))
		return
	}
	if s.nav.CurrentPage > s.nav.LastCompletedPage {
		s.forward = false
	}
	if err := s.gates.Arm(name); err != nil {
		s.forward = true
		s.fail(ln, err)
	}
}

func (s *Session) fail(ln script.Line, err error) {
	s.diag.DirectiveFailed(&DirectiveError{Line: ln.Index + 1, Keyword: ln.Directive.Keyword, Arg: ln.Directive.Arg, Err: err})
}
