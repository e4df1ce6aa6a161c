/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package instruction

import (
	"context"
	"log/slog"
	"maps"
	"strings"

	"goinstruct/internal/domain"
	"goinstruct/internal/gate"
	"goinstruct/internal/script"
	"goinstruct/internal/vars"
)

// Visibility is the cumulative display state of one target element.
type Visibility struct {
	Hidden    bool
	Invisible bool
}

// Toggle is a visibility directive executed on the current page.
type Toggle struct {
	Keyword script.Keyword
	Target  string
}

// View is everything a surface needs to draw the current page.
type View struct {
	Page           int
	Title          string
	Header         string
	Stage          string
	Fragments      []string
	Toggles        []Toggle
	Elements       map[string]Visibility
	ForwardEnabled bool
	Armed          []string
	Progress       domain.Progress
}

// Text joins the rendered fragments the way the page displays them.
func (v View) Text() string { return strings.Join(v.Fragments, " ") }

// Visible reports whether target is neither hidden nor invisible.
func (v View) Visible(target string) bool {
	e := v.Elements[target]
	return !e.Hidden && !e.Invisible
}

func (s *Session) view() View {
	return View{
		Page:           s.nav.CurrentPage,
		Title:          s.title,
		Header:         s.header,
		Stage:          s.stage,
		Fragments:      append([]string(nil), s.fragments...),
		Toggles:        append([]Toggle(nil), s.toggles...),
		Elements:       maps.Clone(s.elements),
		ForwardEnabled: s.forward,
		Armed:          s.gates.Armed(),
		Progress:       s.progress(),
	}
}

type logDiagnostics struct{ log *slog.Logger }

// LogDiagnostics reports directive failures as warnings on l.
func LogDiagnostics(l *slog.Logger) Diagnostics { return logDiagnostics{log: l} }

func (d logDiagnostics) DirectiveFailed(e *DirectiveError) {
	d.log.Warn("directive failed",
		slog.Int("line", e.Line),
		slog.String("keyword", string(e.Keyword)),
		slog.String("arg", e.Arg),
		slog.Any("err", e.Err))
}

type multiDiagnostics []Diagnostics

// MultiDiagnostics fans failures out to every sink.
func MultiDiagnostics(ds ...Diagnostics) Diagnostics { return multiDiagnostics(ds) }

func (m multiDiagnostics) DirectiveFailed(e *DirectiveError) {
	for _, d := range m {
		d.DirectiveFailed(e)
	}
}

// RenderAll executes every page of sc in order without waiting for gates and
// returns the views. It uses its own store seeded from seed, so a live
// session is never touched. Exports use it.
func RenderAll(ctx context.Context, sc script.Script, seed map[string]any, opts ...Option) ([]View, error) {
	all := append([]Option{WithWidgets(gate.NewBoard(gate.DefaultWidgets()...))}, opts...)
	s := New(sc, vars.New(seed), all...)
	defer s.Close()
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	views := []View{s.View()}
	for {
		s.mu.Lock()
		s.forward = true
		last := s.nav.CurrentPage >= s.nav.LastPage
		s.mu.Unlock()
		if last {
			break
		}
		if err := ctx.Err(); err != nil {
			return views, err
		}
		if err := s.NextPage(ctx); err != nil {
			return views, err
		}
		views = append(views, s.View())
	}
	return views, nil
}
