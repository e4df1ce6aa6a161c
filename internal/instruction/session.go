/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package instruction drives an instruction script page by page: it executes
// directives, interpolates variables into text, arms gates and reports
// progress to the host.
package instruction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"goinstruct/internal/domain"
	"goinstruct/internal/expr"
	"goinstruct/internal/gate"
	applog "goinstruct/internal/log"
	"goinstruct/internal/script"
	"goinstruct/internal/vars"
)

var (
	// ErrForwardDisabled is returned by NextPage while an armed gate holds
	// the forward control.
	ErrForwardDisabled = errors.New("forward navigation disabled")
	// ErrNotStarted is returned when navigating before Start.
	ErrNotStarted = errors.New("session not started")
)

// Navigation is the pager state. Cursor is the resume point (the first line
// of the next page, or the script length); PageStart is where the current
// page's execution began.
type Navigation struct {
	Cursor            int
	PageStart         int
	CurrentPage       int
	LastCompletedPage int
	LastPage          int
}

// Surface receives a View after every transition and gate satisfaction.
// Render is called with the session lock held and must not navigate or emit
// gate signals synchronously.
type Surface interface {
	Render(View)
}

// ProgressReporter persists progress. Failures are logged, never fatal.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, p domain.Progress) error
}

// Diagnostics receives directive failures; the page keeps executing.
type Diagnostics interface {
	DirectiveFailed(*DirectiveError)
}

// DirectiveError wraps a failure raised while executing one directive.
type DirectiveError struct {
	Line    int // 1-based
	Keyword script.Keyword
	Arg     string
	Err     error
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("line %d: %s %q: %v", e.Line, e.Keyword, e.Arg, e.Err)
}

func (e *DirectiveError) Unwrap() error { return e.Err }

// Option configures a Session.
type Option func(*Session)

// WithSurface sets the rendering surface.
func WithSurface(sf Surface) Option { return func(s *Session) { s.surface = sf } }

// WithProgress adds a progress reporter. It may be given more than once.
func WithProgress(p ProgressReporter) Option {
	return func(s *Session) { s.reporters = append(s.reporters, p) }
}

// WithDiagnostics sets the directive failure sink. The default logs.
func WithDiagnostics(d Diagnostics) Option { return func(s *Session) { s.diag = d } }

// WithWidgets sets the widget directory gates attach to.
func WithWidgets(w gate.Widgets) Option { return func(s *Session) { s.widgets = w } }

// WithFunctions sets the function registry available to set and event.
func WithFunctions(f *expr.Functions) Option { return func(s *Session) { s.funcs = f } }

// WithGateDefinitions replaces the built-in gate set.
func WithGateDefinitions(defs ...gate.Definition) Option {
	return func(s *Session) { s.defs = defs }
}

// WithExperiment seeds the variable store from d, opens each run on the
// translated spending stage and registers the translate, getOtherPlayerCount,
// setInvestmentStage and getIncomeText functions.
func WithExperiment(d domain.ExperimentData) Option {
	return func(s *Session) { s.exp = &d }
}

// WithSubject tags progress reports with a participant id.
func WithSubject(id string) Option { return func(s *Session) { s.subject = id } }

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.log = l } }

// Session owns the script, the variable store and the navigation state of one
// participant. All methods are safe for concurrent use; gate callbacks
// serialize on the same lock as navigation.
type Session struct {
	mu sync.Mutex

	sc      script.Script
	store   *vars.Store
	eval    *expr.Evaluator
	funcs   *expr.Functions
	gates   *gate.Registry
	widgets gate.Widgets
	defs    []gate.Definition
	exp     *domain.ExperimentData
	subject string

	ctx     context.Context
	started bool
	nav     Navigation
	forward bool
	title   string
	display
	fragments []string
	toggles   []Toggle
	entry     map[int]display

	surface   Surface
	reporters []ProgressReporter
	diag      Diagnostics
	log       *slog.Logger
}

// display is state that survives page changes; it is snapshotted on first
// entry of each page so re-entry starts from the same place.
type display struct {
	header   string
	stage    string
	elements map[string]Visibility
}

func (d display) clone() display {
	c := display{header: d.header, stage: d.stage, elements: make(map[string]Visibility, len(d.elements))}
	for k, v := range d.elements {
		c.elements[k] = v
	}
	return c
}

// New creates a session over sc. A nil store starts empty.
func New(sc script.Script, store *vars.Store, opts ...Option) *Session {
	if store == nil {
		store = vars.New(nil)
	}
	s := &Session{
		sc:      sc,
		store:   store,
		display: display{elements: map[string]Visibility{}},
		entry:   map[int]display{},
		ctx:     context.Background(),
		log:     applog.WithComponent("instruction"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.funcs == nil {
		s.funcs = expr.NewFunctions()
	}
	s.funcs.Register("setStage", s.setStage)
	if s.exp != nil {
		s.store.Seed(s.exp.Variables())
		d := *s.exp
		s.funcs.Register("translate", func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("want 1 argument, got %d", len(args))
			}
			return d.Translate(vars.Format(args[0])), nil
		})
		s.funcs.Register("getOtherPlayerCount", func(...any) (any, error) {
			return float64(d.OtherPlayerCount()), nil
		})
		s.funcs.Register("setInvestmentStage", func(...any) (any, error) {
			return s.setStage(d.Translate(stageSpending))
		})
		s.funcs.Register("getIncomeText", s.incomeText)
	}
	s.eval = expr.New(s.store, s.funcs)
	if s.widgets == nil {
		s.widgets = gate.NewBoard()
	}
	gopts := []gate.Option{gate.WithLocker(&s.mu)}
	if s.defs != nil {
		gopts = append(gopts, gate.WithDefinitions(s.defs...))
	}
	s.gates = gate.NewRegistry(s.widgets, controls{s}, gopts...)
	if s.diag == nil {
		s.diag = LogDiagnostics(s.log)
	}
	return s
}

// Store exposes the variable store, e.g. for hosts publishing live collaborators.
func (s *Session) Store() *vars.Store { return s.store }

// Start resets navigation and renders page 1.
func (s *Session) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = s.tag(ctx)
	s.ctx = ctx
	s.nav = Navigation{CurrentPage: 1, LastPage: max(s.sc.CountPages(), 1)}
	s.display = display{elements: map[string]Visibility{}}
	if s.exp != nil {
		s.display.stage = s.exp.Translate(stageSpending)
	}
	s.entry = map[int]display{}
	s.started = true
	s.log.InfoContext(ctx, "session started", slog.Int("pages", s.nav.LastPage), slog.Int("lines", s.sc.Len()))
	s.enter()
	s.transitioned(ctx)
	return nil
}

// NextPage advances one page. It is a no-op on the last page and returns
// ErrForwardDisabled while a gate holds the forward control.
func (s *Session) NextPage(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	if s.nav.CurrentPage >= s.nav.LastPage {
		return nil
	}
	if !s.forward {
		return ErrForwardDisabled
	}
	if s.nav.CurrentPage > s.nav.LastCompletedPage {
		s.nav.LastCompletedPage = s.nav.CurrentPage
	}
	s.nav.CurrentPage++
	s.enter()
	s.transitioned(s.tag(ctx))
	return nil
}

// PreviousPage retreats one page, re-executing its directives. It is a no-op
// on page 1. The forward control is re-enabled unconditionally.
func (s *Session) PreviousPage(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	if s.nav.CurrentPage <= 1 {
		return nil
	}
	s.nav.CurrentPage--
	s.forward = true
	if s.nav.CurrentPage == 1 {
		s.nav.Cursor = 0
	} else {
		s.seekBack()
	}
	s.enter()
	s.transitioned(s.tag(ctx))
	return nil
}

// Close detaches every armed gate.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gates.Clear()
}

// View returns the current page as rendered.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// Navigation returns a copy of the pager state.
func (s *Session) Navigation() Navigation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav
}

// tag attaches the participant id to ctx for log records and reporters.
func (s *Session) tag(ctx context.Context) context.Context {
	if s.subject == "" {
		return ctx
	}
	return applog.ContextWith(ctx, slog.String("subject", s.subject))
}

func (s *Session) transitioned(ctx context.Context) {
	s.settle()
	s.render()
	s.report(ctx)
}

// settle marks the last page completed once its forward control is enabled.
func (s *Session) settle() bool {
	if s.started && s.forward && s.nav.CurrentPage == s.nav.LastPage && s.nav.LastCompletedPage < s.nav.LastPage {
		s.nav.LastCompletedPage = s.nav.LastPage
		return true
	}
	return false
}

func (s *Session) progress() domain.Progress {
	n := s.nav
	return domain.Progress{
		Subject:           s.subject,
		CurrentPage:       n.CurrentPage,
		LastCompletedPage: n.LastCompletedPage,
		LastPage:          n.LastPage,
		Complete:          n.CurrentPage == n.LastCompletedPage && n.LastCompletedPage == n.LastPage,
	}
}

func (s *Session) render() {
	if s.surface != nil {
		s.surface.Render(s.view())
	}
}

func (s *Session) report(ctx context.Context) {
	p := s.progress()
	for _, r := range s.reporters {
		if err := r.ReportProgress(ctx, p); err != nil {
			s.log.WarnContext(ctx, "progress report failed", slog.Int("page", p.CurrentPage), slog.Any("err", err))
		}
	}
}

func (s *Session) setStage(args ...any) (any, error) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, vars.Format(a))
	}
	s.stage = strings.Join(parts, " ")
	return s.stage, nil
}

// stageSpending is the translation key of the stage shown when parameters load.
const stageSpending = "stages.Spending"

// incomeText describes the participant's income from playerType.job: an
// age-linear job with a slope earns intercept+slope first and slope more each
// period, any other job earns intercept every period.
func (s *Session) incomeText(...any) (any, error) {
	job, ok := s.store.Lookup("playerType.job")
	if !ok {
		return nil, errors.New("playerType.job is not set")
	}
	intercept, ok := childNumber(job, "intercept")
	if !ok {
		return nil, errors.New("playerType.job.intercept is not a number")
	}
	slope, _ := childNumber(job, "slope")
	kind, _ := vars.Child(job, "type")
	types, _ := vars.Child(job, "types")
	linear, hasLinear := vars.Child(types, "ageLinear")
	if hasLinear && kind != nil && vars.Format(kind) == vars.Format(linear) && slope != 0 {
		return fmt.Sprintf("a base Income of %s and an additional income of %s each additional period",
			vars.Format(intercept+slope), vars.Format(slope)), nil
	}
	return fmt.Sprintf("%s in Income every period", vars.Format(intercept)), nil
}

func childNumber(v any, key string) (float64, bool) {
	c, ok := vars.Child(v, key)
	if !ok {
		return 0, false
	}
	return vars.Number(c)
}

// controls adapts the session to gate.Controls. The registry calls it with
// the session lock already held.
type controls struct{ s *Session }

func (c controls) EnableNext() {
	s := c.s
	s.forward = true
	completed := s.settle()
	s.render()
	if completed {
		s.report(s.ctx)
	}
}

func (c controls) DisableNext() { c.s.forward = false }
