/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package gate implements named completion conditions that hold the
// forward navigation control until a participant has interacted with
// specific widgets.
package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	applog "goinstruct/internal/log"
)

// ErrWidgetMissing is returned by Arm when a gate watches a widget that the
// host does not provide.
var ErrWidgetMissing = errors.New("gate widget missing")

// Signal is a discrete user action emitted by a widget.
type Signal struct {
	Name  string
	Value any
}

// Listener receives signals from a Source.
type Listener func(Signal)

// Source is the attach capability a widget exposes. The returned func
// detaches the listener and must be safe to call more than once.
type Source interface {
	Attach(signal string, l Listener) (detach func())
}

// Widgets maps widget names to sources.
type Widgets interface {
	Widget(name string) (Source, bool)
}

// Controls is the forward navigation control gates hold and release.
// Methods are invoked with the registry's locker held.
type Controls interface {
	EnableNext()
	DisableNext()
}

// Flags hold per-arm state; they are fresh every time a gate is armed.
type Flags map[string]bool

// Watch binds one widget signal to a flag update.
type Watch struct {
	Widget string
	Signal string
	Handle func(f Flags, s Signal)
}

// Definition describes a gate: the signals it watches and the flags that
// must all be set for it to be satisfied.
type Definition struct {
	Name    string
	Watches []Watch
	Require []string
}

func (d Definition) satisfied(f Flags) bool {
	for _, r := range d.Require {
		if !f[r] {
			return false
		}
	}
	return true
}

type armed struct {
	def    Definition
	flags  Flags
	detach []func()
	done   bool
}

func (a *armed) release() {
	a.done = true
	for _, d := range a.detach {
		d()
	}
	a.detach = nil
}

// Option configures a Registry.
type Option func(*Registry)

// WithLocker makes the registry serialize listener callbacks on l. Pass the
// owner's lock so callbacks never interleave with navigation.
func WithLocker(l sync.Locker) Option { return func(r *Registry) { r.mu = l } }

// WithDefinitions replaces the default gate set.
func WithDefinitions(defs ...Definition) Option {
	return func(r *Registry) {
		r.defs = map[string]Definition{}
		for _, d := range defs {
			r.defs[d.Name] = d
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.log = l } }

// Registry arms gates by name against a widget directory.
//
// Arm and Clear do not lock; callers hold the locker passed via WithLocker
// (or Locker()) whenever listeners may fire on other goroutines.
type Registry struct {
	mu       sync.Locker
	defs     map[string]Definition
	widgets  Widgets
	controls Controls
	armed    []*armed
	log      *slog.Logger
}

// NewRegistry returns a registry loaded with DefaultDefinitions.
func NewRegistry(widgets Widgets, controls Controls, opts ...Option) *Registry {
	r := &Registry{
		mu:       &sync.Mutex{},
		widgets:  widgets,
		controls: controls,
		log:      applog.WithComponent("gate"),
	}
	WithDefinitions(DefaultDefinitions()...)(r)
	for _, o := range opts {
		o(r)
	}
	return r
}

// Locker returns the lock listener callbacks serialize on.
func (r *Registry) Locker() sync.Locker { return r.mu }

// Define adds or replaces a gate definition.
func (r *Registry) Define(d Definition) { r.defs[d.Name] = d }

// Has reports whether a gate is defined under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.defs[name]
	return ok
}

// Names lists the known gate names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for k := range r.defs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Arm attaches the named gate's listeners. Unknown names are ignored so
// scripts stay usable on hosts that lack some widgets' gates.
func (r *Registry) Arm(name string) error {
	def, ok := r.defs[name]
	if !ok {
		r.log.Debug("unknown gate ignored", slog.String("gate", name))
		return nil
	}
	a := &armed{def: def, flags: Flags{}}
	for _, w := range def.Watches {
		src, ok := r.widgets.Widget(w.Widget)
		if !ok {
			a.release()
			return fmt.Errorf("%w: %s (gate %s)", ErrWidgetMissing, w.Widget, name)
		}
		a.detach = append(a.detach, src.Attach(w.Signal, r.listener(a, w)))
	}
	r.armed = append(r.armed, a)
	r.log.Debug("gate armed", slog.String("gate", name))
	return nil
}

// Clear force-detaches every armed gate, discarding unsatisfied state.
// The forward control is left untouched.
func (r *Registry) Clear() {
	for _, a := range r.armed {
		a.release()
	}
	r.armed = nil
}

// Armed returns the names of gates still waiting for satisfaction.
func (r *Registry) Armed() []string {
	var out []string
	for _, a := range r.armed {
		if !a.done {
			out = append(out, a.def.Name)
		}
	}
	return out
}

func (r *Registry) listener(a *armed, w Watch) Listener {
	return func(s Signal) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if a.done {
			return
		}
		if w.Handle != nil {
			w.Handle(a.flags, s)
		}
		if !a.def.satisfied(a.flags) {
			return
		}
		a.release()
		r.drop(a)
		r.log.Info("gate satisfied", slog.String("gate", a.def.Name))
		r.controls.EnableNext()
	}
}

func (r *Registry) drop(a *armed) {
	for i, x := range r.armed {
		if x == a {
			r.armed = append(r.armed[:i], r.armed[i+1:]...)
			return
		}
	}
}
