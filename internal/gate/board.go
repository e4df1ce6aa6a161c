/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package gate

import (
	"sort"
	"sync"
)

// Board is an in-memory widget directory. Hosts without real widgets (the
// console runner, tests, dry-run exports) emit signals through it.
type Board struct {
	mu      sync.Mutex
	widgets map[string]*boardWidget
}

type boardWidget struct {
	next      int
	listeners map[string]map[int]Listener
}

// NewBoard returns a board exposing the named widgets.
func NewBoard(names ...string) *Board {
	b := &Board{widgets: map[string]*boardWidget{}}
	for _, n := range names {
		b.Add(n)
	}
	return b
}

// DefaultWidgets lists every widget the built-in gates watch.
func DefaultWidgets() []string {
	return []string{WidgetInsurance, WidgetSlider, WidgetSliderBar, WidgetChat, WidgetShockTab, WidgetPrevTab, WidgetEnjoyTab}
}

// Add registers a widget; adding an existing name is a no-op.
func (b *Board) Add(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.widgets[name]; !ok {
		b.widgets[name] = &boardWidget{listeners: map[string]map[int]Listener{}}
	}
}

// Names returns the registered widget names, sorted.
func (b *Board) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.widgets))
	for k := range b.widgets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Widget implements Widgets.
func (b *Board) Widget(name string) (Source, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.widgets[name]; !ok {
		return nil, false
	}
	return boardSource{b: b, name: name}, true
}

// Listeners counts attached listeners for a widget signal.
func (b *Board) Listeners(widget, signal string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.widgets[widget]
	if !ok {
		return 0
	}
	return len(w.listeners[signal])
}

// Emit delivers a signal to every listener attached at the time of the call.
// Listeners run on the caller's goroutine without the board lock held, so
// they may detach themselves. It reports whether the widget exists.
func (b *Board) Emit(widget, signal string, value any) bool {
	b.mu.Lock()
	w, ok := b.widgets[widget]
	if !ok {
		b.mu.Unlock()
		return false
	}
	ids := make([]int, 0, len(w.listeners[signal]))
	for id := range w.listeners[signal] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, w.listeners[signal][id])
	}
	b.mu.Unlock()

	s := Signal{Name: signal, Value: value}
	for _, l := range ls {
		l(s)
	}
	return true
}

type boardSource struct {
	b    *Board
	name string
}

func (s boardSource) Attach(signal string, l Listener) func() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	w := s.b.widgets[s.name]
	id := w.next
	w.next++
	if w.listeners[signal] == nil {
		w.listeners[signal] = map[int]Listener{}
	}
	w.listeners[signal][id] = l
	return func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		delete(w.listeners[signal], id)
	}
}
