//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// These tests exercise the Fyne host with the in-memory test driver. They are
// gated behind the "fyne" build tag so headless CI does not need a display.
//
//	go test -tags fyne ./internal/ui
package ui

import (
	"context"
	"testing"

	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/widget"

	"goinstruct/internal/domain"
	"goinstruct/internal/gate"
	"goinstruct/internal/instruction"
	"goinstruct/internal/script"
)

func TestPageUI_ApplyVisibilityAndNav(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()
	p := newPageUI(Launch{}, gate.NewBoard(gate.DefaultWidgets()...))
	_ = p.content()
	p.apply(instruction.View{
		Page:      1,
		Title:     "Intro",
		Fragments: []string{"Hello", "there"},
		Elements: map[string]instruction.Visibility{
			ElementChat:    {Hidden: true},
			ElementSlider:  {Invisible: true},
			"unknown-item": {Hidden: true},
		},
		ForwardEnabled: true,
		Progress:       domain.Progress{CurrentPage: 1, LastPage: 3},
	})
	if p.title.Text != "Intro" || p.body.Text != "Hello there" {
		t.Fatalf("labels not applied: %q %q", p.title.Text, p.body.Text)
	}
	if p.elements[ElementChat].box.Visible() {
		t.Fatalf("chat should be hidden")
	}
	if !p.elements[ElementSlider].box.Visible() || p.elements[ElementSlider].obj.Visible() {
		t.Fatalf("invisible slider should keep its slot but hide the widget")
	}
	if p.next.Disabled() {
		t.Fatalf("next should be enabled on page 1 of 3")
	}
	if !p.back.Disabled() {
		t.Fatalf("back should be disabled on page 1")
	}
}

func TestPageUI_HistoryTabsSatisfyGate(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()
	board := gate.NewBoard(gate.DefaultWidgets()...)
	p := newPageUI(Launch{}, board)
	sc := script.FromLines([]string{"{% page A %}", "{% waitFor historyReview %}", "{% page B %}", "done"})
	sess := instruction.New(sc, nil, instruction.WithWidgets(board))
	defer sess.Close()
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.View().ForwardEnabled {
		t.Fatalf("gate should hold forward")
	}
	for _, obj := range p.history.Objects {
		test.Tap(obj.(*widget.Button))
	}
	if !sess.View().ForwardEnabled {
		t.Fatalf("visiting every history tab should release the gate")
	}
}

func TestPageUI_ChatSubmitEmitsAndLogs(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()
	board := gate.NewBoard(gate.DefaultWidgets()...)
	var got []string
	p := newPageUI(Launch{OnChat: func(m string) { got = append(got, m) }}, board)
	sc := script.FromLines([]string{"{% page A %}", "{% waitFor chatMessage %}", "{% page B %}"})
	sess := instruction.New(sc, nil, instruction.WithWidgets(board))
	defer sess.Close()
	_ = sess.Start(context.Background())

	p.sendChat("   ")
	if sess.View().ForwardEnabled {
		t.Fatalf("blank message must not satisfy the gate")
	}
	p.sendChat("hi all")
	if !sess.View().ForwardEnabled {
		t.Fatalf("message should satisfy the gate")
	}
	if len(got) != 1 || got[0] != "hi all" || len(p.chatLog.Objects) != 1 {
		t.Fatalf("chat not logged: %v, %d", got, len(p.chatLog.Objects))
	}
}

func TestBarSlider_DragOrder(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()
	board := gate.NewBoard(gate.DefaultWidgets()...)
	s := newBarSlider(board)
	sc := script.FromLines([]string{"{% page A %}", "{% waitFor barDrag %}", "{% page B %}"})
	sess := instruction.New(sc, nil, instruction.WithWidgets(board))
	defer sess.Close()
	_ = sess.Start(context.Background())

	s.SetValue(20) // change without holding the bar
	if sess.View().ForwardEnabled {
		t.Fatalf("value change without drag must not count")
	}
	board.Emit(gate.WidgetSliderBar, gate.SignalMouseDown, nil)
	s.SetValue(30)
	if !sess.View().ForwardEnabled {
		t.Fatalf("drag should satisfy barDrag")
	}
}
