/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package gate

import (
	"errors"
	"sync"
	"testing"
)

type fakeControls struct {
	enabled  bool
	enables  int
	disables int
}

func (c *fakeControls) EnableNext()  { c.enabled = true; c.enables++ }
func (c *fakeControls) DisableNext() { c.enabled = false; c.disables++ }

func newRegistry(t *testing.T) (*Registry, *Board, *fakeControls) {
	t.Helper()
	b := NewBoard(DefaultWidgets()...)
	c := &fakeControls{}
	return NewRegistry(b, c), b, c
}

func TestSingleSignalGateFiresOnce(t *testing.T) {
	r, b, c := newRegistry(t)
	if err := r.Arm("insuranceCheck"); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if got := b.Listeners(WidgetInsurance, SignalChange); got != 1 {
		t.Fatalf("listeners=%d want 1", got)
	}
	b.Emit(WidgetInsurance, SignalChange, true)
	b.Emit(WidgetInsurance, SignalChange, false)
	if !c.enabled || c.enables != 1 {
		t.Fatalf("enabled=%v enables=%d, want exactly one enable", c.enabled, c.enables)
	}
	if got := b.Listeners(WidgetInsurance, SignalChange); got != 0 {
		t.Fatalf("listeners after satisfaction=%d", got)
	}
	if len(r.Armed()) != 0 {
		t.Fatalf("armed=%v", r.Armed())
	}
}

func TestHistoryReviewNeedsAllTabs(t *testing.T) {
	r, b, c := newRegistry(t)
	if err := r.Arm("historyReview"); err != nil {
		t.Fatal(err)
	}
	b.Emit(WidgetShockTab, SignalClick, nil)
	b.Emit(WidgetShockTab, SignalClick, nil)
	b.Emit(WidgetPrevTab, SignalClick, nil)
	if c.enables != 0 {
		t.Fatal("gate satisfied before every tab was clicked")
	}
	b.Emit(WidgetEnjoyTab, SignalClick, nil)
	if c.enables != 1 {
		t.Fatalf("enables=%d want 1", c.enables)
	}
	b.Emit(WidgetEnjoyTab, SignalClick, nil)
	if c.enables != 1 {
		t.Fatalf("re-fired: enables=%d", c.enables)
	}
}

func TestBarDragRequiresHeldBar(t *testing.T) {
	r, b, c := newRegistry(t)
	_ = r.Arm("barDrag")
	b.Emit(WidgetSlider, SignalFitness, 40)
	b.Emit(WidgetSliderBar, SignalMouseDown, nil)
	b.Emit(WidgetSliderBar, SignalMouseUp, nil)
	b.Emit(WidgetSlider, SignalFitness, 41)
	if c.enables != 0 {
		t.Fatal("fitness change without holding the bar satisfied the gate")
	}
	b.Emit(WidgetSliderBar, SignalMouseDown, nil)
	b.Emit(WidgetSlider, SignalFitness, 42)
	if c.enables != 1 {
		t.Fatalf("enables=%d want 1", c.enables)
	}
}

func TestChatMessageIgnoresBlankSubmissions(t *testing.T) {
	r, b, c := newRegistry(t)
	_ = r.Arm("chatMessage")
	b.Emit(WidgetChat, SignalSubmit, "   ")
	if c.enables != 0 {
		t.Fatal("blank message satisfied the gate")
	}
	b.Emit(WidgetChat, SignalSubmit, "hello")
	if c.enables != 1 {
		t.Fatalf("enables=%d", c.enables)
	}
}

func TestUnknownGateIsNoop(t *testing.T) {
	r, _, c := newRegistry(t)
	if err := r.Arm("doesNotExist"); err != nil {
		t.Fatalf("unknown gate returned %v", err)
	}
	if len(r.Armed()) != 0 || c.enables+c.disables != 0 {
		t.Fatal("unknown gate had side effects")
	}
}

func TestMissingWidget(t *testing.T) {
	b := NewBoard(WidgetShockTab)
	c := &fakeControls{}
	r := NewRegistry(b, c)
	err := r.Arm("historyReview")
	if !errors.Is(err, ErrWidgetMissing) {
		t.Fatalf("err=%v want ErrWidgetMissing", err)
	}
	if got := b.Listeners(WidgetShockTab, SignalClick); got != 0 {
		t.Fatalf("partially attached listeners leaked: %d", got)
	}
	if len(r.Armed()) != 0 {
		t.Fatal("gate armed despite missing widget")
	}
}

func TestClearDetachesWithoutEnabling(t *testing.T) {
	r, b, c := newRegistry(t)
	_ = r.Arm("joySpending")
	_ = r.Arm("preventionSpending")
	r.Clear()
	if b.Listeners(WidgetSlider, SignalEnjoyment)+b.Listeners(WidgetSlider, SignalFitness) != 0 {
		t.Fatal("listeners survived Clear")
	}
	b.Emit(WidgetSlider, SignalEnjoyment, 1)
	if c.enables != 0 {
		t.Fatal("cleared gate fired")
	}
}

func TestFlagsAreFreshPerArm(t *testing.T) {
	r, b, c := newRegistry(t)
	_ = r.Arm("historyReview")
	b.Emit(WidgetShockTab, SignalClick, nil)
	b.Emit(WidgetPrevTab, SignalClick, nil)
	r.Clear()
	_ = r.Arm("historyReview")
	b.Emit(WidgetEnjoyTab, SignalClick, nil)
	if c.enables != 0 {
		t.Fatal("flags carried over from a cleared arm")
	}
}

func TestConcurrentSignalsFireOnce(t *testing.T) {
	b := NewBoard(DefaultWidgets()...)
	c := &fakeControls{}
	var mu sync.Mutex
	r := NewRegistry(b, c, WithLocker(&mu))
	mu.Lock()
	_ = r.Arm("joySpending")
	mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			b.Emit(WidgetSlider, SignalEnjoyment, v)
		}(i)
	}
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if c.enables != 1 {
		t.Fatalf("enables=%d want 1", c.enables)
	}
}

func TestCustomDefinitions(t *testing.T) {
	b := NewBoard("button")
	c := &fakeControls{}
	r := NewRegistry(b, c, WithDefinitions(Definition{
		Name:    "pressed",
		Watches: []Watch{{Widget: "button", Signal: "press", Handle: func(f Flags, _ Signal) { f["p"] = true }}},
		Require: []string{"p"},
	}))
	if names := r.Names(); len(names) != 1 || names[0] != "pressed" {
		t.Fatalf("names=%v", names)
	}
	_ = r.Arm("pressed")
	if !b.Emit("button", "press", nil) || c.enables != 1 {
		t.Fatalf("enables=%d", c.enables)
	}
	if b.Emit("missing", "press", nil) {
		t.Fatal("emit to unknown widget reported success")
	}
}

func TestHas(t *testing.T) {
	r, _, _ := newRegistry(t)
	if !r.Has("barDrag") || r.Has("nope") {
		t.Fatal("Has reported the wrong gates")
	}
}
