//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"goinstruct/internal/crash"
	"goinstruct/internal/gate"
	"goinstruct/internal/instruction"
	applog "goinstruct/internal/log"
	"goinstruct/internal/version"
)

// Element names scripts can show, hide or make invisible.
const (
	ElementInsurance = "insurance"
	ElementSlider    = "slider"
	ElementChat      = "chat"
	ElementHistory   = "history"
	ElementPlayers   = "players"
)

// Run opens the instruction window and blocks until it is closed or ctx ends.
func Run(ctx context.Context, l Launch) error {
	if err := l.Validate(); err != nil {
		return err
	}
	log := applog.WithComponent("ui")
	log.Info("starting UI", slog.String("version", version.String()))

	fyneApp := app.NewWithID("goinstruct")
	w := fyneApp.NewWindow(l.WindowTitle())
	prefs := fyneApp.Preferences()
	winW := max(prefs.IntWithFallback("window.width", 900), 640)
	winH := max(prefs.IntWithFallback("window.height", 700), 480)
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))
	w.SetMaster()

	board := gate.NewBoard(gate.DefaultWidgets()...)
	p := newPageUI(l, board)
	opts := append([]instruction.Option{
		instruction.WithWidgets(board),
		instruction.WithSurface(p),
		instruction.WithLogger(log),
	}, l.Options...)
	if l.Data != nil {
		opts = append(opts, instruction.WithExperiment(*l.Data))
	}
	sess := instruction.New(l.Script, nil, opts...)
	defer sess.Close()
	defer crash.Recover(crash.Options{Dir: l.CrashDir, State: func() any { return sess.Navigation() }})

	showErr := func(err error) {
		fyne.Do(func() { dialog.ShowError(err, w) })
	}
	navigate := func(step func(context.Context) error) {
		go func() {
			if err := step(ctx); err != nil && !errors.Is(err, instruction.ErrForwardDisabled) {
				log.Warn("navigation failed", slog.Any("err", err))
				showErr(err)
			}
		}()
	}
	p.next.OnTapped = func() { navigate(sess.NextPage) }
	p.back.OnTapped = func() { navigate(sess.PreviousPage) }
	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		switch ev.Name {
		case fyne.KeyRight, fyne.KeyPageDown:
			navigate(sess.NextPage)
		case fyne.KeyLeft, fyne.KeyPageUp:
			navigate(sess.PreviousPage)
		}
	})

	w.SetContent(p.content())
	w.SetOnClosed(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
	})

	go func() {
		if err := sess.Start(ctx); err != nil {
			log.Error("session start failed", slog.Any("err", err))
			showErr(err)
		}
	}()
	go func() {
		<-ctx.Done()
		fyne.Do(fyneApp.Quit)
	}()

	w.ShowAndRun()
	log.Info("UI closed", slog.Any("navigation", sess.Navigation()))
	return nil
}

// pageUI is the instruction surface. Widgets feed signals into the board;
// apply only changes labels and visibility so it never emits.
type pageUI struct {
	launch Launch
	board  *gate.Board

	header, title, body, stage, status *widget.Label
	back, next                         *widget.Button

	insurance *widget.Select
	slider    *barSlider
	history   *fyne.Container
	chatIn    *widget.Entry
	chatLog   *fyne.Container
	players   *widget.Label

	elements map[string]*slot
}

// slot keeps an element's layout space while it is invisible.
type slot struct {
	obj    fyne.CanvasObject
	spacer *canvas.Rectangle
	box    *fyne.Container
}

func newSlot(obj fyne.CanvasObject) *slot {
	sp := canvas.NewRectangle(color.Transparent)
	sp.SetMinSize(obj.MinSize())
	return &slot{obj: obj, spacer: sp, box: container.NewStack(sp, obj)}
}

func (s *slot) apply(v instruction.Visibility) {
	switch {
	case v.Hidden:
		s.box.Hide()
	case v.Invisible:
		s.box.Show()
		s.spacer.SetMinSize(s.obj.MinSize())
		s.obj.Hide()
	default:
		s.box.Show()
		s.obj.Show()
	}
}

func newPageUI(l Launch, board *gate.Board) *pageUI {
	p := &pageUI{launch: l, board: board}
	p.header = widget.NewLabel("")
	p.header.Wrapping = fyne.TextWrapWord
	p.title = widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	p.body = widget.NewLabel("")
	p.body.Wrapping = fyne.TextWrapWord
	p.stage = widget.NewLabelWithStyle("", fyne.TextAlignTrailing, fyne.TextStyle{Italic: true})
	p.status = widget.NewLabel("")
	p.back = widget.NewButton("Back", nil)
	p.next = widget.NewButton("Next", nil)

	p.insurance = widget.NewSelect([]string{"none", "partial", "full"}, func(s string) {
		board.Emit(gate.WidgetInsurance, gate.SignalChange, s)
	})
	p.insurance.PlaceHolder = "Choose insurance"

	p.slider = newBarSlider(board)

	tab := func(label, widgetName string) *widget.Button {
		return widget.NewButton(label, func() { board.Emit(widgetName, gate.SignalClick, label) })
	}
	p.history = container.NewHBox(
		tab("Shock probability", gate.WidgetShockTab),
		tab("Prevention", gate.WidgetPrevTab),
		tab("Enjoyment", gate.WidgetEnjoyTab),
	)

	p.chatLog = container.NewVBox()
	p.chatIn = widget.NewEntry()
	p.chatIn.SetPlaceHolder("Message")
	p.chatIn.OnSubmitted = p.sendChat
	send := widget.NewButton("Send", func() { p.sendChat(p.chatIn.Text) })
	chatScroll := container.NewVScroll(p.chatLog)
	chatScroll.SetMinSize(fyne.NewSize(200, 120))
	chat := container.NewBorder(nil, container.NewBorder(nil, nil, nil, send, p.chatIn), nil, nil, chatScroll)

	p.players = widget.NewLabel(playersText(l.OtherPlayers()))

	p.elements = map[string]*slot{
		ElementInsurance: newSlot(p.insurance),
		ElementSlider:    newSlot(p.slider),
		ElementHistory:   newSlot(p.history),
		ElementChat:      newSlot(chat),
		ElementPlayers:   newSlot(p.players),
	}
	return p
}

func playersText(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return fmt.Sprintf("Other players (%d): %s", len(names), strings.Join(names, ", "))
}

func (p *pageUI) sendChat(msg string) {
	p.board.Emit(gate.WidgetChat, gate.SignalSubmit, msg)
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	line := widget.NewLabel(p.launch.SelfName() + ": " + msg)
	line.Wrapping = fyne.TextWrapWord
	p.chatLog.Add(line)
	p.chatIn.SetText("")
	if p.launch.OnChat != nil {
		p.launch.OnChat(msg)
	}
}

func (p *pageUI) content() fyne.CanvasObject {
	controls := container.NewVBox(
		p.elements[ElementPlayers].box,
		p.elements[ElementInsurance].box,
		p.elements[ElementSlider].box,
		p.elements[ElementHistory].box,
		p.elements[ElementChat].box,
	)
	top := container.NewVBox(p.header, p.title, widget.NewSeparator())
	nav := container.NewBorder(nil, nil, p.back, p.next, container.NewHBox(p.status, p.stage))
	page := container.NewVScroll(container.NewVBox(p.body, controls))
	return container.NewBorder(top, nav, nil, nil, page)
}

// Render implements instruction.Surface. It runs with the session lock held,
// so the widget update is handed to the UI goroutine.
func (p *pageUI) Render(v instruction.View) {
	fyne.Do(func() { p.apply(v) })
}

func (p *pageUI) apply(v instruction.View) {
	p.header.SetText(v.Header)
	if v.Header == "" {
		p.header.Hide()
	} else {
		p.header.Show()
	}
	p.title.SetText(v.Title)
	p.body.SetText(v.Text())
	if v.Stage != "" {
		p.stage.SetText("Stage: " + v.Stage)
	} else {
		p.stage.SetText("")
	}
	for name, s := range p.elements {
		s.apply(v.Elements[name])
	}

	last := max(v.Progress.LastPage, 1)
	status := fmt.Sprintf("Page %d of %d", v.Page, last)
	if len(v.Armed) > 0 {
		status += " · waiting"
	}
	if v.Progress.Complete {
		status += " · complete"
	}
	p.status.SetText(status)

	if v.Page <= 1 {
		p.back.Disable()
	} else {
		p.back.Enable()
	}
	if v.ForwardEnabled && v.Page < last {
		p.next.Enable()
	} else {
		p.next.Disable()
	}
}

// barSlider reports presses on its bar as slider-bar mousedown/mouseup and
// splits its value into enjoyment and fitness signals.
type barSlider struct {
	widget.Slider
	board *gate.Board
	held  bool
}

func newBarSlider(board *gate.Board) *barSlider {
	s := &barSlider{board: board}
	s.Min, s.Max, s.Step = 0, 100, 1
	s.Value = 50
	s.Orientation = widget.Horizontal
	s.OnChanged = func(v float64) {
		board.Emit(gate.WidgetSlider, gate.SignalEnjoyment, v)
		board.Emit(gate.WidgetSlider, gate.SignalFitness, 100-v)
	}
	s.ExtendBaseWidget(s)
	return s
}

func (s *barSlider) Dragged(e *fyne.DragEvent) {
	if !s.held {
		s.held = true
		s.board.Emit(gate.WidgetSliderBar, gate.SignalMouseDown, s.Value)
	}
	s.Slider.Dragged(e)
}

func (s *barSlider) DragEnd() {
	s.Slider.DragEnd()
	if s.held {
		s.held = false
		s.board.Emit(gate.WidgetSliderBar, gate.SignalMouseUp, s.Value)
	}
}
