/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package gate

import (
	"strings"

	"goinstruct/internal/vars"
)

// Widget names used by the built-in gates.
const (
	WidgetInsurance  = "insurance"
	WidgetSlider     = "slider"
	WidgetSliderBar  = "slider-bar"
	WidgetChat       = "chat"
	WidgetShockTab   = "shockProb-tab"
	WidgetPrevTab    = "prevention-tab"
	WidgetEnjoyTab   = "enjoyment-tab"
	SignalChange     = "change"
	SignalEnjoyment  = "enjoyment"
	SignalFitness    = "fitness"
	SignalMouseDown  = "mousedown"
	SignalMouseUp    = "mouseup"
	SignalSubmit     = "submit"
	SignalClick      = "click"
	flagDone         = "done"
	flagBarHeld      = "held"
	flagBarDragged   = "dragged"
)

func set(flag string) func(Flags, Signal) {
	return func(f Flags, _ Signal) { f[flag] = true }
}

// DefaultDefinitions returns the gates known to instruction scripts.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Name:    "insuranceCheck",
			Watches: []Watch{{Widget: WidgetInsurance, Signal: SignalChange, Handle: set(flagDone)}},
			Require: []string{flagDone},
		},
		{
			Name:    "joySpending",
			Watches: []Watch{{Widget: WidgetSlider, Signal: SignalEnjoyment, Handle: set(flagDone)}},
			Require: []string{flagDone},
		},
		{
			Name:    "preventionSpending",
			Watches: []Watch{{Widget: WidgetSlider, Signal: SignalFitness, Handle: set(flagDone)}},
			Require: []string{flagDone},
		},
		{
			// fitness changes only count while the bar is held down
			Name: "barDrag",
			Watches: []Watch{
				{Widget: WidgetSliderBar, Signal: SignalMouseDown, Handle: set(flagBarHeld)},
				{Widget: WidgetSliderBar, Signal: SignalMouseUp, Handle: func(f Flags, _ Signal) { f[flagBarHeld] = false }},
				{Widget: WidgetSlider, Signal: SignalFitness, Handle: func(f Flags, _ Signal) {
					if f[flagBarHeld] {
						f[flagBarDragged] = true
					}
				}},
			},
			Require: []string{flagBarDragged},
		},
		{
			Name: "chatMessage",
			Watches: []Watch{{Widget: WidgetChat, Signal: SignalSubmit, Handle: func(f Flags, s Signal) {
				if strings.TrimSpace(vars.Format(s.Value)) != "" {
					f[flagDone] = true
				}
			}}},
			Require: []string{flagDone},
		},
		{
			Name: "historyReview",
			Watches: []Watch{
				{Widget: WidgetShockTab, Signal: SignalClick, Handle: set("shockProb")},
				{Widget: WidgetPrevTab, Signal: SignalClick, Handle: set("prevention")},
				{Widget: WidgetEnjoyTab, Signal: SignalClick, Handle: set("enjoyment")},
			},
			Require: []string{"shockProb", "prevention", "enjoyment"},
		},
	}
}
