/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"errors"
	"sort"

	"goinstruct/internal/domain"
	"goinstruct/internal/instruction"
	"goinstruct/internal/script"
)

// ErrNoPages is returned when a launch has no script lines.
var ErrNoPages = errors.New("script is empty")

// Launch is everything the desktop host needs to run one session.
type Launch struct {
	Title   string
	Script  script.Script
	Data    *domain.ExperimentData
	Options []instruction.Option
	// CrashDir receives crash reports; empty means the temp dir.
	CrashDir string
	// OnChat, if set, receives every message the participant sends.
	OnChat func(msg string)
}

// Validate rejects launches that cannot render a page.
func (l Launch) Validate() error {
	if l.Script.Len() == 0 {
		return ErrNoPages
	}
	return nil
}

// WindowTitle falls back to a generic title.
func (l Launch) WindowTitle() string {
	if l.Title != "" {
		return l.Title
	}
	return "GoInstruct"
}

// OtherPlayers returns the display names of the other group members,
// translated when the translations tree has an entry under "players".
func (l Launch) OtherPlayers() []string {
	if l.Data == nil {
		return nil
	}
	self := l.Data.DisplayName()
	var out []string
	for _, o := range l.Data.OtherStatus {
		name, _ := o["displayname"].(string)
		if name == "" || name == self {
			continue
		}
		key := "players." + name
		if t := l.Data.Translate(key); t != key {
			name = t
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SelfName is the participant's display name or "You".
func (l Launch) SelfName() string {
	if l.Data != nil {
		if n := l.Data.DisplayName(); n != "" {
			return n
		}
	}
	return "You"
}
