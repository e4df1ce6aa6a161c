/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package domain holds the payloads exchanged with the instruction backend
// and the progress record reported on every page transition.
package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ExperimentData seeds the variable store before the first page renders.
type ExperimentData struct {
	ExpParams    map[string]any   `json:"exp_params"`
	PlayerData   map[string]any   `json:"player_data"`
	Translations map[string]any   `json:"translations,omitempty"`
	OtherStatus  []map[string]any `json:"otherstatus,omitempty"`
}

// ParametersResponse is the get_parameters payload. A non-empty Error aborts loading.
type ParametersResponse struct {
	ExpData *ExperimentData `json:"exp_data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// InstructionsResponse is the get_instructions payload.
type InstructionsResponse struct {
	InstructionLines []string `json:"instruction_lines"`
}

// Progress is reported outward on every page transition.
type Progress struct {
	Subject           string `json:"subject,omitempty"`
	CurrentPage       int    `json:"currentPage"`
	LastCompletedPage int    `json:"lastCompletedPage"`
	LastPage          int    `json:"lastPage"`
	Complete          bool   `json:"complete"`
}

// Variables flattens the payload into variable store seed values: experiment
// parameters and player data at the top level (player data wins on clashes),
// plus "translations" and "otherStatus".
func (d ExperimentData) Variables() map[string]any {
	out := make(map[string]any, len(d.ExpParams)+len(d.PlayerData)+2)
	for k, v := range d.ExpParams {
		out[k] = v
	}
	for k, v := range d.PlayerData {
		out[k] = v
	}
	if d.Translations != nil {
		out["translations"] = d.Translations
	}
	others := make([]any, 0, len(d.OtherStatus))
	for _, o := range d.OtherStatus {
		others = append(others, o)
	}
	out["otherStatus"] = others
	return out
}

// DisplayName is the participant's display name, if the payload carries one.
func (d ExperimentData) DisplayName() string {
	if s, ok := d.PlayerData["displayname"].(string); ok {
		return s
	}
	if s, ok := d.ExpParams["displayname"].(string); ok {
		return s
	}
	return ""
}

// OtherPlayerCount is the group size minus the participant. OtherStatus
// always lists the participant too, named or not.
func (d ExperimentData) OtherPlayerCount() int {
	return max(len(d.OtherStatus)-1, 0)
}

// Translate resolves a dotted key ("stages.Spending") in the translations
// tree. Missing keys translate to themselves.
func (d ExperimentData) Translate(key string) string {
	var cur any = d.Translations
	for _, seg := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return key
		}
		if cur, ok = m[seg]; !ok {
			return key
		}
	}
	if s, ok := cur.(string); ok {
		return s
	}
	return key
}

// Decode parses and validates an ExperimentData document.
func Decode(b []byte) (ExperimentData, error) {
	if err := Validate(b); err != nil {
		return ExperimentData{}, err
	}
	var d ExperimentData
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&d); err != nil {
		return ExperimentData{}, err
	}
	return d, nil
}
