/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"goinstruct/internal/instruction"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb   PresetName = "web"   // PNG previews at screen resolution
	PresetPrint PresetName = "print" // handout PDF plus high resolution PNGs
)

// BatchOptions controls a batch export of already rendered views.
// Outputs land in OutDir/<preset>/: handout.pdf and png/page-<n>.png.
type BatchOptions struct {
	Preset  PresetName
	Formats []string // pdf, png; empty means preset defaults
	OutDir  string
	PDF     PDFOptions
	PNG     PNGOptions
}

// BatchResult lists the files a batch produced.
type BatchResult struct {
	PDF  string
	PNGs []string
}

// Batch runs exports according to the preset.
func Batch(views []instruction.View, opt BatchOptions) (BatchResult, error) {
	var res BatchResult
	if opt.Preset == "" {
		opt.Preset = PresetWeb
	}
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	if opt.PNG.DPI == 0 {
		opt.PNG.DPI = presetDPI(opt.Preset)
	}
	base := filepath.Join(opt.OutDir, string(opt.Preset))
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "pdf":
			res.PDF = filepath.Join(base, "handout.pdf")
			if err := WritePDF(views, res.PDF, opt.PDF); err != nil {
				return res, err
			}
		case "png":
			opt.PNG.Pages = opt.PDF.Pages
			files, err := WritePNGPages(views, filepath.Join(base, "png"), opt.PNG)
			res.PNGs = append(res.PNGs, files...)
			if err != nil {
				return res, err
			}
		default:
			return res, fmt.Errorf("unsupported export format %q", f)
		}
	}
	return res, nil
}

func presetDefaultFormats(p PresetName) []string {
	if p == PresetPrint {
		return []string{"pdf", "png"}
	}
	return []string{"png"}
}

func presetDPI(p PresetName) int {
	if p == PresetPrint {
		return 300
	}
	return 96
}
