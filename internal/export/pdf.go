/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders instruction pages for offline review: a multi-page
// handout PDF and per-page PNG previews. Pages come from instruction.RenderAll,
// so gates never block an export.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"goinstruct/internal/instruction"
	"goinstruct/internal/script"
)

// Color is an 8-bit RGB colour.
type Color struct{ R, G, B uint8 }

// PDFOptions controls the handout layout. Units are points.
type PDFOptions struct {
	Title       string
	Author      string
	PageWidth   float64 // default A4 595
	PageHeight  float64 // default A4 842
	Margin      float64 // default 48
	ShowGates   bool    // list armed gates under each page
	ShowHidden  bool    // list hidden and invisible elements
	AccentColor Color
	Pages       []int // 1-based; empty means all
}

func (o *PDFOptions) defaults() {
	if o.PageWidth <= 0 {
		o.PageWidth = 595
	}
	if o.PageHeight <= 0 {
		o.PageHeight = 842
	}
	if o.Margin <= 0 {
		o.Margin = 48
	}
	if o.AccentColor == (Color{}) {
		o.AccentColor = Color{R: 40, G: 80, B: 160}
	}
	if o.Title == "" {
		o.Title = "Instructions"
	}
}

// Handout renders every page of sc and writes the PDF to outPath.
func Handout(ctx context.Context, sc script.Script, seed map[string]any, outPath string, opt PDFOptions, sessionOpts ...instruction.Option) error {
	views, err := instruction.RenderAll(ctx, sc, seed, sessionOpts...)
	if err != nil {
		return fmt.Errorf("render pages: %w", err)
	}
	return WritePDF(views, outPath, opt)
}

// WritePDF writes one PDF page per view.
func WritePDF(views []instruction.View, outPath string, opt PDFOptions) error {
	opt.defaults()
	selected := selectViews(views, opt.Pages)
	if len(selected) == 0 {
		return fmt.Errorf("no pages to export")
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: opt.PageWidth, Ht: opt.PageHeight},
	})
	pdf.SetTitle(opt.Title, true)
	if opt.Author != "" {
		pdf.SetAuthor(opt.Author, true)
	}
	pdf.SetMargins(opt.Margin, opt.Margin, opt.Margin)
	pdf.SetAutoPageBreak(true, opt.Margin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	total := len(selected)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-opt.Margin + 12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 10, fmt.Sprintf("%d / %d", pdf.PageNo(), total), "", 0, "C", false, 0, "")
	})

	width := opt.PageWidth - 2*opt.Margin
	for _, v := range selected {
		pdf.AddPage()
		if v.Header != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.SetTextColor(100, 100, 100)
			pdf.MultiCell(width, 12, tr(v.Header), "", "L", false)
			pdf.Ln(4)
		}
		pdf.SetFont("Helvetica", "B", 16)
		pdf.SetTextColor(int(opt.AccentColor.R), int(opt.AccentColor.G), int(opt.AccentColor.B))
		title := v.Title
		if title == "" {
			title = fmt.Sprintf("Page %d", v.Page)
		}
		pdf.MultiCell(width, 20, tr(title), "", "L", false)
		pdf.SetDrawColor(int(opt.AccentColor.R), int(opt.AccentColor.G), int(opt.AccentColor.B))
		pdf.SetLineWidth(0.8)
		y := pdf.GetY() + 2
		pdf.Line(opt.Margin, y, opt.Margin+width, y)
		pdf.Ln(10)

		pdf.SetFont("Helvetica", "", 11)
		pdf.SetTextColor(0, 0, 0)
		for _, frag := range v.Fragments {
			if strings.TrimSpace(frag) == "" {
				pdf.Ln(8)
				continue
			}
			pdf.MultiCell(width, 15, tr(frag), "", "L", false)
		}

		notes := pageNotes(v, opt)
		if len(notes) > 0 {
			pdf.Ln(8)
			pdf.SetFont("Helvetica", "I", 8)
			pdf.SetTextColor(110, 110, 110)
			for _, n := range notes {
				pdf.MultiCell(width, 11, tr(n), "", "L", false)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func pageNotes(v instruction.View, opt PDFOptions) []string {
	var notes []string
	if opt.ShowGates && len(v.Armed) > 0 {
		notes = append(notes, "Waits for: "+strings.Join(v.Armed, ", "))
	}
	if opt.ShowHidden {
		var hidden []string
		for name, vis := range v.Elements {
			if vis.Hidden || vis.Invisible {
				hidden = append(hidden, name)
			}
		}
		sort.Strings(hidden)
		if len(hidden) > 0 {
			notes = append(notes, "Hidden: "+strings.Join(hidden, ", "))
		}
	}
	if v.Stage != "" {
		notes = append(notes, "Stage: "+v.Stage)
	}
	return notes
}

// selectViews keeps the requested 1-based pages in order; unknown numbers are skipped.
func selectViews(views []instruction.View, pages []int) []instruction.View {
	if len(pages) == 0 {
		return views
	}
	byPage := make(map[int]instruction.View, len(views))
	for _, v := range views {
		byPage[v.Page] = v
	}
	out := make([]instruction.View, 0, len(pages))
	for _, p := range pages {
		if v, ok := byPage[p]; ok {
			out = append(out, v)
		}
	}
	return out
}
