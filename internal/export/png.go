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
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"goinstruct/internal/instruction"
	"goinstruct/internal/textlayout"
)

// PNGOptions controls page previews. Width and Height are in points and are
// scaled by DPI/72 to pixels.
type PNGOptions struct {
	Width    float64 // default 595
	Height   float64 // default 842
	Margin   float64 // default 48
	DPI      int     // default 96
	Provider textlayout.Provider
	Accent   Color
	Pages    []int // 1-based; empty means all
}

func (o *PNGOptions) defaults() {
	if o.Width <= 0 {
		o.Width = 595
	}
	if o.Height <= 0 {
		o.Height = 842
	}
	if o.Margin <= 0 {
		o.Margin = 48
	}
	if o.DPI <= 0 {
		o.DPI = 96
	}
	if o.Provider == nil {
		o.Provider = textlayout.BasicProvider{}
	}
	if o.Accent == (Color{}) {
		o.Accent = Color{R: 40, G: 80, B: 160}
	}
}

// RenderPNG draws a single page preview.
func RenderPNG(v instruction.View, opt PNGOptions) *image.RGBA {
	opt.defaults()
	scale := float64(opt.DPI) / 72.0
	px := func(pt float64) int { return int(math.Round(pt * scale)) }
	pixW, pixH := px(opt.Width), px(opt.Height)
	margin := px(opt.Margin)
	img := image.NewRGBA(image.Rect(0, 0, pixW, pixH))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)

	accent := color.RGBA{R: opt.Accent.R, G: opt.Accent.G, B: opt.Accent.B, A: 255}
	grey := color.RGBA{R: 110, G: 110, B: 110, A: 255}
	black := color.RGBA{A: 255}
	maxW := float32(pixW - 2*margin)
	y := margin

	block := func(role textlayout.Role, text string, col color.RGBA) {
		st := textlayout.StyleFor(role)
		box := textlayout.Wrap(opt.Provider, st.Font, text, maxW)
		d := &font.Drawer{Dst: img, Src: image.NewUniform(col), Face: box.Face}
		for _, ln := range box.Lines {
			y += int(box.Metrics.Ascent)
			d.Dot = fixed.P(margin, y)
			d.DrawString(ln.Text)
			y += int(box.Metrics.Descent + box.Metrics.LineGap + st.Leading)
		}
	}

	if v.Header != "" {
		block(textlayout.RoleHeader, v.Header, grey)
		y += 4
	}
	title := v.Title
	if title == "" {
		title = fmt.Sprintf("Page %d", v.Page)
	}
	block(textlayout.RoleTitle, title, accent)
	fillRect(img, margin, y+2, pixW-margin-1, y+3, accent)
	y += 12
	block(textlayout.RoleBody, v.Text(), black)

	footer := fmt.Sprintf("%d / %d", v.Page, max(v.Progress.LastPage, 1))
	if !v.ForwardEnabled {
		footer += "  (waiting)"
	}
	y = pixH - margin
	block(textlayout.RoleFooter, footer, grey)
	strokeRect(img, 0, 0, pixW-1, pixH-1, grey)
	return img
}

// EncodePNG writes the preview of v to w.
func EncodePNG(w io.Writer, v instruction.View, opt PNGOptions) error {
	if err := png.Encode(w, RenderPNG(v, opt)); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// WritePNGPages writes page-<n>.png into outDir for each selected view and
// returns the written paths.
func WritePNGPages(views []instruction.View, outDir string, opt PNGOptions) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}
	var out []string
	for _, v := range selectViews(views, opt.Pages) {
		name := filepath.Join(outDir, fmt.Sprintf("page-%d.png", v.Page))
		f, err := os.Create(name)
		if err != nil {
			return out, fmt.Errorf("create png: %w", err)
		}
		if err := EncodePNG(f, v, opt); err != nil {
			_ = f.Close()
			return out, err
		}
		if err := f.Close(); err != nil {
			return out, fmt.Errorf("close png: %w", err)
		}
		out = append(out, name)
	}
	return out, nil
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}
