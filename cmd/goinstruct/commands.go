/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"goinstruct/internal/backend"
	"goinstruct/internal/bundle"
	"goinstruct/internal/config"
	"goinstruct/internal/domain"
	"goinstruct/internal/export"
	"goinstruct/internal/gate"
	"goinstruct/internal/instruction"
	applog "goinstruct/internal/log"
	"goinstruct/internal/script"
	"goinstruct/internal/textlayout"
	"goinstruct/internal/ui"
)

func cmdPages(_ context.Context, cfg config.AppConfig, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("pages", flag.ContinueOnError)
	fs.SetOutput(out)
	path := fs.String("script", cfg.Session.ScriptFile, "instruction script file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		*path = fs.Arg(0)
	}
	if *path == "" {
		_, _ = fmt.Fprintln(out, "usage: goinstruct pages <script>")
		return errUsage
	}
	b, err := os.ReadFile(*path)
	if err != nil {
		return err
	}
	sc, warnings := script.Parse(string(b))
	writePages(out, sc)
	for _, w := range warnings {
		_, _ = fmt.Fprintf(out, "warning: line %d:%d: %s\n", w.Line, w.Column, w.Message)
	}
	return nil
}

// writePages lists each page with its first line number and directive count.
func writePages(w io.Writer, sc script.Script) {
	_, _ = fmt.Fprintf(w, "%d lines, %d pages\n", sc.Len(), sc.CountPages())
	page, directives, start := 0, 0, 0
	flush := func() {
		if page > 0 {
			_, _ = fmt.Fprintf(w, "  page %d: line %d, %d directives\n", page, start+1, directives)
		}
	}
	for _, ln := range sc.Lines {
		if ln.IsPage() {
			flush()
			page++
			directives = 0
			start = ln.Index
			continue
		}
		if ln.Kind == script.KindDirective {
			directives++
		}
	}
	flush()
}

func cmdRun(ctx context.Context, cfg config.AppConfig, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(out)
	var sf sourceFlags
	sf.register(fs, cfg)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	src, err := loadSource(ctx, cfg, sf, out)
	if err != nil {
		return err
	}
	defer src.Close()
	if src.store != nil && src.subject != "" {
		if rec, ok, err := src.store.LatestProgress(ctx, src.subject); err == nil && ok {
			_, _ = fmt.Fprintf(out, "last visit reached page %d of %d (%s)\n",
				rec.CurrentPage, rec.LastPage, rec.TS.Format(time.RFC822))
		}
	}

	var mu sync.Mutex
	board := gate.NewBoard(gate.DefaultWidgets()...)
	opts := append(src.options(),
		instruction.WithWidgets(board),
		instruction.WithSurface(newConsoleSurface(out, &mu)))
	sess := instruction.New(src.script, nil, opts...)
	defer sess.Close()
	if err := sess.Start(ctx); err != nil {
		return err
	}
	mu.Lock()
	_, _ = fmt.Fprintln(out, "type help for commands")
	mu.Unlock()
	return runConsole(ctx, sess, board, &mu, in, out)
}

func cmdExport(ctx context.Context, cfg config.AppConfig, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(out)
	var sf sourceFlags
	sf.register(fs, cfg)
	outDir := fs.String("out", "export", "output directory")
	preset := fs.String("preset", string(export.PresetWeb), "preset: web or print")
	formats := fs.String("formats", "", "comma separated formats (pdf,png); empty uses the preset")
	pages := fs.String("pages", "", "comma separated 1-based pages; empty exports all")
	fontPath := fs.String("font", "", "TrueType font for PNG previews")
	title := fs.String("title", "", "handout title")
	gates := fs.Bool("gates", false, "note the gates each page waits for")
	hidden := fs.Bool("hidden", false, "note hidden and invisible elements")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	sf.db = ""
	src, err := loadSource(ctx, cfg, sf, out)
	if err != nil {
		return err
	}
	defer src.Close()
	sel, err := parsePages(*pages)
	if err != nil {
		return err
	}

	var sessOpts []instruction.Option
	if src.data != nil {
		sessOpts = append(sessOpts, instruction.WithExperiment(*src.data))
	}
	views, err := instruction.RenderAll(ctx, src.script, nil, sessOpts...)
	if err != nil {
		return err
	}
	bo := export.BatchOptions{
		Preset: export.PresetName(*preset),
		OutDir: *outDir,
		PDF:    export.PDFOptions{Title: *title, ShowGates: *gates, ShowHidden: *hidden, Pages: sel},
	}
	if *formats != "" {
		bo.Formats = strings.Split(*formats, ",")
	}
	if *fontPath != "" {
		lib := textlayout.NewFontLibrary()
		if err := lib.LoadTTF("body", 400, false, *fontPath); err != nil {
			return fmt.Errorf("load font: %w", err)
		}
		bo.PNG.DPI = 96
		if bo.Preset == export.PresetPrint {
			bo.PNG.DPI = 300
		}
		// glyphs are rasterised at the page resolution
		bo.PNG.Provider = textlayout.OTProvider{Lib: lib, DPI: float64(bo.PNG.DPI)}
	}
	res, err := export.Batch(views, bo)
	if err != nil {
		return err
	}
	if res.PDF != "" {
		_, _ = fmt.Fprintln(out, "wrote", res.PDF)
	}
	for _, p := range res.PNGs {
		_, _ = fmt.Fprintln(out, "wrote", p)
	}
	return nil
}

func parsePages(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("bad page %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func cmdUI(ctx context.Context, cfg config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("ui", flag.ContinueOnError)
	var sf sourceFlags
	sf.register(fs, cfg)
	title := fs.String("title", "", "window title")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	src, err := loadSource(ctx, cfg, sf, os.Stderr)
	if err != nil {
		return err
	}
	defer src.Close()
	l := applog.WithComponent("ui")
	return ui.Run(ctx, ui.Launch{
		Title:    *title,
		Script:   src.script,
		Data:     src.data,
		Options:  src.options(),
		CrashDir: crashDir(),
		OnChat: func(msg string) {
			l.Info("chat message", slog.Int("len", len(msg)))
		},
	})
}

func cmdLogin(ctx context.Context, cfg config.AppConfig, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("subject", cfg.Session.Subject, "participant id")
	ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
	secret := fs.String("secret", os.Getenv(config.EnvAuthSecret), "server signing secret (default $"+config.EnvAuthSecret+")")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *subject == "" {
		_, _ = fmt.Fprintln(out, "usage: goinstruct login -subject <id>")
		return errUsage
	}
	c := backend.NewClient(cfg.Backend.BaseURL, "",
		backend.WithTimeout(cfg.Backend.Timeout()),
		backend.WithInsecureTLS(cfg.Backend.TLSInsecure))
	if *secret == "" {
		*secret = backend.DevSecret
	}
	exp, err := c.RequestToken(ctx, *secret, *subject, *ttl)
	if err != nil {
		return err
	}
	cfg.Session.Subject = *subject
	if err := config.Save(cfg, c.Token); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "logged in as %s until %s\n", *subject, exp.Format(time.RFC822))
	return nil
}

// cmdServe runs the instruction endpoints over files, for trying a script
// against the HTTP client without a database.
func cmdServe(ctx context.Context, cfg config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	path := fs.String("script", cfg.Session.ScriptFile, "instruction script file")
	params := fs.String("params", cfg.Session.ParamsFile, "experiment parameters JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("serve needs -script")
	}
	b, err := os.ReadFile(*path)
	if err != nil {
		return err
	}
	sc, _ := script.Parse(string(b))
	lines := make([]string, 0, sc.Len())
	for _, ln := range sc.Lines {
		lines = append(lines, ln.Raw)
	}
	var data domain.ExperimentData
	if *params != "" {
		pb, err := os.ReadFile(*params)
		if err != nil {
			return err
		}
		if data, err = domain.Decode(pb); err != nil {
			return fmt.Errorf("params %s: %w", *params, err)
		}
	}
	repo := backend.NewMemoryRepository(lines, data)
	return backend.Serve(ctx, *addr, backend.NewHandler(repo, os.Getenv(config.EnvAuthSecret)))
}

func cmdBundle(args []string, out io.Writer) error {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(out, "usage: goinstruct bundle pack|install [flags]")
		return errUsage
	}
	switch args[0] {
	case "pack":
		fs := flag.NewFlagSet("bundle pack", flag.ContinueOnError)
		fs.SetOutput(out)
		path := fs.String("script", "", "instruction script file")
		params := fs.String("params", "", "experiment parameters JSON")
		dest := fs.String("out", "bundle.zip", "archive to write")
		if err := parseFlags(fs, args[1:]); err != nil {
			return err
		}
		if *params != "" {
			b, err := os.ReadFile(*params)
			if err != nil {
				return err
			}
			if err := domain.Validate(b); err != nil {
				return fmt.Errorf("params %s: %w", *params, err)
			}
		}
		if err := bundle.Pack(*path, *params, *dest); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, "wrote", *dest)
		return nil
	case "install":
		fs := flag.NewFlagSet("bundle install", flag.ContinueOnError)
		fs.SetOutput(out)
		dir := fs.String("dir", ".", "directory to extract into")
		if err := parseFlags(fs, args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			_, _ = fmt.Fprintln(out, "usage: goinstruct bundle install [-dir d] <bundle.zip>")
			return errUsage
		}
		files, err := bundle.Install(fs.Arg(0), *dir)
		for _, f := range files {
			_, _ = fmt.Fprintln(out, "wrote", f)
		}
		return err
	default:
		_, _ = fmt.Fprintf(out, "unknown bundle command %q\n", args[0])
		return errUsage
	}
}
