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
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"goinstruct/internal/backend"
	"goinstruct/internal/bundle"
	"goinstruct/internal/config"
	"goinstruct/internal/domain"
	"goinstruct/internal/instruction"
	applog "goinstruct/internal/log"
	"goinstruct/internal/script"
	"goinstruct/internal/storage"
	"goinstruct/internal/telemetry"
)

// errUsage signals a flag parse failure; the flag package already printed why.
var errUsage = errors.New("usage")

// sourceFlags are shared by every subcommand that runs a session.
type sourceFlags struct {
	bundle  string
	script  string
	params  string
	subject string
	db      string
	offline bool
}

func (f *sourceFlags) register(fs *flag.FlagSet, cfg config.AppConfig) {
	fs.StringVar(&f.bundle, "bundle", "", "zip bundle holding the script and parameters")
	fs.StringVar(&f.script, "script", cfg.Session.ScriptFile, "instruction script file; empty fetches from the backend")
	fs.StringVar(&f.params, "params", cfg.Session.ParamsFile, "experiment parameters JSON; empty fetches from the backend")
	fs.StringVar(&f.subject, "subject", cfg.Session.Subject, "participant id reported with progress")
	fs.StringVar(&f.db, "db", cfg.Session.ProgressDB, "local progress database (file or directory)")
	fs.BoolVar(&f.offline, "offline", false, "never contact the backend")
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errUsage
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// source is a loaded script with its parameters and the sinks a session reports to.
type source struct {
	script   script.Script
	warnings []script.Error
	data     *domain.ExperimentData
	subject  string
	client   *backend.Client
	store    *storage.Store
}

func (s *source) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// options returns the session options for this source: experiment seed,
// subject, progress reporters and diagnostics.
func (s *source) options() []instruction.Option {
	l := applog.WithComponent("session")
	opts := []instruction.Option{
		instruction.WithLogger(l),
		instruction.WithSubject(s.subject),
	}
	if s.data != nil {
		opts = append(opts, instruction.WithExperiment(*s.data))
	}
	if s.store != nil {
		opts = append(opts, instruction.WithProgress(s.store))
	}
	if s.client != nil {
		opts = append(opts, instruction.WithProgress(s.client))
	}
	diag := []instruction.Diagnostics{instruction.LogDiagnostics(l)}
	if t := telemetry.Default(); t.Enabled() {
		opts = append(opts, instruction.WithProgress(t))
		diag = append(diag, t)
	}
	return append(opts, instruction.WithDiagnostics(instruction.MultiDiagnostics(diag...)))
}

// loadSource resolves the script and parameters. Files win over the backend.
// A script fetched from the backend is snapshotted into the local store, and
// the latest snapshot is used when the backend cannot be reached.
func loadSource(ctx context.Context, cfg config.AppConfig, f sourceFlags, warn io.Writer) (*source, error) {
	l := applog.WithComponent("source")
	src := &source{subject: f.subject}
	var packed *bundle.Bundle
	if f.bundle != "" {
		b, err := bundle.Read(f.bundle)
		if err != nil {
			return nil, err
		}
		packed = &b
	}
	if f.db != "" {
		st, recovered, err := storage.OpenOrRecover(ctx, f.db)
		if err != nil {
			return nil, fmt.Errorf("open progress db: %w", err)
		}
		if recovered {
			_, _ = fmt.Fprintf(warn, "progress db was damaged; a backup was kept and a fresh db created at %s\n", st.Path())
		}
		src.store = st
	}
	needScript := packed == nil && f.script == ""
	needParams := f.params == "" && (packed == nil || packed.Params == nil)
	if !f.offline && (needScript || needParams) {
		token, _ := config.Token()
		src.client = backend.NewClient(cfg.Backend.BaseURL, token,
			backend.WithTimeout(cfg.Backend.Timeout()),
			backend.WithInsecureTLS(cfg.Backend.TLSInsecure))
	}

	if err := src.load(ctx, f, packed, cfg.Backend.BaseURL, l); err != nil {
		src.Close()
		return nil, err
	}
	for _, w := range src.warnings {
		_, _ = fmt.Fprintf(warn, "warning: line %d:%d: %s\n", w.Line, w.Column, w.Message)
	}
	l.Info("source loaded",
		slog.Int("lines", src.script.Len()),
		slog.Int("pages", src.script.CountPages()),
		slog.Bool("params", src.data != nil),
		slog.Bool("backend", src.client != nil))
	return src, nil
}

// load fills script and params. Explicit files win over the bundle, which
// wins over the backend.
func (s *source) load(ctx context.Context, f sourceFlags, packed *bundle.Bundle, origin string, l *slog.Logger) error {
	if packed != nil && f.script == "" {
		s.script, s.warnings = script.Parse(string(packed.Script))
	} else if err := s.loadScript(ctx, f.script, origin, l); err != nil {
		return err
	}
	if packed != nil && packed.Params != nil && f.params == "" {
		d, err := domain.Decode(packed.Params)
		if err != nil {
			return fmt.Errorf("bundle params: %w", err)
		}
		s.data = &d
		return nil
	}
	return s.loadParams(ctx, f.params)
}

func (s *source) loadScript(ctx context.Context, path, origin string, l *slog.Logger) error {
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		s.script, s.warnings = script.Parse(string(b))
		return nil
	}
	if s.client == nil {
		return s.fromSnapshot(ctx, origin, errors.New("no script file and backend disabled"))
	}
	lines, err := s.client.GetInstructions(ctx)
	if err != nil {
		l.Warn("fetch instructions failed", slog.Any("err", err))
		return s.fromSnapshot(ctx, origin, err)
	}
	s.script = script.FromLines(lines)
	if s.store != nil {
		if _, err := s.store.SaveScriptSnapshot(ctx, origin, lines, time.Now()); err != nil {
			l.Warn("script snapshot failed", slog.Any("err", err))
		}
	}
	return nil
}

func (s *source) fromSnapshot(ctx context.Context, origin string, cause error) error {
	if s.store == nil {
		return fmt.Errorf("load script: %w", cause)
	}
	snap, ok, err := s.store.LatestScriptSnapshot(ctx, origin)
	if err != nil {
		return fmt.Errorf("load script snapshot: %w", err)
	}
	if !ok {
		return fmt.Errorf("load script: %w (no local snapshot)", cause)
	}
	applog.WithComponent("source").Warn("using cached script",
		slog.String("origin", origin), slog.Time("saved", snap.TS))
	s.script = script.FromLines(snap.Lines)
	return nil
}

func (s *source) loadParams(ctx context.Context, path string) error {
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read params: %w", err)
		}
		d, err := domain.Decode(b)
		if err != nil {
			return fmt.Errorf("params %s: %w", path, err)
		}
		s.data = &d
		return nil
	}
	if s.client == nil {
		return nil
	}
	d, err := s.client.GetParameters(ctx)
	if err != nil {
		return err
	}
	s.data = &d
	return nil
}
