/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command instructd serves instruction scripts, experiment parameters and
// progress tracking from PostgreSQL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"goinstruct/internal/backend"
	"goinstruct/internal/config"
	"goinstruct/internal/crash"
	"goinstruct/internal/domain"
	applog "goinstruct/internal/log"
	"goinstruct/internal/script"
	"goinstruct/internal/version"
)

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "instructd: instruction server")
	_, _ = fmt.Fprintf(w, "Version: %s\n", version.String())
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  instructd [serve] [-addr :8080]      Serve the instruction endpoints")
	_, _ = fmt.Fprintln(w, "  instructd migrate                     Apply database migrations and exit")
	_, _ = fmt.Fprintln(w, "  instructd seed -script <file> -name <name> [-params <file> -subject <id>]")
	_, _ = fmt.Fprintln(w, "                                        Store a script and optionally assign a participant")
	_, _ = fmt.Fprintln(w, "  instructd version")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "The database URL comes from %s or server.database_url in the config file.\n", config.EnvDatabaseURL)
}

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "config:", err)
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	defer crash.Recover(crash.Options{Dir: filepath.Join(os.TempDir(), "instructd")})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && (args[0] == "" || args[0][0] != '-') {
		cmd, args = args[0], args[1:]
	}
	l := applog.WithComponent("instructd")
	switch cmd {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		return
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "serve":
		err = serve(ctx, cfg, args)
	case "migrate":
		err = migrate(ctx, cfg)
	case "seed":
		err = seed(ctx, cfg, args)
	default:
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		l.Error("command failed", slog.String("cmd", cmd), slog.Any("err", err))
		stop()
		os.Exit(1)
	}
}

func open(ctx context.Context, cfg config.AppConfig) (*backend.PGRepository, error) {
	if cfg.Server.DatabaseURL == "" {
		return nil, fmt.Errorf("no database configured; set %s", config.EnvDatabaseURL)
	}
	return backend.OpenPG(ctx, cfg.Server.DatabaseURL)
}

func serve(ctx context.Context, cfg config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	_ = fs.Parse(args)
	repo, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()
	return backend.Serve(ctx, *addr, backend.NewHandler(repo, os.Getenv(config.EnvAuthSecret)))
}

func migrate(ctx context.Context, cfg config.AppConfig) error {
	repo, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	applog.WithComponent("instructd").Info("database is up to date")
	return repo.Close()
}

func seed(ctx context.Context, cfg config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	path := fs.String("script", "", "instruction script file")
	name := fs.String("name", "", "script name")
	params := fs.String("params", "", "experiment parameters JSON for the participant")
	subject := fs.String("subject", "", "participant to assign the script to")
	_ = fs.Parse(args)
	if *path == "" || *name == "" {
		return errors.New("seed needs -script and -name")
	}
	if (*subject == "") != (*params == "") {
		return errors.New("-subject and -params go together")
	}
	b, err := os.ReadFile(*path)
	if err != nil {
		return err
	}
	sc, warnings := script.Parse(string(b))
	l := applog.WithComponent("instructd")
	for _, w := range warnings {
		l.Warn("script warning", slog.Int("line", w.Line), slog.String("msg", w.Message))
	}
	lines := make([]string, 0, sc.Len())
	for _, ln := range sc.Lines {
		lines = append(lines, ln.Raw)
	}

	repo, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()
	id, err := repo.PutScript(ctx, *name, lines)
	if err != nil {
		return err
	}
	l.Info("script stored", slog.String("name", *name), slog.Int64("id", id), slog.Int("pages", sc.CountPages()))
	if *subject == "" {
		return nil
	}
	pb, err := os.ReadFile(*params)
	if err != nil {
		return err
	}
	data, err := domain.Decode(pb)
	if err != nil {
		return fmt.Errorf("params %s: %w", *params, err)
	}
	if err := repo.PutParticipant(ctx, *subject, *name, data); err != nil {
		return err
	}
	l.Info("participant assigned", slog.String("subject", *subject), slog.String("script", *name))
	return nil
}
