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
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"goinstruct/internal/config"
	"goinstruct/internal/crash"
	applog "goinstruct/internal/log"
	"goinstruct/internal/telemetry"
	"goinstruct/internal/version"
)

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "GoInstruct: paged instruction scripts")
	_, _ = fmt.Fprintf(w, "Version: %s\n", version.String())
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  goinstruct version|-v|--version      Show version")
	_, _ = fmt.Fprintln(w, "  goinstruct pages [flags]              Parse a script and list its pages")
	_, _ = fmt.Fprintln(w, "  goinstruct run [flags]                Run a session in the terminal")
	_, _ = fmt.Fprintln(w, "  goinstruct export [flags]             Write a handout PDF and page previews")
	_, _ = fmt.Fprintln(w, "  goinstruct ui [flags]                 Launch desktop UI (build with -tags fyne)")
	_, _ = fmt.Fprintln(w, "  goinstruct login -subject <id>        Fetch a backend token into the OS keychain")
	_, _ = fmt.Fprintln(w, "  goinstruct serve [flags]              Serve a script file over HTTP for local testing")
	_, _ = fmt.Fprintln(w, "  goinstruct bundle pack|install        Pack a script and parameters into a zip, or unpack one")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Common flags: -script <file> -params <file> -bundle <zip> -subject <id> -offline")
}

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		// defaults plus env still apply
		_, _ = fmt.Fprintln(os.Stderr, "config:", err)
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	telemetry.NewDefault(tcfg)
	defer crash.Recover(crash.Options{Dir: crashDir()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := dispatch(ctx, cfg, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	telemetry.Default().Flush(context.Background())
	os.Exit(code)
}

func crashDir() string {
	p, err := config.ConfigPath()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(p), "crash")
}

// dispatch runs one subcommand and returns the process exit code.
func dispatch(ctx context.Context, cfg config.AppConfig, args []string, in io.Reader, out io.Writer) int {
	l := applog.WithComponent("cli")
	if len(args) == 0 {
		usage(out)
		return 0
	}
	l.Debug("start", slog.String("cmd", args[0]), slog.Int("args", len(args)))
	var err error
	switch args[0] {
	case "version", "--version", "-v":
		_, _ = fmt.Fprintln(out, version.String())
		return 0
	case "help", "-h", "--help":
		usage(out)
		return 0
	case "pages":
		err = cmdPages(ctx, cfg, args[1:], out)
	case "run":
		err = cmdRun(ctx, cfg, args[1:], in, out)
	case "export":
		err = cmdExport(ctx, cfg, args[1:], out)
	case "ui":
		err = cmdUI(ctx, cfg, args[1:])
	case "login":
		err = cmdLogin(ctx, cfg, args[1:], out)
	case "serve":
		err = cmdServe(ctx, cfg, args[1:])
	case "bundle":
		err = cmdBundle(args[1:], out)
	default:
		_, _ = fmt.Fprintf(out, "unknown command %q\n\n", args[0])
		usage(out)
		return 2
	}
	if errors.Is(err, errUsage) {
		return 2
	}
	if err != nil {
		l.Error("command failed", slog.String("cmd", args[0]), slog.Any("err", err))
		_, _ = fmt.Fprintln(out, "Error:", err)
		return 1
	}
	return 0
}
