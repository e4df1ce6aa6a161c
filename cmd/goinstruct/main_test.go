/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	"goinstruct/internal/config"
)

const gatedScript = `{% page One %}
{% waitFor insuranceCheck %}
Pick a plan, {% displayname %}.
{% page Two %}
{% set x = add(1,2) %}
Done {% x %}
`

const paramsJSON = `{"exp_params":{"rounds":3},"player_data":{"displayname":"Ada"}}`

// isolate points config, keyring and env at a throwaway home.
func isolate(t *testing.T) config.AppConfig {
	t.Helper()
	keyring.MockInit()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("AppData", home)
	t.Setenv("GOI_TELEMETRY_OPT_IN", "")
	return config.Defaults()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDispatchVersionAndUnknown(t *testing.T) {
	cfg := isolate(t)
	var out bytes.Buffer
	if code := dispatch(context.Background(), cfg, []string{"version"}, nil, &out); code != 0 || out.Len() == 0 {
		t.Fatalf("version: code=%d out=%q", code, out.String())
	}
	out.Reset()
	if code := dispatch(context.Background(), cfg, []string{"frobnicate"}, nil, &out); code != 2 {
		t.Fatalf("unknown command code=%d", code)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Fatalf("usage not printed: %q", out.String())
	}
	out.Reset()
	if code := dispatch(context.Background(), cfg, []string{"pages", "-nope"}, nil, &out); code != 2 {
		t.Fatalf("bad flag code=%d", code)
	}
}

func TestPagesListsPagesAndWarnings(t *testing.T) {
	cfg := isolate(t)
	path := writeFile(t, "s.txt", gatedScript+"{% paeg Three %}\n")
	var out bytes.Buffer
	if code := dispatch(context.Background(), cfg, []string{"pages", path}, nil, &out); code != 0 {
		t.Fatalf("code=%d out=%s", code, out.String())
	}
	got := out.String()
	for _, want := range []string{"2 pages", "page 1: line 1, 1 directives", "page 2: line 4, 1 directives", "warning: line 7"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestParsePages(t *testing.T) {
	got, err := parsePages(" 1, 3 ")
	if err != nil || len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("parsePages = %v, %v", got, err)
	}
	if _, err := parsePages("0"); err == nil {
		t.Fatal("page 0 accepted")
	}
	if got, err := parsePages(""); err != nil || got != nil {
		t.Fatalf("empty = %v, %v", got, err)
	}
}

func TestExportWritesHandoutOffline(t *testing.T) {
	cfg := isolate(t)
	sp := writeFile(t, "s.txt", gatedScript)
	pp := writeFile(t, "p.json", paramsJSON)
	outDir := t.TempDir()
	var out bytes.Buffer
	args := []string{"export", "-offline", "-script", sp, "-params", pp, "-out", outDir, "-formats", "pdf,png"}
	if code := dispatch(context.Background(), cfg, args, nil, &out); code != 0 {
		t.Fatalf("code=%d out=%s", code, out.String())
	}
	for _, p := range []string{
		filepath.Join(outDir, "web", "handout.pdf"),
		filepath.Join(outDir, "web", "png", "page-1.png"),
		filepath.Join(outDir, "web", "png", "page-2.png"),
	} {
		if fi, err := os.Stat(p); err != nil || fi.Size() == 0 {
			t.Errorf("%s: %v", p, err)
		}
	}
}

func TestBundleRoundTripThroughRun(t *testing.T) {
	cfg := isolate(t)
	sp := writeFile(t, "s.txt", gatedScript)
	pp := writeFile(t, "p.json", paramsJSON)
	zipPath := filepath.Join(t.TempDir(), "study.zip")
	var out bytes.Buffer
	if code := dispatch(context.Background(), cfg, []string{"bundle", "pack", "-script", sp, "-params", pp, "-out", zipPath}, nil, &out); code != 0 {
		t.Fatalf("pack code=%d out=%s", code, out.String())
	}
	out.Reset()
	in := strings.NewReader("quit\n")
	if code := dispatch(context.Background(), cfg, []string{"run", "-offline", "-bundle", zipPath}, in, &out); code != 0 {
		t.Fatalf("run code=%d out=%s", code, out.String())
	}
	if !strings.Contains(out.String(), "Pick a plan, Ada.") {
		t.Fatalf("bundle params not applied:\n%s", out.String())
	}
	out.Reset()
	dir := t.TempDir()
	if code := dispatch(context.Background(), cfg, []string{"bundle", "install", "-dir", dir, zipPath}, nil, &out); code != 0 {
		t.Fatalf("install code=%d out=%s", code, out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "script.txt")); err != nil {
		t.Fatal(err)
	}
}
