/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package bundle

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestPackAndRead(t *testing.T) {
	dir := t.TempDir()
	sp := write(t, dir, "intro.txt", "{% page A %}\nhello\n")
	pp := write(t, dir, "p.json", `{"exp_params":{},"player_data":{}}`)
	zipPath := filepath.Join(dir, "out", "study.zip")
	if err := Pack(sp, pp, zipPath); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	b, err := Read(zipPath)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(b.Script) != "{% page A %}\nhello\n" || string(b.Params) != `{"exp_params":{},"player_data":{}}` {
		t.Fatalf("bundle = %q / %q", b.Script, b.Params)
	}
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()
	if len(r.File) != 3 || r.File[0].Name != ManifestName {
		t.Fatalf("entries = %d first=%q", len(r.File), r.File[0].Name)
	}
}

func TestPackWithoutParams(t *testing.T) {
	dir := t.TempDir()
	sp := write(t, dir, "s.txt", "text")
	zipPath := filepath.Join(dir, "s.zip")
	if err := Pack(sp, "", zipPath); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	b, err := Read(zipPath)
	if err != nil || b.Params != nil {
		t.Fatalf("Read = %+v, %v", b, err)
	}
}

func TestPackValidatesArguments(t *testing.T) {
	if err := Pack("", "", "x.zip"); err == nil {
		t.Fatal("empty script accepted")
	}
	if err := Pack("s.txt", "", " "); err == nil {
		t.Fatal("empty destination accepted")
	}
	if err := Pack(filepath.Join(t.TempDir(), "missing.txt"), "", filepath.Join(t.TempDir(), "x.zip")); err == nil {
		t.Fatal("missing script accepted")
	}
}

func TestReadRejectsBundleWithoutScript(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty.zip")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	if err := addBytes(zw, ManifestName, []byte("x")); err != nil {
		t.Fatal(err)
	}
	_ = zw.Close()
	_ = f.Close()
	if _, err := Read(p); err == nil {
		t.Fatal("bundle without script accepted")
	}
}

func TestInstallSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	sp := write(t, dir, "s.txt", "new script")
	pp := write(t, dir, "p.json", "{}")
	zipPath := filepath.Join(dir, "b.zip")
	if err := Pack(sp, pp, zipPath); err != nil {
		t.Fatal(err)
	}
	target := t.TempDir()
	write(t, target, ScriptName, "keep me")
	written, err := Install(zipPath, target)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(written) != 1 || filepath.Base(written[0]) != ParamsName {
		t.Fatalf("written = %v", written)
	}
	got, _ := os.ReadFile(filepath.Join(target, ScriptName))
	if string(got) != "keep me" {
		t.Fatalf("existing script overwritten: %q", got)
	}
}
