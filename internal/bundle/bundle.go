/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package bundle packs an instruction script and its experiment parameters
// into one zip archive for handing out to lab machines, and reads it back.
package bundle

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "goinstruct/internal/log"
)

// Entry names inside a bundle.
const (
	ManifestName = "bundle.manifest.txt"
	ScriptName   = "script.txt"
	ParamsName   = "params.json"
)

// Bundle is the content of an archive. Params is nil when none was packed.
type Bundle struct {
	Script []byte
	Params []byte
}

// Pack writes scriptPath and, if set, paramsPath into destZip with a small
// manifest at the root for quick human inspection.
func Pack(scriptPath, paramsPath, destZip string) error {
	l := applog.WithOperation(applog.WithComponent("bundle"), "pack").With(slog.String("script", scriptPath))
	if strings.TrimSpace(scriptPath) == "" {
		return errors.New("scriptPath is required")
	}
	if strings.TrimSpace(destZip) == "" {
		return errors.New("destZip is required")
	}
	if err := os.MkdirAll(filepath.Dir(destZip), 0o755); err != nil {
		return fmt.Errorf("ensure zip dir: %w", err)
	}
	// On Windows, remove destination if present before create
	_ = os.Remove(destZip)

	zf, err := os.Create(destZip)
	if err != nil {
		return fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = zf.Close() }()
	zw := zip.NewWriter(zf)

	manifest := fmt.Sprintf("GoInstruct bundle\nCreated: %s\nScript: %s\n", time.Now().Format(time.RFC3339), filepath.Base(scriptPath))
	if paramsPath != "" {
		manifest += fmt.Sprintf("Params: %s\n", filepath.Base(paramsPath))
	}
	if err := addBytes(zw, ManifestName, []byte(manifest)); err != nil {
		return fmt.Errorf("add manifest: %w", err)
	}
	if err := addFile(zw, ScriptName, scriptPath); err != nil {
		return fmt.Errorf("add script: %w", err)
	}
	if paramsPath != "" {
		if err := addFile(zw, ParamsName, paramsPath); err != nil {
			return fmt.Errorf("add params: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	l.Info("bundle packed", slog.String("zip", destZip), slog.Bool("params", paramsPath != ""))
	return nil
}

func addBytes(zw *zip.Writer, name string, b []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func addFile(zw *zip.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// Read loads a bundle. The script entry is required; unknown entries are ignored.
func Read(zipPath string) (Bundle, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return Bundle{}, fmt.Errorf("open bundle: %w", err)
	}
	defer func() { _ = r.Close() }()
	var b Bundle
	for _, f := range r.File {
		var dst *[]byte
		switch f.Name {
		case ScriptName:
			dst = &b.Script
		case ParamsName:
			dst = &b.Params
		default:
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return Bundle{}, fmt.Errorf("read %s: %w", f.Name, err)
		}
		*dst = data
	}
	if b.Script == nil {
		return Bundle{}, fmt.Errorf("bundle %s has no %s", zipPath, ScriptName)
	}
	return b, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(io.LimitReader(rc, 16<<20))
}

// Install extracts a bundle's script and params into dir. Existing files are
// not overwritten; it returns the paths written.
func Install(zipPath, dir string) ([]string, error) {
	l := applog.WithOperation(applog.WithComponent("bundle"), "install").With(slog.String("dir", dir))
	b, err := Read(zipPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	var written []string
	for _, e := range []struct {
		name string
		data []byte
	}{{ScriptName, b.Script}, {ParamsName, b.Params}} {
		if e.data == nil {
			continue
		}
		target := filepath.Join(dir, e.name)
		if _, err := os.Stat(target); err == nil {
			l.Warn("skip existing file", slog.String("path", target))
			continue
		}
		if err := os.WriteFile(target, e.data, 0o644); err != nil {
			return written, err
		}
		written = append(written, target)
	}
	l.Info("bundle installed", slog.Int("files", len(written)))
	return written, nil
}
