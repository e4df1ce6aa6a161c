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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"goinstruct/internal/backend"
	"goinstruct/internal/config"
	"goinstruct/internal/domain"
	"goinstruct/internal/instruction"
)

func TestLoadSourceFallsBackToSnapshot(t *testing.T) {
	cfg := isolate(t)
	lines := strings.Split(strings.TrimSpace(gatedScript), "\n")
	data := domain.ExperimentData{
		ExpParams:  map[string]any{"rounds": 3},
		PlayerData: map[string]any{"displayname": "Ada"},
	}
	repo := backend.NewMemoryRepository(lines, data)
	srv := httptest.NewServer(backend.NewHandler(repo, "test-secret"))
	tok, err := backend.SignToken("test-secret", "p1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if err := config.Save(cfg, tok); err != nil {
		t.Fatal(err)
	}
	cfg.Backend.BaseURL = srv.URL
	sf := sourceFlags{subject: "p1", db: t.TempDir()}

	var warn bytes.Buffer
	ctx := context.Background()
	src, err := loadSource(ctx, cfg, sf, &warn)
	if err != nil {
		t.Fatalf("online load: %v", err)
	}
	if src.script.CountPages() != 2 || src.data == nil || src.data.DisplayName() != "Ada" {
		t.Fatalf("online source: pages=%d data=%v", src.script.CountPages(), src.data)
	}

	// progress reaches both the local store and the server
	sess := instruction.New(src.script, nil, src.options()...)
	if err := sess.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if rec, ok, err := src.store.LatestProgress(ctx, "p1"); err != nil || !ok || rec.CurrentPage != 1 {
		t.Fatalf("local progress = %+v %v %v", rec, ok, err)
	}
	if got := repo.Progress("p1"); len(got) != 1 || got[0].CurrentPage != 1 {
		t.Fatalf("server progress = %+v", got)
	}
	sess.Close()
	src.Close()
	srv.Close()

	sf.params = writeFile(t, "p.json", paramsJSON)
	src, err = loadSource(ctx, cfg, sf, &warn)
	if err != nil {
		t.Fatalf("offline load: %v", err)
	}
	defer src.Close()
	if src.script.Len() != len(lines) || src.script.CountPages() != 2 {
		t.Fatalf("snapshot script: %d lines", src.script.Len())
	}
}

func TestLoadSourceWithoutScriptOrBackend(t *testing.T) {
	cfg := isolate(t)
	_, err := loadSource(context.Background(), cfg, sourceFlags{offline: true}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "backend disabled") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadSourceReportsWarnings(t *testing.T) {
	cfg := isolate(t)
	sp := writeFile(t, "s.txt", "{% page A %}\n{% shwo box %}\n")
	var warn bytes.Buffer
	src, err := loadSource(context.Background(), cfg, sourceFlags{script: sp, offline: true}, &warn)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	if !strings.Contains(warn.String(), "warning: line 2") {
		t.Fatalf("warnings = %q", warn.String())
	}
	if src.data != nil || src.client != nil || src.store != nil {
		t.Fatalf("offline source touched backend or store: %+v", src)
	}
}
