/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"testing"
	"time"
)

func TestScriptSnapshotsSaveDedupeListPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	v1 := []string{"{% page Intro %}", "Hello"}
	saved, err := s.SaveScriptSnapshot(ctx, "remote", v1, base)
	if err != nil || !saved {
		t.Fatalf("first save: saved=%v err=%v", saved, err)
	}
	// identical content is not stored twice
	saved, err = s.SaveScriptSnapshot(ctx, "remote", v1, base.Add(time.Minute))
	if err != nil || saved {
		t.Fatalf("duplicate save: saved=%v err=%v", saved, err)
	}
	for i := 1; i <= 3; i++ {
		lines := append(append([]string{}, v1...), time.Duration(i).String())
		if _, err := s.SaveScriptSnapshot(ctx, "remote", lines, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if _, err := s.SaveScriptSnapshot(ctx, "file", []string{"other"}, base); err != nil {
		t.Fatalf("save other source: %v", err)
	}

	latest, ok, err := s.LatestScriptSnapshot(ctx, "remote")
	if err != nil || !ok {
		t.Fatalf("LatestScriptSnapshot: ok=%v err=%v", ok, err)
	}
	if len(latest.Lines) != 3 || latest.Lines[2] != "3ns" {
		t.Fatalf("unexpected latest lines: %#v", latest.Lines)
	}
	if !latest.TS.Equal(base.Add(3 * time.Hour)) {
		t.Fatalf("latest ts = %v", latest.TS)
	}

	list, err := s.ListScriptSnapshots(ctx, "remote", 10)
	if err != nil {
		t.Fatalf("ListScriptSnapshots: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("list len = %d, want 4", len(list))
	}

	n, err := s.PruneScriptSnapshots(ctx, "remote", 2)
	if err != nil {
		t.Fatalf("PruneScriptSnapshots: %v", err)
	}
	if n != 2 {
		t.Fatalf("pruned %d, want 2", n)
	}
	list, _ = s.ListScriptSnapshots(ctx, "remote", 10)
	if len(list) != 2 {
		t.Fatalf("after prune len = %d, want 2", len(list))
	}
	other, ok, _ := s.LatestScriptSnapshot(ctx, "file")
	if !ok || other.Lines[0] != "other" {
		t.Fatalf("prune must not touch other sources: %+v", other)
	}
}

func TestLatestScriptSnapshotMissing(t *testing.T) {
	s := openTestStore(t)
	if _, ok, err := s.LatestScriptSnapshot(context.Background(), "none"); err != nil || ok {
		t.Fatalf("expected no snapshot: ok=%v err=%v", ok, err)
	}
}

func TestPruneScriptSnapshotsNonPositiveKeep(t *testing.T) {
	s := openTestStore(t)
	if n, err := s.PruneScriptSnapshots(context.Background(), "remote", 0); err != nil || n != 0 {
		t.Fatalf("keep 0 should be a no-op: n=%d err=%v", n, err)
	}
}
