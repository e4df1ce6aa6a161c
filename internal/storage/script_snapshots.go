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
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// language=SQL
// dialect=SQLite
const insertScriptSnapshotSQL = `INSERT INTO script_snapshots(ts, source, hash, text) VALUES (?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestScriptSnapshotSQL = `SELECT id, ts, source, hash, text FROM script_snapshots WHERE source = ? ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listScriptSnapshotsSQL = `SELECT id, ts, source, hash, text FROM script_snapshots WHERE source = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldScriptSnapshotsSQL = `DELETE FROM script_snapshots WHERE source = ? AND id NOT IN (
	SELECT id FROM script_snapshots WHERE source = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// ScriptSnapshot is a stored copy of a fetched script.
type ScriptSnapshot struct {
	ID     int64
	TS     time.Time
	Source string
	Hash   string
	Lines  []string
}

// SaveScriptSnapshot stores lines under source unless the latest snapshot for
// that source has identical content. saved reports whether a row was written.
func (s *Store) SaveScriptSnapshot(ctx context.Context, source string, lines []string, ts time.Time) (saved bool, err error) {
	text := strings.Join(lines, "\n")
	hash := contentHash(text)
	latest, ok, err := s.LatestScriptSnapshot(ctx, source)
	if err != nil {
		return false, err
	}
	if ok && latest.Hash == hash {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, insertScriptSnapshotSQL, ts.UTC().Format(time.RFC3339Nano), source, hash, text); err != nil {
		return false, fmt.Errorf("insert script snapshot: %w", err)
	}
	s.log.Debug("script snapshot saved", slog.String("source", source), slog.Int("lines", len(lines)))
	return true, nil
}

// LatestScriptSnapshot returns the newest snapshot for source. ok is false when none exists.
func (s *Store) LatestScriptSnapshot(ctx context.Context, source string) (snap ScriptSnapshot, ok bool, err error) {
	snap, err = scanSnapshot(s.db.QueryRowContext(ctx, selectLatestScriptSnapshotSQL, source))
	if errors.Is(err, sql.ErrNoRows) {
		return ScriptSnapshot{}, false, nil
	}
	if err != nil {
		return ScriptSnapshot{}, false, fmt.Errorf("read script snapshot: %w", err)
	}
	return snap, true, nil
}

// ListScriptSnapshots returns up to limit most recent snapshots for source.
func (s *Store) ListScriptSnapshots(ctx context.Context, source string, limit int) ([]ScriptSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, listScriptSnapshotsSQL, source, limit)
	if err != nil {
		return nil, fmt.Errorf("list script snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []ScriptSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// PruneScriptSnapshots keeps at most keepLast snapshots for source and deletes older ones.
func (s *Store) PruneScriptSnapshots(ctx context.Context, source string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, pruneOldScriptSnapshotsSQL, source, source, keepLast)
	if err != nil {
		return 0, fmt.Errorf("prune script snapshots: %w", err)
	}
	return res.RowsAffected()
}

func scanSnapshot(r scanner) (ScriptSnapshot, error) {
	var snap ScriptSnapshot
	var ts, text string
	if err := r.Scan(&snap.ID, &ts, &snap.Source, &snap.Hash, &text); err != nil {
		return ScriptSnapshot{}, err
	}
	snap.TS, _ = time.Parse(time.RFC3339Nano, ts)
	if text != "" {
		snap.Lines = strings.Split(text, "\n")
	} else {
		snap.Lines = []string{}
	}
	return snap, nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
