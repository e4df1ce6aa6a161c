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
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"goinstruct/internal/domain"
)

// language=SQL
// dialect=SQLite
const insertProgressSQL = `INSERT INTO progress(subject, current_page, last_completed_page, last_page, complete, ts) VALUES (?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestProgressSQL = `SELECT subject, current_page, last_completed_page, last_page, complete, ts FROM progress WHERE subject = ? ORDER BY id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listProgressSQL = `SELECT subject, current_page, last_completed_page, last_page, complete, ts FROM progress WHERE subject = ? ORDER BY id DESC LIMIT ?`

// ProgressRecord is one stored page transition.
type ProgressRecord struct {
	domain.Progress
	TS time.Time
}

// ReportProgress appends a page transition for p.Subject.
func (s *Store) ReportProgress(ctx context.Context, p domain.Progress) error {
	if s == nil || s.db == nil {
		return errors.New("storage: store not open")
	}
	if p.CurrentPage < 1 {
		return fmt.Errorf("storage: invalid current page %d", p.CurrentPage)
	}
	_, err := s.db.ExecContext(ctx, insertProgressSQL,
		p.Subject, p.CurrentPage, p.LastCompletedPage, p.LastPage, boolInt(p.Complete),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	s.log.Debug("progress stored", slog.String("subject", p.Subject), slog.Int("page", p.CurrentPage), slog.Bool("complete", p.Complete))
	return nil
}

// LatestProgress returns the most recent transition for subject. ok is false when none exists.
func (s *Store) LatestProgress(ctx context.Context, subject string) (rec ProgressRecord, ok bool, err error) {
	rec, err = scanProgress(s.db.QueryRowContext(ctx, selectLatestProgressSQL, subject))
	if errors.Is(err, sql.ErrNoRows) {
		return ProgressRecord{}, false, nil
	}
	if err != nil {
		return ProgressRecord{}, false, fmt.Errorf("read progress: %w", err)
	}
	return rec, true, nil
}

// ProgressHistory returns up to limit transitions for subject, newest first.
func (s *Store) ProgressHistory(ctx context.Context, subject string, limit int) ([]ProgressRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, listProgressSQL, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []ProgressRecord
	for rows.Next() {
		rec, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgress(r scanner) (ProgressRecord, error) {
	var rec ProgressRecord
	var complete int
	var ts string
	if err := r.Scan(&rec.Subject, &rec.CurrentPage, &rec.LastCompletedPage, &rec.LastPage, &complete, &ts); err != nil {
		return ProgressRecord{}, err
	}
	rec.Complete = complete != 0
	rec.TS, _ = time.Parse(time.RFC3339Nano, ts)
	return rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
