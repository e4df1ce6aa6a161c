/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"goinstruct/internal/domain"
	applog "goinstruct/internal/log"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUnknownParticipant is returned when a subject has no participant row.
var ErrUnknownParticipant = errors.New("unknown participant")

// ErrNoScript is returned when a participant has no script assigned.
var ErrNoScript = errors.New("no script assigned")

// Repository is the persistence behind the instruction endpoints.
type Repository interface {
	Parameters(ctx context.Context, subject string) (domain.ExperimentData, error)
	Instructions(ctx context.Context, subject string) ([]string, error)
	UpdatePage(ctx context.Context, p domain.Progress) error
	Ping(ctx context.Context) error
}

// PGRepository stores scripts, participants and progress in PostgreSQL.
type PGRepository struct {
	db *sql.DB
}

// OpenPG connects through the pgx stdlib driver, pings and applies migrations.
func OpenPG(ctx context.Context, dsn string) (*PGRepository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PGRepository{db: db}, nil
}

// Close releases the pool.
func (r *PGRepository) Close() error { return r.db.Close() }

// Ping checks connectivity.
func (r *PGRepository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Parameters returns the stored experiment data for subject.
func (r *PGRepository) Parameters(ctx context.Context, subject string) (domain.ExperimentData, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT exp_data FROM participants WHERE subject = $1`, subject).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExperimentData{}, ErrUnknownParticipant
	}
	if err != nil {
		return domain.ExperimentData{}, fmt.Errorf("select participant: %w", err)
	}
	return domain.Decode(raw)
}

// Instructions returns the script lines assigned to subject.
func (r *PGRepository) Instructions(ctx context.Context, subject string) ([]string, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT s.lines FROM participants p LEFT JOIN scripts s ON s.id = p.script_id WHERE p.subject = $1`, subject).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownParticipant
	}
	if err != nil {
		return nil, fmt.Errorf("select script: %w", err)
	}
	if raw == nil {
		return nil, ErrNoScript
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("decode script lines: %w", err)
	}
	return lines, nil
}

// UpdatePage appends a progress row for p.Subject.
func (r *PGRepository) UpdatePage(ctx context.Context, p domain.Progress) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO progress(subject, current_page, last_completed_page, last_page, complete) VALUES($1,$2,$3,$4,$5)`,
		p.Subject, p.CurrentPage, p.LastCompletedPage, p.LastPage, p.Complete)
	if err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return nil
}

// PutScript inserts or replaces the named script and returns its id.
func (r *PGRepository) PutScript(ctx context.Context, name string, lines []string) (int64, error) {
	b, err := json.Marshal(lines)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRowContext(ctx, `INSERT INTO scripts(name, lines) VALUES($1, $2)
		ON CONFLICT (name) DO UPDATE SET lines = EXCLUDED.lines, updated_at = now()
		RETURNING id`, name, string(b)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert script: %w", err)
	}
	return id, nil
}

// PutParticipant inserts or replaces a participant bound to the named script.
func (r *PGRepository) PutParticipant(ctx context.Context, subject, scriptName string, data domain.ExperimentData) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO participants(subject, script_id, exp_data)
		VALUES($1, (SELECT id FROM scripts WHERE name = $2), $3)
		ON CONFLICT (subject) DO UPDATE SET script_id = EXCLUDED.script_id, exp_data = EXCLUDED.exp_data`,
		subject, scriptName, string(b))
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

// LatestProgress returns the newest progress row for subject.
func (r *PGRepository) LatestProgress(ctx context.Context, subject string) (domain.Progress, bool, error) {
	p := domain.Progress{Subject: subject}
	err := r.db.QueryRowContext(ctx, `SELECT current_page, last_completed_page, last_page, complete FROM progress WHERE subject = $1 ORDER BY id DESC LIMIT 1`, subject).
		Scan(&p.CurrentPage, &p.LastCompletedPage, &p.LastPage, &p.Complete)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Progress{}, false, nil
	}
	if err != nil {
		return domain.Progress{}, false, fmt.Errorf("select progress: %w", err)
	}
	return p, true, nil
}

// applyMigrations applies embedded SQL migrations in filename order and records each version.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(strings.ToLower(name), ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	// dialect=PostgreSQL
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	l := applog.WithOperation(applog.WithComponent("backend"), "migrate")
	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		l.Info("applying migration", slog.String("file", fname))
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

// MemoryRepository serves one script and experiment payload to every subject.
// It records progress in memory. Used by the local dev server and tests.
type MemoryRepository struct {
	mu       sync.Mutex
	data     domain.ExperimentData
	lines    []string
	progress map[string][]domain.Progress
}

// NewMemoryRepository returns a repository serving lines and data.
func NewMemoryRepository(lines []string, data domain.ExperimentData) *MemoryRepository {
	return &MemoryRepository{
		data:     data,
		lines:    append([]string(nil), lines...),
		progress: make(map[string][]domain.Progress),
	}
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }

func (m *MemoryRepository) Parameters(context.Context, string) (domain.ExperimentData, error) {
	return m.data, nil
}

func (m *MemoryRepository) Instructions(context.Context, string) ([]string, error) {
	if len(m.lines) == 0 {
		return nil, ErrNoScript
	}
	return append([]string(nil), m.lines...), nil
}

func (m *MemoryRepository) UpdatePage(_ context.Context, p domain.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[p.Subject] = append(m.progress[p.Subject], p)
	return nil
}

// Progress returns the recorded transitions for subject, oldest first.
func (m *MemoryRepository) Progress(subject string) []domain.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Progress(nil), m.progress[subject]...)
}
