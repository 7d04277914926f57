// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	json "github.com/goccy/go-json"

	"github.com/boardstream/boardstream/internal/logging"
	"github.com/boardstream/boardstream/internal/models"
)

const schema = `
CREATE SEQUENCE IF NOT EXISTS events_seq START 1;

CREATE TABLE IF NOT EXISTS events (
    sequence_id BIGINT PRIMARY KEY DEFAULT nextval('events_seq'),
    event_id    VARCHAR NOT NULL UNIQUE,
    event_type  VARCHAR NOT NULL,
    repo        VARCHAR,
    payload     JSON NOT NULL,
    created_at  TIMESTAMP NOT NULL DEFAULT current_timestamp
);

CREATE INDEX IF NOT EXISTS idx_events_repo ON events (repo);
CREATE INDEX IF NOT EXISTS idx_events_created ON events (created_at);

CREATE TABLE IF NOT EXISTS repositories (
    full_name  VARCHAR PRIMARY KEY,
    owner      VARCHAR NOT NULL,
    github_id  BIGINT,
    data       JSON,
    updated_at TIMESTAMP NOT NULL
);
`

// DuckDB is the primary Store implementation.
type DuckDB struct {
	conn *sql.DB
}

// Options configures a DuckDB store. An empty Path opens an in-memory
// database.
type Options struct {
	Path      string
	MaxMemory string
}

// NewDuckDB opens the database file and applies the schema.
func NewDuckDB(opts Options) (*DuckDB, error) {
	connStr := ":memory:"
	if opts.Path != "" {
		dbDir := filepath.Dir(opts.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dbDir, err)
			}
		}
		connStr = opts.Path + "?access_mode=read_write"
		if opts.MaxMemory != "" {
			connStr += "&max_memory=" + opts.MaxMemory
		}
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// DuckDB is an embedded single-writer engine.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logging.Info().Str("path", opts.Path).Msg("Event store opened")
	return &DuckDB{conn: conn}, nil
}

// SaveEvent appends to the event log. Saving the same event id twice
// returns the existing sequence id instead of a constraint error, so a
// retried job converges on the first write.
func (d *DuckDB) SaveEvent(ctx context.Context, eventID, eventType string, payload json.RawMessage) (int64, error) {
	repo := ""
	if ref := models.RepositoryFromPayload(payload); ref != nil {
		repo = ref.FullName
	}

	var seq int64
	err := d.conn.QueryRowContext(ctx, `
		INSERT INTO events (event_id, event_type, repo, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id) DO UPDATE SET event_id = excluded.event_id
		RETURNING sequence_id`,
		eventID, eventType, repo, string(payload),
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("save event %s: %w", eventID, err)
	}
	return seq, nil
}

// GetEvent returns one event by id.
func (d *DuckDB) GetEvent(ctx context.Context, eventID string) (*models.EventRecord, error) {
	row := d.conn.QueryRowContext(ctx, `
		SELECT sequence_id, event_id, event_type, payload::VARCHAR, created_at
		FROM events WHERE event_id = ?`, eventID)
	return scanEvent(row)
}

// ListEvents returns matching events ordered by sequence id ascending.
func (d *DuckDB) ListEvents(ctx context.Context, filter EventFilter) ([]*models.EventRecord, error) {
	query := `
		SELECT sequence_id, event_id, event_type, payload::VARCHAR, created_at
		FROM events WHERE 1=1`
	var args []any
	if filter.Repo != "" {
		query += " AND repo = ?"
		args = append(args, filter.Repo)
	}
	if !filter.From.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.To)
	}
	query += " ORDER BY sequence_id ASC"

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*models.EventRecord
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, rec)
	}
	return events, rows.Err()
}

// UpsertRepository inserts or replaces a repository snapshot. A snapshot
// without API data stores NULL, since DuckDB rejects an empty string as
// JSON.
func (d *DuckDB) UpsertRepository(ctx context.Context, repo *models.Repository) error {
	var data any
	if len(repo.Data) > 0 {
		data = string(repo.Data)
	}
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO repositories (full_name, owner, github_id, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (full_name) DO UPDATE SET
			owner = excluded.owner,
			github_id = excluded.github_id,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		repo.FullName, repo.Owner, repo.ID, data, repo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert repository %s: %w", repo.FullName, err)
	}
	return nil
}

// GetRepository returns a repository snapshot by full name.
func (d *DuckDB) GetRepository(ctx context.Context, fullName string) (*models.Repository, error) {
	var (
		repo models.Repository
		data sql.NullString
	)
	err := d.conn.QueryRowContext(ctx, `
		SELECT full_name, owner, github_id, data::VARCHAR, updated_at
		FROM repositories WHERE full_name = ?`, fullName,
	).Scan(&repo.FullName, &repo.Owner, &repo.ID, &data, &repo.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", fullName, err)
	}
	if data.Valid {
		repo.Data = json.RawMessage(data.String)
	}
	return &repo, nil
}

// Close closes the database.
func (d *DuckDB) Close() error {
	return d.conn.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.EventRecord, error) {
	var (
		rec     models.EventRecord
		payload string
		created time.Time
	)
	err := row.Scan(&rec.SequenceID, &rec.EventID, &rec.EventType, &payload, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	rec.Payload = json.RawMessage(payload)
	rec.CreatedAt = created
	return &rec, nil
}
