// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements Store using SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (and migrates) the journal database at dbPath.
// An existing file is integrity-checked first.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("journal store: create dir: %w", err)
		}
	}
	if _, err := os.Stat(dbPath); err == nil {
		issues, err := sqlite.VerifyFile(context.Background(), dbPath, sqlite.QuickCheck)
		if err != nil {
			return nil, fmt.Errorf("journal store: verify: %w", err)
		}
		if len(issues) > 0 {
			return nil, fmt.Errorf("journal store: %s failed integrity check: %s", dbPath, strings.Join(issues, "; "))
		}
	}

	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal store: migration failed: %w", err)
	}
	logger := xglog.WithComponent("journal")
	logger.Info().Str("path", dbPath).Msg("session journal opened")
	return s, nil
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		ingest_url TEXT NOT NULL,
		resolution TEXT NOT NULL,
		frame_rate INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at_ms INTEGER NOT NULL,
		ended_at_ms INTEGER NOT NULL,
		bytes_pushed INTEGER NOT NULL DEFAULT 0,
		chunks_pushed INTEGER NOT NULL DEFAULT 0,
		chunks_dropped INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_ended ON sessions(ended_at_ms);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) Record(ctx context.Context, e Entry) error {
	query := `
	INSERT INTO sessions (session_id, ingest_url, resolution, frame_rate, outcome, error,
		started_at_ms, ended_at_ms, bytes_pushed, chunks_pushed, chunks_dropped)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		outcome = excluded.outcome,
		error = excluded.error,
		ended_at_ms = excluded.ended_at_ms,
		bytes_pushed = excluded.bytes_pushed,
		chunks_pushed = excluded.chunks_pushed,
		chunks_dropped = excluded.chunks_dropped
	`
	_, err := s.DB.ExecContext(ctx, query,
		e.SessionID, e.IngestURL, e.Resolution, e.FrameRate, string(e.Outcome), e.Error,
		e.StartedAt.UnixMilli(), e.EndedAt.UnixMilli(), e.BytesPushed, e.ChunksPushed, e.ChunksDropped,
	)
	return err
}

func (s *SqliteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT session_id, ingest_url, resolution, frame_rate, outcome, error,
		started_at_ms, ended_at_ms, bytes_pushed, chunks_pushed, chunks_dropped
		FROM sessions ORDER BY ended_at_ms DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			outcome            string
			startedMs, endedMs int64
		)
		if err := rows.Scan(&e.SessionID, &e.IngestURL, &e.Resolution, &e.FrameRate, &outcome, &e.Error,
			&startedMs, &endedMs, &e.BytesPushed, &e.ChunksPushed, &e.ChunksDropped); err != nil {
			return nil, err
		}
		e.Outcome = Outcome(outcome)
		e.StartedAt = time.UnixMilli(startedMs).UTC()
		e.EndedAt = time.UnixMilli(endedMs).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}
