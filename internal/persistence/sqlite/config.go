// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sqlite opens SQLite databases with the pragmas every store relies on.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Config holds pool and locking parameters for Open.
type Config struct {
	BusyTimeout time.Duration
	// MaxOpenConns of 1 serialises writers; WAL readers benefit from more.
	MaxOpenConns int
	ConnLifetime time.Duration
}

// DefaultConfig returns the journal's settings.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
		ConnLifetime: time.Hour,
	}
}

// dsn encodes the pragmas as _pragma parameters so the driver applies them
// on every pooled connection, not just the first one.
func (c Config) dsn(path string) string {
	pragmas := []string{
		"journal_mode(WAL)",
		fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()),
		"synchronous(NORMAL)",
		"foreign_keys(ON)",
	}
	return "file:" + path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
}

// Open returns a pinged connection pool for the database at path.
func Open(path string, cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	if cfg.ConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnLifetime)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	return db, nil
}

// JournalMode reports the active journal mode; "wal" after Open.
func JournalMode(db *sql.DB) (string, error) {
	var mode string
	err := db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	return mode, err
}
