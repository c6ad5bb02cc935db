// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package journal keeps a history of relay sessions. It never stores media.
package journal

import (
	"context"
	"fmt"
	"time"
)

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeStopped  Outcome = "stopped"
	OutcomeFailed   Outcome = "failed"
	OutcomeReplaced Outcome = "replaced"
)

// Entry is one finished session.
type Entry struct {
	SessionID     string    `json:"sessionId"`
	IngestURL     string    `json:"ingestUrl"` // stream key masked
	Resolution    string    `json:"resolution"`
	FrameRate     int       `json:"frameRate"`
	Outcome       Outcome   `json:"outcome"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	EndedAt       time.Time `json:"endedAt"`
	BytesPushed   int64     `json:"bytesPushed"`
	ChunksPushed  int64     `json:"chunksPushed"`
	ChunksDropped int64     `json:"chunksDropped"`
}

// Store persists session entries.
type Store interface {
	Record(ctx context.Context, e Entry) error
	// List returns up to limit entries, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// NewStore creates a journal store for backend.
func NewStore(backend, path string, capacity int) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(capacity), nil
	case "sqlite":
		return NewSqliteStore(path)
	default:
		return nil, fmt.Errorf("unknown journal backend: %s (supported: memory, sqlite)", backend)
	}
}
