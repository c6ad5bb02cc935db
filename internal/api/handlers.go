// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/relay"
)

const (
	maxControlBody     = 64 << 10
	defaultSessionList = 20
	maxSessionList     = 1000
)

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var cfg relay.SessionConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxControlBody))
	if err := dec.Decode(&cfg); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode session config: %w", err))
		return
	}

	info, err := s.relay.Start(r.Context(), cfg)
	if err != nil {
		code := statusFor(err)
		logger := xglog.WithContext(r.Context(), s.logger)
		evt := logger.Warn()
		if code >= http.StatusInternalServerError {
			evt = logger.Error()
		}
		evt.Err(err).Str(xglog.FieldEvent, "api.start_failed").Int("status", code).Msg("start request failed")
		writeError(w, r, code, err)
		return
	}
	writeJSON(w, http.StatusAccepted, info)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.relay.Stop(r.Context()); err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.relay.Status())
}

// handleChunk treats the whole request body as one media chunk.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxChunkBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Errorf("chunk exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("read chunk: %w", err))
		return
	}
	s.relay.PushChunk(body)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.Status())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultSessionList
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = min(n, maxSessionList)
	}

	entries, err := s.journal.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("list sessions: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": entries})
}
