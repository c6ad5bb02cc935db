// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/relay"
)

type errorResponse struct {
	Error     string   `json:"error"`
	Problems  []string `json:"problems,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err with an explicit status.
func writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	resp := errorResponse{
		Error:     err.Error(),
		RequestID: xglog.RequestIDFromContext(r.Context()),
	}
	var cerr *relay.ConfigError
	if errors.As(err, &cerr) {
		resp.Error = relay.ErrInvalidConfig.Error()
		resp.Problems = cerr.Problems
	}
	writeJSON(w, code, resp)
}

// statusFor maps relay sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, relay.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, relay.ErrSpawn):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
