// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/ManuGH/streamrelay/internal/log"
)

// panicBody is the JSON returned to clients after a handler panic.
type panicBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
}

// Recoverer converts a handler panic into a logged 500 JSON response.
// http.ErrAbortHandler is re-raised.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				reportPanic(r, v)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(panicBody{
					Error:     "internal server error",
					RequestID: log.RequestIDFromContext(r.Context()),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func reportPanic(r *http.Request, v any) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Error().
		Str(log.FieldEvent, "http.panic").
		Str("method", r.Method).
		Str("path", strings.ToValidUTF8(r.URL.Path, "")).
		Str("remote_addr", r.RemoteAddr).
		Interface("panic", v).
		Bytes("stack", debug.Stack()).
		Msg("handler panicked")
}
