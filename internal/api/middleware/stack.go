// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package middleware provides the HTTP middleware stack of the relay API.
package middleware

import (
	"net/http"

	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/go-chi/chi/v5"
)

// StackConfig selects the optional layers of the ingress stack.
// Recovery and request IDs are always installed.
type StackConfig struct {
	EnableCORS     bool
	AllowedOrigins []string

	EnableMetrics bool
	// TracingService names the otelhttp service; empty disables tracing.
	TracingService string
	EnableLogging  bool
}

// NewRouter returns a chi router with the ingress stack installed.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack installs the ingress stack on r, outermost first.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(cfg.layers()...)
}

func (cfg StackConfig) layers() []func(http.Handler) http.Handler {
	out := []func(http.Handler) http.Handler{Recoverer, RequestID}
	if cfg.EnableCORS {
		out = append(out, CORS(cfg.AllowedOrigins))
	}
	if cfg.EnableMetrics {
		out = append(out, Metrics())
	}
	if cfg.TracingService != "" {
		out = append(out, OTelHTTP(cfg.TracingService))
	}
	// Logging sits innermost so its latency covers the handler only.
	if cfg.EnableLogging {
		out = append(out, xglog.Middleware())
	}
	return out
}
