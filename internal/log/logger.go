// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the process-wide logger. Empty fields fall back to the
// LOG_LEVEL, LOG_SERVICE and VERSION environment variables.
type Config struct {
	Level   string
	Output  io.Writer // defaults to os.Stdout
	Service string
	Version string
}

var (
	mu   sync.RWMutex
	base *zerolog.Logger
)

// Configure replaces the global logger. relayd calls it once at boot and
// again once the config file has been read.
func Configure(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(firstNonEmpty(cfg.Level, os.Getenv("LOG_LEVEL"))))
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	l := zerolog.New(out).With().
		Timestamp().
		Str(FieldService, firstNonEmpty(cfg.Service, os.Getenv("LOG_SERVICE"), "streamrelay")).
		Str(FieldVersion, firstNonEmpty(cfg.Version, os.Getenv("VERSION"))).
		Logger()

	mu.Lock()
	base = &l
	mu.Unlock()
}

func parseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func logger() zerolog.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l == nil {
		Configure(Config{})
		return logger()
	}
	return *l
}

// L returns a copy of the global logger.
func L() *zerolog.Logger {
	l := logger()
	return &l
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str(FieldComponent, component).Logger()
}
