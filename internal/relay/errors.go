// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/streamrelay/internal/relay/transcoder"
)

var (
	// ErrInvalidConfig is wrapped by every session configuration error.
	ErrInvalidConfig = errors.New("invalid session config")
	// ErrSpawn is wrapped when the transcoder could not be started.
	ErrSpawn = transcoder.ErrSpawn
)

// ConfigError lists every problem found in a SessionConfig.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func (e *ConfigError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ConfigError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
