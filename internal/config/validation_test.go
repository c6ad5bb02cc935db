// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.FFmpeg.Bin = ""
	cfg.Relay.ReplaceTimeout = 0
	cfg.Relay.StopKillTimeout = -1
	cfg.Journal.Backend = "redis"

	err := Validate(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 5)
}

func TestValidate_Telemetry(t *testing.T) {
	cfg := Defaults()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Exporter = "zipkin"
	assert.Error(t, Validate(cfg))

	cfg.Telemetry.Exporter = "grpc"
	assert.NoError(t, Validate(cfg))

	cfg.Telemetry.SamplingRate = 1.5
	assert.Error(t, Validate(cfg))
}

func TestValidate_SqliteNeedsPath(t *testing.T) {
	cfg := Defaults()
	cfg.Journal.Backend = "sqlite"
	cfg.Journal.Path = " "
	assert.Error(t, Validate(cfg))
}
