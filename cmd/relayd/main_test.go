// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManuGH/streamrelay/internal/config"
	"github.com/ManuGH/streamrelay/internal/relay/transcoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigValidate(t *testing.T) {
	var stdout, stderr bytes.Buffer

	ok := writeFile(t, "ok.yaml", "ffmpeg:\n  bin: /usr/bin/ffmpeg\nrelay:\n  stopKillTimeout: 5s\n")
	assert.Equal(t, 0, runConfigCLI([]string{"validate", "-f", ok}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "is valid")

	bad := writeFile(t, "bad.yaml", "journal:\n  backend: redis\n")
	stderr.Reset()
	assert.Equal(t, 1, runConfigCLI([]string{"validate", "-f", bad}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "journal")

	unknown := writeFile(t, "unknown.yaml", "ffmpeg:\n  binary: ffmpeg\n")
	assert.Equal(t, 1, runConfigCLI([]string{"validate", "-f", unknown}, &stdout, &stderr))

	assert.Equal(t, 2, runConfigCLI([]string{"validate"}, &stdout, &stderr))
}

func TestConfigDump_WritesLoadableFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	src := writeFile(t, "src.yaml", "relay:\n  stopKillTimeout: 7s\napi:\n  rateLimitRPM: 30\n")
	out := filepath.Join(t.TempDir(), "effective.yaml")

	code := runConfigCLI([]string{"dump", "-f", src, "-o", out}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	cfg, err := config.NewLoader(out, "").Load()
	require.NoError(t, err)
	assert.Equal(t, "7s", cfg.Relay.StopKillTimeout.String())
	assert.Equal(t, 30, cfg.API.RateLimitRPM)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestConfigDump_Formats(t *testing.T) {
	var stdout, stderr bytes.Buffer

	require.Equal(t, 0, runConfigCLI([]string{"dump", "--format=json"}, &stdout, &stderr))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(stdout.String()), "{"))

	stdout.Reset()
	require.Equal(t, 0, runConfigCLI([]string{"dump"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "ffmpeg:")

	assert.Equal(t, 2, runConfigCLI([]string{"dump", "--format=toml"}, &stdout, &stderr))
	assert.Equal(t, 2, runConfigCLI([]string{"frobnicate"}, &stdout, &stderr))
}

func TestConfiguredLauncher_UsesLiveConfig(t *testing.T) {
	cfg := config.Defaults()
	holder := config.NewHolder(cfg, config.NewLoader("", ""), "")
	l := newConfiguredLauncher(holder)

	_, err := l.Launch(context.Background(), transcoder.Spec{Bin: ""}, strings.NewReader(""))
	require.ErrorIs(t, err, transcoder.ErrSpawn)
}
