// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestToFileConfig_RoundTrips(t *testing.T) {
	want := Defaults()
	want.Version = "v-test"
	want.Relay.StopKillTimeout = 3 * time.Second
	want.API.AllowedOrigins = []string{"https://studio.example"}
	want.Telemetry.Enabled = true

	out, err := yaml.Marshal(ToFileConfig(want))
	require.NoError(t, err)

	got, err := NewLoader(writeConfig(t, string(out)), "v-test").Load()
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
