// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"

	"github.com/rs/zerolog"
)

// Validate checks cross-field invariants. It reports every problem at once.
func Validate(cfg AppConfig) error {
	v := &ValidationError{}

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		v.add("logLevel %q is not a valid level", cfg.LogLevel)
	}

	if strings.TrimSpace(cfg.API.ListenAddr) == "" {
		v.add("api.listenAddr must not be empty")
	}
	if cfg.API.MaxChunkBytes <= 0 {
		v.add("api.maxChunkBytes must be > 0")
	}
	if cfg.API.RateLimitRPM < 0 {
		v.add("api.rateLimitRPM must be >= 0")
	}

	if strings.TrimSpace(cfg.FFmpeg.Bin) == "" {
		v.add("ffmpeg.bin must not be empty")
	}
	if cfg.FFmpeg.AudioSampleRate <= 0 {
		v.add("ffmpeg.audioSampleRate must be > 0")
	}
	if cfg.FFmpeg.ThreadQueueSize < 0 {
		v.add("ffmpeg.threadQueueSize must be >= 0")
	}
	if cfg.FFmpeg.InputFormat == "" || cfg.FFmpeg.VideoCodec == "" || cfg.FFmpeg.AudioCodec == "" {
		v.add("ffmpeg.inputFormat, ffmpeg.videoCodec and ffmpeg.audioCodec are required")
	}

	if cfg.Relay.StopKillTimeout < 0 {
		v.add("relay.stopKillTimeout must be >= 0")
	}
	if cfg.Relay.ReplaceTimeout <= 0 {
		v.add("relay.replaceTimeout must be > 0")
	}
	if cfg.Relay.StartTimeout < 0 {
		v.add("relay.startTimeout must be >= 0")
	}
	if cfg.Relay.StallTimeout < 0 {
		v.add("relay.stallTimeout must be >= 0")
	}
	if cfg.Relay.BufferHighWaterBytes < 0 {
		v.add("relay.bufferHighWaterBytes must be >= 0")
	}

	switch cfg.Journal.Backend {
	case "memory":
		if cfg.Journal.Capacity <= 0 {
			v.add("journal.capacity must be > 0 for the memory backend")
		}
	case "sqlite":
		if strings.TrimSpace(cfg.Journal.Path) == "" {
			v.add("journal.path is required for the sqlite backend")
		}
	default:
		v.add("journal.backend %q is not supported (memory, sqlite)", cfg.Journal.Backend)
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			v.add("telemetry.exporter %q is not supported (grpc, http)", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.Endpoint == "" {
			v.add("telemetry.endpoint is required when telemetry is enabled")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		v.add("telemetry.samplingRate must be within [0, 1]")
	}

	return v.orNil()
}
