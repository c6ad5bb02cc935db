// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// ToFileConfig converts an effective configuration back to its YAML shape.
// Loading the result with no environment overrides yields cfg again.
func ToFileConfig(cfg AppConfig) FileConfig {
	api := cfg.API
	ff := cfg.FFmpeg
	rl := cfg.Relay
	jr := cfg.Journal
	tm := cfg.Telemetry

	return FileConfig{
		LogLevel:   &cfg.LogLevel,
		LogService: &cfg.LogService,
		API: &APIFileConfig{
			ListenAddr:     &api.ListenAddr,
			MaxChunkBytes:  &api.MaxChunkBytes,
			RateLimitRPM:   &api.RateLimitRPM,
			AllowedOrigins: api.AllowedOrigins,
		},
		FFmpeg: &FFmpegFileConfig{
			Bin:             &ff.Bin,
			LogLevel:        &ff.LogLevel,
			InputFormat:     &ff.InputFormat,
			VideoCodec:      &ff.VideoCodec,
			AudioCodec:      &ff.AudioCodec,
			Preset:          &ff.Preset,
			Tune:            &ff.Tune,
			PixelFormat:     &ff.PixelFormat,
			AudioSampleRate: &ff.AudioSampleRate,
			ProbeSize:       &ff.ProbeSize,
			AnalyzeDuration: &ff.AnalyzeDuration,
			ThreadQueueSize: &ff.ThreadQueueSize,
		},
		Relay: &RelayFileConfig{
			StopKillTimeout:      durationString(rl.StopKillTimeout),
			ReplaceTimeout:       durationString(rl.ReplaceTimeout),
			StartTimeout:         durationString(rl.StartTimeout),
			StallTimeout:         durationString(rl.StallTimeout),
			BufferHighWaterBytes: &rl.BufferHighWaterBytes,
			DefaultVideoBitrate:  &rl.DefaultVideoBitrate,
			DefaultAudioBitrate:  &rl.DefaultAudioBitrate,
		},
		Journal: &JournalFileConfig{
			Backend:  &jr.Backend,
			Path:     &jr.Path,
			Capacity: &jr.Capacity,
		},
		Telemetry: &TelemetryFileConfig{
			Enabled:      &tm.Enabled,
			Exporter:     &tm.Exporter,
			Endpoint:     &tm.Endpoint,
			SamplingRate: &tm.SamplingRate,
		},
	}
}

func durationString(d time.Duration) *string {
	s := d.String()
	return &s
}
