// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseStringList(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if cfg.Journal.Backend == "sqlite" && cfg.Journal.Path != "" {
		if abs, err := filepath.Abs(cfg.Journal.Path); err == nil {
			cfg.Journal.Path = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:   "info",
		LogService: "streamrelay",
		API: APIConfig{
			ListenAddr:    ":8088",
			MaxChunkBytes: 32 << 20,
			RateLimitRPM:  120,
		},
		FFmpeg: FFmpegConfig{
			Bin:             "ffmpeg",
			LogLevel:        "warning",
			InputFormat:     "webm",
			VideoCodec:      "libx264",
			AudioCodec:      "aac",
			Preset:          "ultrafast",
			Tune:            "zerolatency",
			PixelFormat:     "yuv420p",
			AudioSampleRate: 44100,
			ProbeSize:       "32",
			AnalyzeDuration: "0",
			ThreadQueueSize: 512,
		},
		Relay: RelayConfig{
			ReplaceTimeout:       5 * time.Second,
			BufferHighWaterBytes: 64 << 20,
			DefaultVideoBitrate:  "2500k",
			DefaultAudioBitrate:  "128k",
		},
		Journal: JournalConfig{
			Backend:  "memory",
			Path:     "streamrelay.db",
			Capacity: 100,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "http",
			Endpoint:     "localhost:4318",
			SamplingRate: 1.0,
		},
	}
}

// loadFile reads a YAML file strictly: unknown keys are errors.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	// #nosec G304 -- path comes from the operator via --config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parseFileConfig(data)
}

func parseFileConfig(data []byte) (*FileConfig, error) {
	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return &fc, nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &fc, nil
}

// LoadFileConfig loads a YAML config file without applying defaults or env overrides.
func LoadFileConfig(path string) (*FileConfig, error) {
	return NewLoader(path, "").loadFile(path)
}

func mergeFileConfig(cfg *AppConfig, fc *FileConfig) error {
	if fc == nil {
		return nil
	}
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogService, fc.LogService)

	if a := fc.API; a != nil {
		setString(&cfg.API.ListenAddr, a.ListenAddr)
		if a.MaxChunkBytes != nil {
			cfg.API.MaxChunkBytes = *a.MaxChunkBytes
		}
		if a.RateLimitRPM != nil {
			cfg.API.RateLimitRPM = *a.RateLimitRPM
		}
		if a.AllowedOrigins != nil {
			cfg.API.AllowedOrigins = append([]string(nil), a.AllowedOrigins...)
		}
	}

	if f := fc.FFmpeg; f != nil {
		setString(&cfg.FFmpeg.Bin, f.Bin)
		setString(&cfg.FFmpeg.LogLevel, f.LogLevel)
		setString(&cfg.FFmpeg.InputFormat, f.InputFormat)
		setString(&cfg.FFmpeg.VideoCodec, f.VideoCodec)
		setString(&cfg.FFmpeg.AudioCodec, f.AudioCodec)
		setString(&cfg.FFmpeg.Preset, f.Preset)
		setString(&cfg.FFmpeg.Tune, f.Tune)
		setString(&cfg.FFmpeg.PixelFormat, f.PixelFormat)
		setString(&cfg.FFmpeg.ProbeSize, f.ProbeSize)
		setString(&cfg.FFmpeg.AnalyzeDuration, f.AnalyzeDuration)
		if f.AudioSampleRate != nil {
			cfg.FFmpeg.AudioSampleRate = *f.AudioSampleRate
		}
		if f.ThreadQueueSize != nil {
			cfg.FFmpeg.ThreadQueueSize = *f.ThreadQueueSize
		}
	}

	if r := fc.Relay; r != nil {
		for _, d := range []struct {
			name string
			raw  *string
			dst  *time.Duration
		}{
			{"relay.stopKillTimeout", r.StopKillTimeout, &cfg.Relay.StopKillTimeout},
			{"relay.replaceTimeout", r.ReplaceTimeout, &cfg.Relay.ReplaceTimeout},
			{"relay.startTimeout", r.StartTimeout, &cfg.Relay.StartTimeout},
			{"relay.stallTimeout", r.StallTimeout, &cfg.Relay.StallTimeout},
		} {
			if d.raw == nil {
				continue
			}
			parsed, err := time.ParseDuration(strings.TrimSpace(*d.raw))
			if err != nil {
				return fmt.Errorf("%s: %w", d.name, err)
			}
			*d.dst = parsed
		}
		if r.BufferHighWaterBytes != nil {
			cfg.Relay.BufferHighWaterBytes = *r.BufferHighWaterBytes
		}
		setString(&cfg.Relay.DefaultVideoBitrate, r.DefaultVideoBitrate)
		setString(&cfg.Relay.DefaultAudioBitrate, r.DefaultAudioBitrate)
	}

	if j := fc.Journal; j != nil {
		setString(&cfg.Journal.Backend, j.Backend)
		setString(&cfg.Journal.Path, j.Path)
		if j.Capacity != nil {
			cfg.Journal.Capacity = *j.Capacity
		}
	}

	if t := fc.Telemetry; t != nil {
		if t.Enabled != nil {
			cfg.Telemetry.Enabled = *t.Enabled
		}
		setString(&cfg.Telemetry.Exporter, t.Exporter)
		setString(&cfg.Telemetry.Endpoint, t.Endpoint)
		if t.SamplingRate != nil {
			cfg.Telemetry.SamplingRate = *t.SamplingRate
		}
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString("RELAY_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("RELAY_LOG_SERVICE", cfg.LogService)

	cfg.API.ListenAddr = l.envString("RELAY_LISTEN", cfg.API.ListenAddr)
	cfg.API.MaxChunkBytes = l.envInt64("RELAY_MAX_CHUNK_BYTES", cfg.API.MaxChunkBytes)
	cfg.API.RateLimitRPM = l.envInt("RELAY_RATE_LIMIT_RPM", cfg.API.RateLimitRPM)
	cfg.API.AllowedOrigins = l.envList("RELAY_ALLOWED_ORIGINS", cfg.API.AllowedOrigins)

	cfg.FFmpeg.Bin = l.envString("RELAY_FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.FFmpeg.LogLevel = l.envString("RELAY_FFMPEG_LOGLEVEL", cfg.FFmpeg.LogLevel)
	cfg.FFmpeg.InputFormat = l.envString("RELAY_FFMPEG_INPUT_FORMAT", cfg.FFmpeg.InputFormat)
	cfg.FFmpeg.VideoCodec = l.envString("RELAY_FFMPEG_VIDEO_CODEC", cfg.FFmpeg.VideoCodec)
	cfg.FFmpeg.AudioCodec = l.envString("RELAY_FFMPEG_AUDIO_CODEC", cfg.FFmpeg.AudioCodec)
	cfg.FFmpeg.Preset = l.envString("RELAY_FFMPEG_PRESET", cfg.FFmpeg.Preset)
	cfg.FFmpeg.Tune = l.envString("RELAY_FFMPEG_TUNE", cfg.FFmpeg.Tune)
	cfg.FFmpeg.PixelFormat = l.envString("RELAY_FFMPEG_PIXEL_FORMAT", cfg.FFmpeg.PixelFormat)
	cfg.FFmpeg.AudioSampleRate = l.envInt("RELAY_FFMPEG_AUDIO_SAMPLE_RATE", cfg.FFmpeg.AudioSampleRate)
	cfg.FFmpeg.ProbeSize = l.envString("RELAY_FFMPEG_PROBESIZE", cfg.FFmpeg.ProbeSize)
	cfg.FFmpeg.AnalyzeDuration = l.envString("RELAY_FFMPEG_ANALYZEDURATION", cfg.FFmpeg.AnalyzeDuration)
	cfg.FFmpeg.ThreadQueueSize = l.envInt("RELAY_FFMPEG_THREAD_QUEUE_SIZE", cfg.FFmpeg.ThreadQueueSize)

	cfg.Relay.StopKillTimeout = l.envDuration("RELAY_STOP_KILL_TIMEOUT", cfg.Relay.StopKillTimeout)
	cfg.Relay.ReplaceTimeout = l.envDuration("RELAY_REPLACE_TIMEOUT", cfg.Relay.ReplaceTimeout)
	cfg.Relay.StartTimeout = l.envDuration("RELAY_START_TIMEOUT", cfg.Relay.StartTimeout)
	cfg.Relay.StallTimeout = l.envDuration("RELAY_STALL_TIMEOUT", cfg.Relay.StallTimeout)
	cfg.Relay.BufferHighWaterBytes = l.envInt64("RELAY_BUFFER_HIGH_WATER_BYTES", cfg.Relay.BufferHighWaterBytes)
	cfg.Relay.DefaultVideoBitrate = l.envString("RELAY_DEFAULT_VIDEO_BITRATE", cfg.Relay.DefaultVideoBitrate)
	cfg.Relay.DefaultAudioBitrate = l.envString("RELAY_DEFAULT_AUDIO_BITRATE", cfg.Relay.DefaultAudioBitrate)

	cfg.Journal.Backend = l.envString("RELAY_JOURNAL_BACKEND", cfg.Journal.Backend)
	cfg.Journal.Path = l.envString("RELAY_JOURNAL_PATH", cfg.Journal.Path)
	cfg.Journal.Capacity = l.envInt("RELAY_JOURNAL_CAPACITY", cfg.Journal.Capacity)

	cfg.Telemetry.Enabled = l.envBool("RELAY_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("RELAY_TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("RELAY_TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("RELAY_TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
