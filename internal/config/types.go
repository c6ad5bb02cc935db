// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	Version    string
	LogLevel   string
	LogService string

	API       APIConfig
	FFmpeg    FFmpegConfig
	Relay     RelayConfig
	Journal   JournalConfig
	Telemetry TelemetryConfig
}

// APIConfig configures the HTTP/WebSocket control plane.
type APIConfig struct {
	ListenAddr     string
	MaxChunkBytes  int64
	RateLimitRPM   int // 0 disables rate limiting of control routes
	AllowedOrigins []string
}

// FFmpegConfig holds transcoder invocation tunables. Session-specific values
// (URL, bitrates, frame rate, resolution) come from the start request.
type FFmpegConfig struct {
	Bin             string
	LogLevel        string
	InputFormat     string
	VideoCodec      string
	AudioCodec      string
	Preset          string
	Tune            string
	PixelFormat     string
	AudioSampleRate int
	ProbeSize       string
	AnalyzeDuration string
	ThreadQueueSize int
}

// RelayConfig controls session supervision.
type RelayConfig struct {
	// StopKillTimeout escalates a graceful stop to SIGKILL. Zero waits for
	// the transcoder to exit on its own.
	StopKillTimeout time.Duration
	// ReplaceTimeout bounds the wait for a replaced session's process to exit.
	ReplaceTimeout time.Duration
	// StartTimeout fails a session that never confirms startup. Zero disables.
	StartTimeout time.Duration
	// StallTimeout fails a session whose progress stops advancing. Zero disables.
	StallTimeout time.Duration
	// BufferHighWaterBytes logs a warning when the ingress queue grows past it.
	// Zero disables the warning; the queue itself is never bounded.
	BufferHighWaterBytes int64

	DefaultVideoBitrate string
	DefaultAudioBitrate string
}

// JournalConfig selects the session history backend.
type JournalConfig struct {
	Backend  string // memory | sqlite
	Path     string
	Capacity int
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string // grpc | http
	Endpoint     string
	SamplingRate float64
}

// FileConfig is the YAML representation. Pointer fields distinguish "unset"
// from zero values so the file only overrides what it names.
type FileConfig struct {
	LogLevel   *string `yaml:"logLevel,omitempty"`
	LogService *string `yaml:"logService,omitempty"`

	API       *APIFileConfig       `yaml:"api,omitempty"`
	FFmpeg    *FFmpegFileConfig    `yaml:"ffmpeg,omitempty"`
	Relay     *RelayFileConfig     `yaml:"relay,omitempty"`
	Journal   *JournalFileConfig   `yaml:"journal,omitempty"`
	Telemetry *TelemetryFileConfig `yaml:"telemetry,omitempty"`
}

type APIFileConfig struct {
	ListenAddr     *string  `yaml:"listenAddr,omitempty"`
	MaxChunkBytes  *int64   `yaml:"maxChunkBytes,omitempty"`
	RateLimitRPM   *int     `yaml:"rateLimitRPM,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

type FFmpegFileConfig struct {
	Bin             *string `yaml:"bin,omitempty"`
	LogLevel        *string `yaml:"logLevel,omitempty"`
	InputFormat     *string `yaml:"inputFormat,omitempty"`
	VideoCodec      *string `yaml:"videoCodec,omitempty"`
	AudioCodec      *string `yaml:"audioCodec,omitempty"`
	Preset          *string `yaml:"preset,omitempty"`
	Tune            *string `yaml:"tune,omitempty"`
	PixelFormat     *string `yaml:"pixelFormat,omitempty"`
	AudioSampleRate *int    `yaml:"audioSampleRate,omitempty"`
	ProbeSize       *string `yaml:"probeSize,omitempty"`
	AnalyzeDuration *string `yaml:"analyzeDuration,omitempty"`
	ThreadQueueSize *int    `yaml:"threadQueueSize,omitempty"`
}

type RelayFileConfig struct {
	StopKillTimeout      *string `yaml:"stopKillTimeout,omitempty"`
	ReplaceTimeout       *string `yaml:"replaceTimeout,omitempty"`
	StartTimeout         *string `yaml:"startTimeout,omitempty"`
	StallTimeout         *string `yaml:"stallTimeout,omitempty"`
	BufferHighWaterBytes *int64  `yaml:"bufferHighWaterBytes,omitempty"`
	DefaultVideoBitrate  *string `yaml:"defaultVideoBitrate,omitempty"`
	DefaultAudioBitrate  *string `yaml:"defaultAudioBitrate,omitempty"`
}

type JournalFileConfig struct {
	Backend  *string `yaml:"backend,omitempty"`
	Path     *string `yaml:"path,omitempty"`
	Capacity *int    `yaml:"capacity,omitempty"`
}

type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     *string  `yaml:"exporter,omitempty"`
	Endpoint     *string  `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}
