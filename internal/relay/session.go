// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"strconv"
	"time"

	"github.com/ManuGH/streamrelay/internal/config"
	"github.com/ManuGH/streamrelay/internal/fsm"
	"github.com/ManuGH/streamrelay/internal/relay/ingress"
	"github.com/ManuGH/streamrelay/internal/relay/transcoder"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// session is one relay run. Only the Controller touches it, under its lock.
type session struct {
	id        string
	cfg       resolved
	maskedURL string

	buffer  *ingress.Buffer
	proc    transcoder.Process
	machine *fsm.Machine[State, trigger]

	requestedAt time.Time
	activeAt    time.Time
	lastError   string

	stopKillTimeout time.Duration
	killTimer       *time.Timer

	span   trace.Span
	logger zerolog.Logger
}

func (s *session) state() State { return s.machine.State() }

func (s *session) resolution() string {
	return strconv.Itoa(s.cfg.Width) + "x" + strconv.Itoa(s.cfg.Height)
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		SessionID:   s.id,
		IngestURL:   s.maskedURL,
		State:       s.state(),
		Width:       s.cfg.Width,
		Height:      s.cfg.Height,
		FrameRate:   s.cfg.FrameRate,
		RequestedAt: s.requestedAt,
	}
}

// SessionInfo identifies a session. The stream key is never included.
type SessionInfo struct {
	SessionID   string    `json:"sessionId"`
	IngestURL   string    `json:"ingestUrl"`
	State       State     `json:"state"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FrameRate   int       `json:"frameRate"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Status is a point-in-time view of the controller.
type Status struct {
	State   State          `json:"state"`
	Session *SessionStatus `json:"session,omitempty"`
}

// SessionStatus adds runtime counters to SessionInfo.
type SessionStatus struct {
	SessionInfo
	ActiveAt   *time.Time    `json:"activeAt,omitempty"`
	StateSince time.Time     `json:"stateSince"`
	Buffer     ingress.Stats `json:"buffer"`
	LastLines  []string      `json:"lastLines,omitempty"`
}

// Settings are the operator tunables applied to each new session.
type Settings struct {
	FFmpeg config.FFmpegConfig
	Relay  config.RelayConfig
}

// SettingsFromConfig extracts the relay settings from the daemon config.
func SettingsFromConfig(cfg config.AppConfig) Settings {
	return Settings{FFmpeg: cfg.FFmpeg, Relay: cfg.Relay}
}

func buildSpec(r resolved, ff config.FFmpegConfig) transcoder.Spec {
	return transcoder.Spec{
		Bin:             ff.Bin,
		IngestURL:       r.IngestURL,
		Width:           r.Width,
		Height:          r.Height,
		FrameRate:       r.FrameRate,
		VideoBitrate:    r.VideoBitrate,
		AudioBitrate:    r.AudioBitrate,
		LogLevel:        ff.LogLevel,
		InputFormat:     ff.InputFormat,
		VideoCodec:      ff.VideoCodec,
		AudioCodec:      ff.AudioCodec,
		Preset:          ff.Preset,
		Tune:            ff.Tune,
		PixelFormat:     ff.PixelFormat,
		AudioSampleRate: ff.AudioSampleRate,
		ProbeSize:       ff.ProbeSize,
		AnalyzeDuration: ff.AnalyzeDuration,
		ThreadQueueSize: ff.ThreadQueueSize,
	}
}
