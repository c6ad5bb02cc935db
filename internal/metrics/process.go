// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procSignalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrelay_proc_signal_total",
		Help: "Signals sent to transcoder process groups by signal and outcome",
	}, []string{"signal", "outcome"})

	// TranscoderStartTotal counts transcoder spawns by result (ok, spawn_error).
	TranscoderStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrelay_ffmpeg_start_total",
		Help: "Total number of ffmpeg process starts",
	}, []string{"result"})

	// TranscoderExitTotal counts transcoder exits by reason (clean, error, signal, stall).
	TranscoderExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrelay_ffmpeg_exit_total",
		Help: "Total number of ffmpeg process exits",
	}, []string{"reason"})

	// TranscoderDiagnosticsTotal counts stderr lines by severity.
	TranscoderDiagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrelay_ffmpeg_diagnostics_total",
		Help: "Total ffmpeg stderr lines by severity",
	}, []string{"severity"})

	// TranscoderFPS is the encoder frame rate reported by the last progress block.
	TranscoderFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamrelay_ffmpeg_fps",
		Help: "Encoder frames per second from the latest ffmpeg progress report",
	})

	// TranscoderSpeed is the realtime factor reported by ffmpeg (1.0 = realtime).
	TranscoderSpeed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamrelay_ffmpeg_speed",
		Help: "Encoding speed relative to realtime from the latest ffmpeg progress report",
	})

	// TranscoderBitrateKbps is the output bitrate reported by ffmpeg.
	TranscoderBitrateKbps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamrelay_ffmpeg_bitrate_kbps",
		Help: "Output bitrate in kbit/s from the latest ffmpeg progress report",
	})
)

// IncProcSignal records a signal delivery attempt.
func IncProcSignal(signal, outcome string) {
	procSignalTotal.WithLabelValues(signal, outcome).Inc()
}
