// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func baseSpec() Spec {
	return Spec{
		Bin:             "ffmpeg",
		IngestURL:       "rtmp://example.com/live/abc123",
		Width:           1280,
		Height:          720,
		FrameRate:       30,
		VideoBitrate:    "2500k",
		AudioBitrate:    "128k",
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
	}
}

func TestBuildArgs_HappyPath(t *testing.T) {
	want := []string{
		"-hide_banner", "-nostats", "-loglevel", "warning", "-progress", "pipe:2",
		"-f", "webm", "-fflags", "+genpts+igndts",
		"-probesize", "32", "-analyzeduration", "0", "-thread_queue_size", "512",
		"-i", "pipe:0",
		"-c:v", "libx264", "-preset", "ultrafast", "-tune", "zerolatency",
		"-pix_fmt", "yuv420p", "-s", "1280x720",
		"-r", "30", "-b:v", "2500k", "-maxrate", "2500k", "-bufsize", "5000k",
		"-g", "60", "-keyint_min", "30", "-sc_threshold", "0",
		"-c:a", "aac", "-ar", "44100", "-b:a", "128k",
		"-avoid_negative_ts", "make_zero",
		"-flvflags", "no_duration_filesize",
		"-f", "flv", "rtmp://example.com/live/abc123",
	}
	if diff := cmp.Diff(want, BuildArgs(baseSpec())); diff != "" {
		t.Errorf("BuildArgs mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildArgs_ZeroResolutionOmitsSize(t *testing.T) {
	s := baseSpec()
	s.Width, s.Height = ParseResolution("abcxdef")
	args := BuildArgs(s)
	assert.NotContains(t, args, "-s")
	// the spawn is still attempted with every other parameter intact
	assert.Equal(t, "rtmp://example.com/live/abc123", args[len(args)-1])
}

func TestBuildArgs_InvalidLogLevelFallsBack(t *testing.T) {
	s := baseSpec()
	s.LogLevel = "chatty"
	args := BuildArgs(s)
	assert.Equal(t, "warning", args[3])
}

func TestCommandLine_MasksKey(t *testing.T) {
	line := CommandLine(baseSpec())
	assert.True(t, strings.HasPrefix(line, "ffmpeg -hide_banner"))
	assert.NotContains(t, line, "abc123")
	assert.Contains(t, line, "rtmp://example.com/live/***")
}

func TestDoubleBitrate(t *testing.T) {
	assert.Equal(t, "5000k", doubleBitrate("2500k"))
	assert.Equal(t, "3M", doubleBitrate("1.5M"))
	assert.Equal(t, "2000000", doubleBitrate("1000000"))
	assert.Equal(t, "fast", doubleBitrate("fast"))
	assert.Equal(t, "", doubleBitrate(""))
}
