// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in   string
		w, h int
	}{
		{"1280x720", 1280, 720},
		{"1920X1080", 1920, 1080},
		{" 640 x 360 ", 640, 360},
		{"abcxdef", 0, 0},
		{"1280xabc", 1280, 0},
		{"-5x720", 0, 720},
		{"", 0, 0},
		{"720", 720, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, h := ParseResolution(tt.in)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestIngestURL(t *testing.T) {
	want := "rtmp://example.com/live/abc123"
	assert.Equal(t, want, IngestURL("rtmp://example.com/live", "abc123"))
	assert.Equal(t, want, IngestURL("rtmp://example.com/live/", "abc123"))
	assert.Equal(t, want, IngestURL("rtmp://example.com/live//", "abc123"))
}

func TestKeyframeIntervals(t *testing.T) {
	assert.Equal(t, 60, KeyframeInterval(30))
	assert.Equal(t, 30, MinKeyframeInterval(30))
	assert.Equal(t, 50, KeyframeInterval(25))
}

func TestMaskIngestURL(t *testing.T) {
	assert.Equal(t, "rtmp://example.com/live/***", MaskIngestURL("rtmp://example.com/live/abc123"))
	assert.Equal(t, "rtmp://example.com", MaskIngestURL("rtmp://example.com"))
	assert.Equal(t, "rtmp://example.com/", MaskIngestURL("rtmp://example.com/"))
}
