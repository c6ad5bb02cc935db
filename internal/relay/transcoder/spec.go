// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"strconv"
	"strings"
)

// Spec is a fully resolved transcoder invocation.
type Spec struct {
	Bin       string
	IngestURL string

	Width     int
	Height    int
	FrameRate int

	VideoBitrate string
	AudioBitrate string

	// Tunables from configuration.
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

// ParseResolution splits "<w>x<h>". A dimension that is missing, unparsable
// or negative becomes 0; malformed input never fails.
func ParseResolution(s string) (width, height int) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return parseDim(w), 0
	}
	return parseDim(w), parseDim(h)
}

func parseDim(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// IngestURL joins the RTMP base and stream key with exactly one separator.
func IngestURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

// KeyframeInterval is the GOP length in frames: one keyframe every two seconds.
func KeyframeInterval(fps int) int { return 2 * fps }

// MinKeyframeInterval is the shortest allowed GOP: one second of frames.
func MinKeyframeInterval(fps int) int { return fps }
