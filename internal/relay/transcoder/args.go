// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"strconv"
	"strings"
)

func isValidFFmpegLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	default:
		return false
	}
}

// BuildArgs renders the ffmpeg argument vector for s (excluding argv[0]).
//
// Input is the browser recorder's WebM stream on stdin with timestamps
// regenerated; output is low-latency H.264/AAC in FLV pushed to the ingest URL.
// Progress is written as key=value blocks to stderr.
func BuildArgs(s Spec) []string {
	level := "warning"
	if isValidFFmpegLogLevel(s.LogLevel) {
		level = strings.ToLower(s.LogLevel)
	}

	args := []string{
		"-hide_banner",
		"-nostats",
		"-loglevel", level,
		"-progress", "pipe:2",
	}

	// Input: start without long probing. Buffering comes from
	// -thread_queue_size, so the demuxer keeps its default buffers.
	args = append(args,
		"-f", orDefault(s.InputFormat, "webm"),
		"-fflags", "+genpts+igndts",
	)
	if s.ProbeSize != "" {
		args = append(args, "-probesize", s.ProbeSize)
	}
	if s.AnalyzeDuration != "" {
		args = append(args, "-analyzeduration", s.AnalyzeDuration)
	}
	if s.ThreadQueueSize > 0 {
		args = append(args, "-thread_queue_size", strconv.Itoa(s.ThreadQueueSize))
	}
	args = append(args, "-i", "pipe:0")

	// Video
	args = append(args, "-c:v", orDefault(s.VideoCodec, "libx264"))
	if s.Preset != "" {
		args = append(args, "-preset", s.Preset)
	}
	if s.Tune != "" {
		args = append(args, "-tune", s.Tune)
	}
	args = append(args, "-pix_fmt", orDefault(s.PixelFormat, "yuv420p"))
	if s.Width > 0 && s.Height > 0 {
		args = append(args, "-s", strconv.Itoa(s.Width)+"x"+strconv.Itoa(s.Height))
	}
	fps := strconv.Itoa(s.FrameRate)
	args = append(args,
		"-r", fps,
		"-b:v", s.VideoBitrate,
		"-maxrate", s.VideoBitrate,
		"-bufsize", doubleBitrate(s.VideoBitrate),
		"-g", strconv.Itoa(KeyframeInterval(s.FrameRate)),
		"-keyint_min", strconv.Itoa(MinKeyframeInterval(s.FrameRate)),
		"-sc_threshold", "0",
	)

	// Audio
	sampleRate := s.AudioSampleRate
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	args = append(args,
		"-c:a", orDefault(s.AudioCodec, "aac"),
		"-ar", strconv.Itoa(sampleRate),
		"-b:a", s.AudioBitrate,
	)

	// Output: FLV without trailing duration/filesize rewrite.
	args = append(args,
		"-avoid_negative_ts", "make_zero",
		"-flvflags", "no_duration_filesize",
		"-f", "flv",
		s.IngestURL,
	)
	return args
}

// CommandLine renders bin plus args for logs and the Started event.
// The stream key segment of the ingest URL is masked.
func CommandLine(s Spec) string {
	args := BuildArgs(s)
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, s.Bin)
	for _, a := range args {
		if a == s.IngestURL {
			a = MaskIngestURL(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// MaskIngestURL replaces the last path segment (the stream key) with "***".
func MaskIngestURL(u string) string {
	i := strings.LastIndex(u, "/")
	if i < 0 || i == len(u)-1 {
		return u
	}
	if j := strings.Index(u, "://"); j >= 0 && i <= j+2 {
		return u
	}
	return u[:i+1] + "***"
}

// doubleBitrate returns twice a human bitrate ("2500k" -> "5000k").
// Unparsable input is returned unchanged.
func doubleBitrate(b string) string {
	if b == "" {
		return b
	}
	num, suffix := b, ""
	if last := b[len(b)-1]; last < '0' || last > '9' {
		num, suffix = b[:len(b)-1], b[len(b)-1:]
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return b
	}
	return strconv.FormatFloat(f*2, 'f', -1, 64) + suffix
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
