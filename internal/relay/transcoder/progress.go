// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/streamrelay/internal/metrics"
)

type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) ticker { return &realTicker{time.NewTicker(d)} }

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

// Stats holds parsed metrics from ffmpeg output.
type Stats struct {
	Frame       int
	FPS         float64
	BitrateKBPS float64
	Speed       float64
	Time        time.Duration
	TotalSize   int64
}

// progressKeys are the keys ffmpeg writes with -progress. Lines carrying
// them are machine output, not diagnostics.
var progressKeys = map[string]struct{}{
	"frame": {}, "fps": {}, "bitrate": {}, "total_size": {}, "out_time_us": {},
	"out_time_ms": {}, "out_time": {}, "dup_frames": {}, "drop_frames": {},
	"speed": {}, "progress": {},
}

// isProgressKey reports whether line is a single "key=value" progress line.
// stream_N_M_q style keys are included.
func isProgressKey(line string) (key, val string, ok bool) {
	k, v, found := strings.Cut(line, "=")
	if !found || strings.ContainsAny(k, " \t") {
		return "", "", false
	}
	if _, known := progressKeys[k]; known || strings.HasPrefix(k, "stream_") {
		return k, strings.TrimSpace(v), true
	}
	return "", "", false
}

// progressTracker folds -progress output into Stats and enforces the
// optional start and stall timeouts.
type progressTracker struct {
	mu sync.Mutex

	startTimeout time.Duration
	stallTimeout time.Duration

	stats         Stats
	lastOutTimeMs int64
	lastTotalSize int64
	lastHeartbeat time.Time
	hasProgress   bool
	completed     bool

	clock clock
}

func newProgressTracker(startTimeout, stallTimeout time.Duration, c clock) *progressTracker {
	if c == nil {
		c = realClock{}
	}
	return &progressTracker{
		startTimeout:  startTimeout,
		stallTimeout:  stallTimeout,
		clock:         c,
		lastHeartbeat: c.Now(),
	}
}

// Observe consumes one stderr line. progress is true for -progress key=value
// lines; confirmed is true once the line proves frames are flowing.
func (p *progressTracker) Observe(line string) (progress, confirmed bool) {
	key, val, ok := isProgressKey(line)
	if !ok {
		if st, valid := ParseStats(line); valid {
			p.mu.Lock()
			p.stats = st
			p.heartbeat()
			p.mu.Unlock()
			publishStats(st)
			return false, true
		}
		return false, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch key {
	case "out_time_ms", "out_time_us":
		// ffmpeg reports both keys in microseconds.
		us, _ := strconv.ParseInt(val, 10, 64)
		ms := us / 1000
		if ms > p.lastOutTimeMs {
			p.lastOutTimeMs = ms
			p.stats.Time = time.Duration(us) * time.Microsecond
			p.heartbeat()
		}
	case "total_size":
		size, _ := strconv.ParseInt(val, 10, 64)
		if size > p.lastTotalSize {
			p.lastTotalSize = size
			p.stats.TotalSize = size
			p.heartbeat()
		}
	case "frame":
		p.stats.Frame, _ = strconv.Atoi(val)
	case "fps":
		p.stats.FPS, _ = strconv.ParseFloat(val, 64)
	case "bitrate":
		if v := strings.TrimSuffix(strings.TrimSuffix(val, "kbits/s"), "kb/s"); v != "N/A" {
			p.stats.BitrateKBPS, _ = strconv.ParseFloat(v, 64)
		}
	case "speed":
		if v := strings.TrimSuffix(val, "x"); v != "N/A" {
			p.stats.Speed, _ = strconv.ParseFloat(v, 64)
		}
	case "progress":
		publishStats(p.stats)
		if val == "end" {
			p.completed = true
		}
		return true, true
	}
	return true, p.hasProgress
}

func (p *progressTracker) heartbeat() {
	p.lastHeartbeat = p.clock.Now()
	p.hasProgress = true
}

// check returns a non-nil error once a timeout has been exceeded.
func (p *progressTracker) check() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.completed {
		return nil
	}
	elapsed := p.clock.Now().Sub(p.lastHeartbeat)
	switch {
	case !p.hasProgress && p.startTimeout > 0 && elapsed > p.startTimeout:
		return fmt.Errorf("ffmpeg produced no output within %s", p.startTimeout)
	case p.hasProgress && p.stallTimeout > 0 && elapsed > p.stallTimeout:
		return fmt.Errorf("ffmpeg stalled: no progress for %s", p.stallTimeout)
	}
	return nil
}

func (p *progressTracker) enabled() bool {
	return p.startTimeout > 0 || p.stallTimeout > 0
}

func (p *progressTracker) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func publishStats(st Stats) {
	metrics.TranscoderFPS.Set(st.FPS)
	metrics.TranscoderSpeed.Set(st.Speed)
	metrics.TranscoderBitrateKbps.Set(st.BitrateKBPS)
}

// ParseStats parses a classic ffmpeg stats line such as
// "frame=  123 fps= 25 q=28.0 size=    1234kB time=00:00:12.34 bitrate= 800.0kbits/s speed=1.0x".
// Fields are extracted by substring search rather than a strict pattern.
func ParseStats(line string) (Stats, bool) {
	if !strings.Contains(line, "frame=") || !strings.Contains(line, "time=") {
		return Stats{}, false
	}

	extract := func(key string) string {
		idx := strings.Index(line, key)
		if idx == -1 {
			return ""
		}
		val := strings.TrimLeft(line[idx+len(key):], " ")
		if sp := strings.IndexByte(val, ' '); sp != -1 {
			return val[:sp]
		}
		return val
	}

	var st Stats
	found := false
	if v := strings.TrimSuffix(extract("speed="), "x"); v != "" && v != "N/A" {
		if s, err := strconv.ParseFloat(v, 64); err == nil {
			st.Speed = s
			found = true
		}
	}
	if v := extract("bitrate="); v != "" && v != "N/A" {
		v = strings.TrimSuffix(strings.TrimSuffix(v, "kbits/s"), "kb/s")
		if b, err := strconv.ParseFloat(v, 64); err == nil {
			st.BitrateKBPS = b
			found = true
		}
	}
	if v := extract("fps="); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			st.FPS = f
			found = true
		}
	}
	if v := extract("frame="); v != "" {
		if f, err := strconv.Atoi(v); err == nil {
			st.Frame = f
			found = true
		}
	}
	if v := extract("time="); v != "" && v != "N/A" {
		if d, err := parseFFmpegTime(v); err == nil {
			st.Time = d
			found = true
		}
	}
	return st, found
}

// parseFFmpegTime parses "HH:MM:SS.mm".
func parseFFmpegTime(val string) (time.Duration, error) {
	parts := strings.Split(val, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format %q", val)
	}
	hours, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	mins, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	return time.Duration((hours*3600 + mins*60 + secs) * float64(time.Second)), nil
}
