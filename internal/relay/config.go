// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"encoding/json"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/ManuGH/streamrelay/internal/relay/transcoder"
	"golang.org/x/net/idna"
)

var bitrateRe = regexp.MustCompile(`^\d+(\.\d+)?[kKmM]?$`)

// SessionConfig is the immutable request that starts a session.
type SessionConfig struct {
	DestinationBaseURL string `json:"destinationBaseUrl"`
	StreamKey          string `json:"streamKey"`
	FrameRate          int    `json:"frameRate"`
	VideoBitrate       string `json:"videoBitrate"`
	AudioBitrate       string `json:"audioBitrate"`
	Resolution         string `json:"resolution"`
}

// UnmarshalJSON accepts "fps" as an alias of "frameRate".
func (c *SessionConfig) UnmarshalJSON(data []byte) error {
	type plain SessionConfig
	var aux struct {
		plain
		FPS *int `json:"fps"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = SessionConfig(aux.plain)
	if c.FrameRate == 0 && aux.FPS != nil {
		c.FrameRate = *aux.FPS
	}
	return nil
}

// resolved is a validated SessionConfig plus derived values.
type resolved struct {
	SessionConfig
	IngestURL string
	Width     int
	Height    int
}

// Validate reports structural problems without applying defaults.
func (c SessionConfig) Validate() error {
	_, err := c.resolve("", "")
	return err
}

// resolve validates c, fills empty bitrates with the given defaults and
// builds the ingest URL. A malformed resolution is not an error.
func (c SessionConfig) resolve(defaultVideo, defaultAudio string) (resolved, error) {
	cerr := &ConfigError{}

	c.DestinationBaseURL = strings.TrimSpace(c.DestinationBaseURL)
	c.StreamKey = strings.TrimSpace(c.StreamKey)
	c.VideoBitrate = strings.TrimSpace(c.VideoBitrate)
	c.AudioBitrate = strings.TrimSpace(c.AudioBitrate)

	base, err := normalizeBaseURL(c.DestinationBaseURL)
	if err != nil {
		cerr.add("destinationBaseUrl: %v", err)
	}

	switch {
	case c.StreamKey == "":
		cerr.add("streamKey is required")
	case strings.ContainsAny(c.StreamKey, " \t\r\n"):
		cerr.add("streamKey must not contain whitespace")
	}

	if c.FrameRate <= 0 {
		cerr.add("frameRate must be > 0, got %d", c.FrameRate)
	}

	if c.VideoBitrate == "" {
		c.VideoBitrate = defaultVideo
	}
	if c.AudioBitrate == "" {
		c.AudioBitrate = defaultAudio
	}
	if c.VideoBitrate != "" && !bitrateRe.MatchString(c.VideoBitrate) {
		cerr.add("videoBitrate %q is not a bitrate (e.g. 2500k)", c.VideoBitrate)
	}
	if c.AudioBitrate != "" && !bitrateRe.MatchString(c.AudioBitrate) {
		cerr.add("audioBitrate %q is not a bitrate (e.g. 128k)", c.AudioBitrate)
	}

	if err := cerr.orNil(); err != nil {
		return resolved{}, err
	}

	w, h := transcoder.ParseResolution(c.Resolution)
	return resolved{
		SessionConfig: c,
		IngestURL:     transcoder.IngestURL(base, c.StreamKey),
		Width:         w,
		Height:        h,
	}, nil
}

// normalizeBaseURL checks the RTMP root and converts an internationalised
// host to its ASCII form. Trailing separators are kept; IngestURL strips them.
func normalizeBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", errMsg("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errMsg("is not a valid URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "rtmp", "rtmps":
	default:
		return "", errMsg("scheme must be rtmp or rtmps")
	}
	host := u.Hostname()
	if host == "" {
		return "", errMsg("host is required")
	}
	// The stream key is appended as the last path segment.
	if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return "", errMsg("must not contain a query or fragment")
	}
	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", errMsg("invalid host " + host)
		}
		host = strings.ToLower(ascii)
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u.String(), nil
}

type errMsg string

func (e errMsg) Error() string { return string(e) }
