// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Session attributes
	SessionIDKey         = "relay.session_id"
	SessionIngestURLKey  = "relay.ingest_url"
	SessionResolutionKey = "relay.resolution"
	SessionFrameRateKey  = "relay.frame_rate"
	SessionOutcomeKey    = "relay.outcome"

	// Transcoding attributes
	TranscodeVideoCodecKey   = "transcode.video_codec"
	TranscodeAudioCodecKey   = "transcode.audio_codec"
	TranscodeVideoBitrateKey = "transcode.video_bitrate"
	TranscodeAudioBitrateKey = "transcode.audio_bitrate"
	TranscodePIDKey          = "transcode.pid"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes describes a relay session. ingestURL must already be masked.
func SessionAttributes(sessionID, ingestURL, resolution string, frameRate int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, sessionID),
		attribute.String(SessionIngestURLKey, ingestURL),
		attribute.String(SessionResolutionKey, resolution),
		attribute.Int(SessionFrameRateKey, frameRate),
	}
}

// TranscodeAttributes describes the encoder settings of a session.
func TranscodeAttributes(videoCodec, audioCodec, videoBitrate, audioBitrate string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TranscodeVideoCodecKey, videoCodec),
		attribute.String(TranscodeAudioCodecKey, audioCodec),
		attribute.String(TranscodeVideoBitrateKey, videoBitrate),
		attribute.String(TranscodeAudioBitrateKey, audioBitrate),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
