// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestHTTPAttributes(t *testing.T) {
	m := attrMap(HTTPAttributes("POST", "/api/v1/stream/start", 202))
	assert.Equal(t, "POST", m[HTTPMethodKey].AsString())
	assert.Equal(t, "/api/v1/stream/start", m[HTTPRouteKey].AsString())
	assert.Equal(t, int64(202), m[HTTPStatusCodeKey].AsInt64())
}

func TestSessionAttributes(t *testing.T) {
	m := attrMap(SessionAttributes("s-1", "rtmp://example.com/live/***", "1280x720", 30))
	assert.Equal(t, "s-1", m[SessionIDKey].AsString())
	assert.Equal(t, "rtmp://example.com/live/***", m[SessionIngestURLKey].AsString())
	assert.Equal(t, "1280x720", m[SessionResolutionKey].AsString())
	assert.Equal(t, int64(30), m[SessionFrameRateKey].AsInt64())
}

func TestTranscodeAttributes(t *testing.T) {
	m := attrMap(TranscodeAttributes("libx264", "aac", "2500k", "128k"))
	assert.Len(t, m, 4)
	assert.Equal(t, "libx264", m[TranscodeVideoCodecKey].AsString())
	assert.Equal(t, "128k", m[TranscodeAudioBitrateKey].AsString())
}

func TestErrorAttributes(t *testing.T) {
	m := attrMap(ErrorAttributes("spawn"))
	assert.True(t, m[ErrorKey].AsBool())
	assert.Equal(t, "spawn", m[ErrorTypeKey].AsString())
}
