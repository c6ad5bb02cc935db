// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/streamrelay/internal/relay"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func dialWS(t *testing.T, env *testEnv) (*websocket.Conn, func()) {
	t.Helper()
	ts := httptest.NewServer(env.srv.Handler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	require.Eventually(t, func() bool {
		return env.bus.Subscribers(relay.NotificationTopic) == 1
	}, 2*time.Second, 10*time.Millisecond)

	return conn, func() {
		_ = conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = env.srv.Shutdown(ctx)
		ts.Close()
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m wsMessage
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestWS_BinaryFramesAreChunks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	env := newTestEnv(t)
	conn, closeAll := dialWS(t, env)
	defer closeAll()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("one")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("two")))

	require.Eventually(t, func() bool {
		_, _, chunks := env.relay.snapshot()
		return len(chunks) == 2
	}, 2*time.Second, 10*time.Millisecond)

	_, _, chunks := env.relay.snapshot()
	assert.Equal(t, "one", string(chunks[0]))
	assert.Equal(t, "two", string(chunks[1]))
}

func TestWS_ControlMessages(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	env := newTestEnv(t)
	conn, closeAll := dialWS(t, env)
	defer closeAll()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"start","config":{"destinationBaseUrl":"rtmp://h/app","streamKey":"k","fps":24}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)))

	require.Eventually(t, func() bool {
		_, stops, _ := env.relay.snapshot()
		return stops == 1
	}, 2*time.Second, 10*time.Millisecond)

	starts, _, _ := env.relay.snapshot()
	require.Len(t, starts, 1)
	assert.Equal(t, 24, starts[0].FrameRate)
}

func TestWS_MalformedControlGetsErrorReply(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	env := newTestEnv(t)
	conn, closeAll := dialWS(t, env)
	defer closeAll()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	m := readMessage(t, conn)
	assert.Equal(t, "error", m.Type)
	assert.Contains(t, m.Message, "malformed")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pause"}`)))
	m = readMessage(t, conn)
	assert.Equal(t, "error", m.Type)
	assert.Contains(t, m.Message, "pause")
}

func TestWS_PushesNotifications(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	env := newTestEnv(t)
	conn, closeAll := dialWS(t, env)
	defer closeAll()

	ctx := context.Background()
	require.NoError(t, env.bus.Publish(ctx, relay.NotificationTopic, relay.Notification{Type: relay.NotifyStarted, SessionID: "s1"}))
	require.NoError(t, env.bus.Publish(ctx, relay.NotificationTopic, relay.Notification{Type: relay.NotifyError, Message: "ffmpeg exited with code 1"}))

	m := readMessage(t, conn)
	assert.Equal(t, wsMessage{Type: "started", SessionID: "s1"}, m)
	m = readMessage(t, conn)
	assert.Equal(t, "error", m.Type)
	assert.Equal(t, "ffmpeg exited with code 1", m.Message)
}

func TestWS_ShutdownClosesConnection(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	env := newTestEnv(t)
	conn, closeAll := dialWS(t, env)
	defer closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.srv.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
