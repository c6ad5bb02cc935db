// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/streamrelay/internal/bus"
	xglog "github.com/ManuGH/streamrelay/internal/log"
	"github.com/ManuGH/streamrelay/internal/relay"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReplyQueue = 8
)

// wsControl is a text frame sent by the client.
type wsControl struct {
	Type   string               `json:"type"`
	Config *relay.SessionConfig `json:"config,omitempty"`
}

// wsMessage is a text frame sent to the client.
type wsMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// handleWS upgrades to a WebSocket. Binary frames are media chunks, text
// frames are control messages, and relay notifications are pushed back.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.wsConns.Add(1)
	defer s.wsConns.Done()

	ctx, cancel := context.WithCancel(s.rootCtx)
	defer cancel()

	logger := s.logger.With().
		Str(xglog.FieldComponent, "ws").
		Str(xglog.FieldRequestID, xglog.RequestIDFromContext(r.Context())).
		Str("remote_addr", r.RemoteAddr).
		Logger()

	sub, err := s.bus.Subscribe(ctx, relay.NotificationTopic)
	if err != nil {
		logger.Error().Err(err).Msg("failed to subscribe to notifications")
		_ = conn.Close()
		return
	}
	defer func() { _ = sub.Close() }()

	logger.Info().Str(xglog.FieldEvent, "ws.connected").Msg("websocket client connected")

	replies := make(chan wsMessage, wsReplyQueue)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.wsWrite(ctx, conn, sub.C(), replies, logger)
	}()

	s.wsRead(ctx, conn, replies, logger)
	cancel()
	wg.Wait()
	_ = conn.Close()

	logger.Info().Str(xglog.FieldEvent, "ws.disconnected").Msg("websocket client disconnected")
}

// wsWrite is the only writer on conn. It closes conn when it returns so a
// blocked reader wakes up.
func (s *Server) wsWrite(ctx context.Context, conn *websocket.Conn, notes <-chan bus.Message, replies <-chan wsMessage, logger zerolog.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	send := func(m wsMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(m); err != nil {
			logger.Debug().Err(err).Msg("websocket write failed")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case msg, ok := <-notes:
			if !ok {
				return
			}
			n, ok := msg.(relay.Notification)
			if !ok {
				continue
			}
			if !send(wsMessage{Type: string(n.Type), Message: n.Message, SessionID: n.SessionID}) {
				return
			}

		case m := <-replies:
			if !send(m) {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) wsRead(ctx context.Context, conn *websocket.Conn, replies chan<- wsMessage, logger zerolog.Logger) {
	conn.SetReadLimit(s.cfg.MaxChunkBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		switch mt {
		case websocket.BinaryMessage:
			s.relay.PushChunk(data)
		case websocket.TextMessage:
			if reply, ok := s.wsControl(ctx, data); ok {
				select {
				case replies <- reply:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// wsControl executes one control message. Relay outcomes arrive as
// notifications; only malformed requests get a direct reply.
func (s *Server) wsControl(ctx context.Context, data []byte) (wsMessage, bool) {
	var msg wsControl
	if err := json.Unmarshal(data, &msg); err != nil {
		return wsMessage{Type: string(relay.NotifyError), Message: "malformed control message: " + err.Error()}, true
	}

	switch msg.Type {
	case "start":
		if msg.Config == nil {
			return wsMessage{Type: string(relay.NotifyError), Message: "start requires a config"}, true
		}
		_, _ = s.relay.Start(ctx, *msg.Config)
	case "stop":
		_ = s.relay.Stop(ctx)
	default:
		return wsMessage{Type: string(relay.NotifyError), Message: "unknown control message type " + msg.Type}, true
	}
	return wsMessage{}, false
}
