// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/browsergrid/browsergrid/lib/session"
	"github.com/browsergrid/browsergrid/lib/sessiontoken"
)

var relayUpgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	// The connect token is the access control; origin checks would
	// only break non-browser protocol clients.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeTimeout = 30 * time.Second

// relayWebSocket bridges a client WebSocket to the session's engine
// socket. The engine is dialed before the client upgrade so a dead
// engine produces a clean 503 instead of an upgrade-then-slam.
func (g *Gateway) relayWebSocket(w http.ResponseWriter, r *http.Request, token *sessiontoken.Token, endpoints EngineEndpoints) {
	if !g.breaker.Allow() {
		g.metrics.RecordError(ErrorKindBreakerOpen)
		g.writeError(w, session.ErrCircuitOpen, "engine circuit open; retry later")
		return
	}

	engineConn, _, err := websocket.DefaultDialer.DialContext(
		r.Context(), g.engineSocketURL(r, endpoints), nil)
	if err != nil {
		g.breaker.Failure()
		g.metrics.RecordError(ErrorKindEngine)
		g.logger.Warn("engine dial failed",
			"session", token.SessionID, "error", err)
		g.writeError(w, session.ErrEngineUnreachable, "browser engine is unreachable")
		return
	}
	g.breaker.Success()

	clientConn, err := relayUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade writes its own error response.
		engineConn.Close()
		g.logger.Warn("client upgrade failed",
			"session", token.SessionID, "error", err)
		return
	}

	g.metrics.RecordWebSocket()
	connectionID, first := g.registry.Add(token.SessionID, remoteIP(r))
	if first && g.config.OnFirstAttach != nil {
		g.config.OnFirstAttach(token.SessionID)
	}
	g.logger.Info("relay attached",
		"session", token.SessionID,
		"connection", connectionID,
		"remote", remoteIP(r),
	)

	defer func() {
		clientConn.Close()
		engineConn.Close()
		sessionID, last := g.registry.Remove(connectionID)
		if last && g.config.OnLastDetach != nil {
			g.config.OnLastDetach(sessionID)
		}
		g.logger.Info("relay detached",
			"session", token.SessionID, "connection", connectionID)
	}()

	// Two pumps, one per direction. The first to fail sends a close
	// frame on the peer and unblocks the other by closing both sockets.
	var once sync.Once
	done := make(chan struct{})
	shutdown := func() {
		once.Do(func() {
			deadline := time.Now().Add(writeTimeout)
			closeFrame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "relay closed")
			clientConn.WriteControl(websocket.CloseMessage, closeFrame, deadline)
			engineConn.WriteControl(websocket.CloseMessage, closeFrame, deadline)
			clientConn.Close()
			engineConn.Close()
			close(done)
		})
	}

	go func() {
		g.pump(clientConn, engineConn, connectionID, true)
		shutdown()
	}()
	g.pump(engineConn, clientConn, connectionID, false)
	shutdown()
	<-done
}

// pump copies messages from src to dst until either side fails,
// crediting byte counters as it goes. toEngine marks the direction for
// accounting.
func (g *Gateway) pump(src, dst *websocket.Conn, connectionID string, toEngine bool) {
	for {
		messageType, payload, err := src.ReadMessage()
		if err != nil {
			return
		}
		dst.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := dst.WriteMessage(messageType, payload); err != nil {
			return
		}
		if toEngine {
			g.registry.Touch(connectionID, int64(len(payload)), 0)
			g.metrics.RecordBytes(int64(len(payload)), 0)
		} else {
			g.registry.Touch(connectionID, 0, int64(len(payload)))
			g.metrics.RecordBytes(0, int64(len(payload)))
		}
	}
}

// engineSocketURL picks the engine target for a WebSocket relay: a
// protocol subpath under the session maps onto the engine's HTTP host,
// everything else goes to the engine's root debugger socket.
func (g *Gateway) engineSocketURL(r *http.Request, endpoints EngineEndpoints) string {
	enginePath := r.PathValue("enginePath")
	if enginePath == "" {
		return endpoints.WebSocketURL
	}
	base := strings.Replace(endpoints.HTTPBaseURL, "http", "ws", 1)
	return base + "/" + enginePath
}
