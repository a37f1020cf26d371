// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/browsergrid/browsergrid/lib/session"
)

// Realtime message kinds. The set is closed: anything else is
// rejected at the decode boundary.
const (
	messageKindConnect    = "connect"
	messageKindDisconnect = "disconnect"
)

// envelope frames every realtime message in both directions. Replies
// reuse the request kind; errors use kind "error" with an ErrorBody
// payload.
type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// realtimeHandler decodes its own payload and returns the reply
// payload value. Handlers are registered in the dispatch table at
// server construction; adding a message kind is a table entry.
type realtimeHandler func(ctx context.Context, payload json.RawMessage) (any, error)

var realtimeUpgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const realtimeWriteTimeout = 10 * time.Second

// handleRealtime runs the realtime message loop over a WebSocket.
// Each inbound envelope is dispatched through the handler table; the
// connection survives handler errors, which are reported in-band.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	conn, err := realtimeUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("realtime upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		reply := s.dispatchRealtime(r.Context(), raw)
		conn.SetWriteDeadline(time.Now().Add(realtimeWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

// dispatchRealtime decodes one envelope and routes it. All failure
// modes produce an error envelope rather than tearing the socket down.
func (s *Server) dispatchRealtime(ctx context.Context, raw []byte) envelope {
	var message envelope
	if err := decodeStrict(bytes.NewReader(raw), &message); err != nil {
		return errorEnvelope(err, "unparseable realtime message")
	}

	handler, ok := s.realtime[message.Kind]
	if !ok {
		return errorEnvelope(
			fmt.Errorf("%w: unknown message kind %q", session.ErrMalformedRequest, message.Kind),
			"unknown message kind")
	}

	result, err := handler(ctx, message.Payload)
	if err != nil {
		return errorEnvelope(err, "request failed")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return errorEnvelope(err, "reply encoding failed")
	}
	return envelope{Kind: message.Kind, Payload: payload}
}

func errorEnvelope(err error, message string) envelope {
	payload, _ := json.Marshal(session.ErrorBody{
		Error:   session.ErrorCode(err),
		Message: message,
	})
	return envelope{Kind: "error", Payload: payload}
}

func (s *Server) realtimeConnect(ctx context.Context, payload json.RawMessage) (any, error) {
	var request session.ConnectRequest
	if err := decodeStrict(bytes.NewReader(payload), &request); err != nil {
		return nil, err
	}
	return s.orchestrator.Connect(ctx, request)
}

func (s *Server) realtimeDisconnect(ctx context.Context, payload json.RawMessage) (any, error) {
	var request session.DisconnectRequest
	if err := decodeStrict(bytes.NewReader(payload), &request); err != nil {
		return nil, err
	}
	if err := s.orchestrator.Disconnect(ctx, request.ConnectionID); err != nil {
		return nil, err
	}
	return session.EndResponse{Success: true}, nil
}
