// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/browsergrid/browsergrid/lib/session"
)

func dispatch(t *testing.T, f *apiFixture, kind string, payload any) envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encoding payload: %v", err)
	}
	message, err := json.Marshal(envelope{Kind: kind, Payload: raw})
	if err != nil {
		t.Fatalf("encoding envelope: %v", err)
	}
	return f.server.dispatchRealtime(context.Background(), message)
}

func TestDispatchUnknownKind(t *testing.T) {
	f := newAPIFixture(t)

	reply := dispatch(t, f, "teleport", map[string]any{})
	if reply.Kind != "error" {
		t.Fatalf("reply kind = %q, want error", reply.Kind)
	}
	var body session.ErrorBody
	if err := json.Unmarshal(reply.Payload, &body); err != nil {
		t.Fatalf("decoding error payload: %v", err)
	}
	if body.Error != "malformed_request" {
		t.Fatalf("error code = %q, want malformed_request", body.Error)
	}
}

func TestDispatchUnparseableMessage(t *testing.T) {
	f := newAPIFixture(t)

	reply := f.server.dispatchRealtime(context.Background(), []byte("not json"))
	if reply.Kind != "error" {
		t.Fatalf("reply kind = %q, want error", reply.Kind)
	}
}

func TestDispatchConnect(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createSession(t)

	reply := dispatch(t, f, "connect", session.ConnectRequest{Token: created.Token})
	if reply.Kind != "connect" {
		t.Fatalf("reply kind = %q, want connect", reply.Kind)
	}
	var response session.ConnectResponse
	if err := json.Unmarshal(reply.Payload, &response); err != nil {
		t.Fatalf("decoding connect payload: %v", err)
	}
	if response.ConnectionID == "" {
		t.Fatal("connect returned empty connection ID")
	}
}

func TestDispatchConnectRejectsGarbageToken(t *testing.T) {
	f := newAPIFixture(t)

	reply := dispatch(t, f, "connect", session.ConnectRequest{Token: "garbage"})
	if reply.Kind != "error" {
		t.Fatalf("reply kind = %q, want error", reply.Kind)
	}
	var body session.ErrorBody
	if err := json.Unmarshal(reply.Payload, &body); err != nil {
		t.Fatalf("decoding error payload: %v", err)
	}
	if body.Error != "authentication_failed" {
		t.Fatalf("error code = %q, want authentication_failed", body.Error)
	}
}

func TestDispatchDisconnect(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createSession(t)

	reply := dispatch(t, f, "connect", session.ConnectRequest{Token: created.Token})
	var connected session.ConnectResponse
	if err := json.Unmarshal(reply.Payload, &connected); err != nil {
		t.Fatalf("decoding connect payload: %v", err)
	}

	reply = dispatch(t, f, "disconnect", session.DisconnectRequest{ConnectionID: connected.ConnectionID})
	if reply.Kind != "disconnect" {
		t.Fatalf("reply kind = %q, want disconnect", reply.Kind)
	}
	var response session.EndResponse
	if err := json.Unmarshal(reply.Payload, &response); err != nil {
		t.Fatalf("decoding disconnect payload: %v", err)
	}
	if !response.Success {
		t.Fatal("disconnect success = false")
	}

	// The handler errors survive in-band; a second disconnect of the
	// same connection reports the failure without tearing anything down.
	reply = dispatch(t, f, "disconnect", session.DisconnectRequest{ConnectionID: connected.ConnectionID})
	if reply.Kind != "error" {
		t.Fatalf("second disconnect reply kind = %q, want error", reply.Kind)
	}
}

func TestRealtimeOverWebSocket(t *testing.T) {
	f := newAPIFixture(t)
	created := f.createSession(t)

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/v1/realtime"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing realtime endpoint: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("upgrade status = %d, want 101", resp.StatusCode)
	}

	payload, _ := json.Marshal(session.ConnectRequest{Token: created.Token})
	if err := conn.WriteJSON(envelope{Kind: "connect", Payload: payload}); err != nil {
		t.Fatalf("writing connect message: %v", err)
	}

	var reply envelope
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if reply.Kind != "connect" {
		t.Fatalf("reply kind = %q, want connect", reply.Kind)
	}
}
