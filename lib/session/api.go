// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "encoding/json"

// Typed schemas for the control-plane API. Requests are decoded with
// unknown fields rejected, so malformed shapes fail at the boundary
// instead of propagating missing-field surprises inward.

// CreateRequest is the body of POST /v1/sessions.
type CreateRequest struct {
	ProjectID       string          `json:"projectId"`
	BrowserSettings json.RawMessage `json:"browserSettings,omitempty"`

	// TimeoutMinutes bounds how long the session may wait unclaimed
	// and how long it may sit idle. Zero selects the server default.
	TimeoutMinutes int `json:"timeout,omitempty"`
}

// CreateResponse is the reply to a successful session creation.
type CreateResponse struct {
	SessionID string `json:"sessionId"`

	// ConnectURL points at the gateway ingress for the session, or at
	// the control-plane relay when no ingress is configured.
	ConnectURL string `json:"connectUrl"`

	// Token is the signed connect token, base64url-encoded.
	Token string `json:"token"`
}

// Detail is the reply to GET /v1/sessions/{id}.
type Detail struct {
	Session

	// ActiveConnections is the size of the session's connection set.
	ActiveConnections int `json:"activeConnections"`
}

// ClaimRequest is the body of POST /internal/session-claim.
type ClaimRequest struct {
	WorkerID        string `json:"workerId"`
	MaxSessions     int    `json:"maxSessions"`
	CurrentSessions int    `json:"currentSessions"`
}

// ClaimResponse carries the sessions assigned to the claiming worker.
type ClaimResponse struct {
	Sessions []Session `json:"sessions"`
}

// ReleaseRequest is the body of POST /internal/session-release, sent
// by a worker whose engine launch failed after a claim.
type ReleaseRequest struct {
	WorkerID  string `json:"workerId"`
	SessionID string `json:"sessionId"`

	// Reason is logged, not interpreted.
	Reason string `json:"reason,omitempty"`
}

// HeartbeatRequest is the body of POST /internal/workers/{id}/heartbeat.
type HeartbeatRequest struct {
	ActiveSessions int `json:"activeSessions"`
	MaxSessions    int `json:"maxSessions"`

	// GatewayURL advertises the worker's gateway base URL for direct
	// streaming resolution.
	GatewayURL string `json:"gatewayUrl,omitempty"`
}

// ConnectRequest is the realtime connect handshake payload.
type ConnectRequest struct {
	Token string `json:"token"`

	// RequestStream asks for a direct streaming endpoint on the
	// assigned worker, bypassing the control plane for media traffic.
	RequestStream bool `json:"requestStream,omitempty"`
}

// ConnectResponse acknowledges a connect handshake.
type ConnectResponse struct {
	ConnectionID string `json:"connectionId"`

	// StreamURL is set only when RequestStream was true and the
	// session has a worker assignment.
	StreamURL string `json:"streamUrl,omitempty"`
}

// DisconnectRequest is the realtime disconnect handshake payload.
type DisconnectRequest struct {
	ConnectionID string `json:"connectionId"`
}

// EndResponse is the reply to POST|DELETE /v1/sessions/{id}/end.
type EndResponse struct {
	Success bool `json:"success"`
}

// ErrorBody is the structured error reply used by both the control
// plane and the gateway.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
