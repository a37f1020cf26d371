// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package session defines the Browsergrid data model: sessions and
// their status machine, client connections, worker records, and the
// typed request/response schemas of the control-plane API.
package session

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a session. Transitions are
// monotonic along the state machine:
//
//	pending → active → connected → disconnected → stopped
//	pending → expired              (never claimed within TTL)
//	any non-terminal → stopped     (explicit end)
//
// stopped and expired are terminal.
type Status string

const (
	StatusPending      Status = "pending"
	StatusActive       Status = "active"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusStopped      Status = "stopped"
	StatusExpired      Status = "expired"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusExpired
}

// CanTransitionTo reports whether the state machine permits moving
// from s to next. Explicit end (→ stopped) is allowed from any
// non-terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusStopped {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusExpired
	case StatusActive:
		// A session can drain without the gateway ever reporting an
		// attach (control-plane-only clients), so active may drop
		// straight to disconnected.
		return next == StatusConnected || next == StatusDisconnected
	case StatusConnected:
		return next == StatusDisconnected
	case StatusDisconnected:
		// A new connection on a drained session reconnects it.
		return next == StatusConnected
	}
	return false
}

// Session is one logical unit of automation work, bound to at most one
// browser engine at a time.
type Session struct {
	// ID is the unique session identifier (UUID).
	ID string `json:"id"`

	// ProjectID identifies the owning project.
	ProjectID string `json:"projectId"`

	Status Status `json:"status"`

	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`

	// TimeoutSeconds is the idle/claim TTL requested at creation.
	TimeoutSeconds int `json:"timeout"`

	// ExpiresAt is when an unclaimed pending session lapses to
	// expired, derived from CreatedAt + TimeoutSeconds.
	ExpiresAt time.Time `json:"expiresAt"`

	// BrowserSettings is an opaque JSON document passed through to the
	// engine launcher. The control plane never interprets it.
	BrowserSettings json.RawMessage `json:"browserSettings,omitempty"`

	// WorkerID is set when a worker claims the session. A session has
	// at most one worker assignment at a time.
	WorkerID string `json:"workerId,omitempty"`

	// ComputeHandle references the compute unit launched for this
	// session's worker, when the capacity controller launched one.
	ComputeHandle string `json:"-"`

	// LaunchAttempts counts engine-launch failures after a claim. A
	// released claim requeues the session until the attempt cap is
	// reached, then the session stops.
	LaunchAttempts int `json:"-"`
}

// Connection is one client connection to a session. A session may hold
// several simultaneous connections (control plus streaming).
type Connection struct {
	ID           string    `json:"connectionId"`
	SessionID    string    `json:"sessionId"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// WorkerState distinguishes compute units that have been launched but
// not yet reported in from those actively heartbeating.
type WorkerState string

const (
	// WorkerPending is a compute unit the capacity controller has
	// launched that has not yet sent its first heartbeat.
	WorkerPending WorkerState = "pending"

	// WorkerRunning is a worker with a live heartbeat.
	WorkerRunning WorkerState = "running"
)

// Worker is a compute unit hosting browser engines. The record is
// TTL-bound in the store: a heartbeat gap beyond the TTL means the
// worker is dead and its sessions are orphaned.
type Worker struct {
	ID             string      `json:"workerId"`
	State          WorkerState `json:"state"`
	LastHeartbeat  time.Time   `json:"lastHeartbeat"`
	ActiveSessions int         `json:"activeSessions"`
	MaxSessions    int         `json:"maxSessions"`

	// GatewayURL is the worker's advertised gateway base URL
	// (e.g. "ws://10.0.0.7:9222"). Direct streaming endpoints are
	// resolved against it.
	GatewayURL string `json:"gatewayUrl,omitempty"`
}
