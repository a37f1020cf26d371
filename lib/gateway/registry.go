// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/browsergrid/browsergrid/lib/clock"
)

// RelayConnection is a live relay tracked by the registry. Byte
// counters are updated by the relay pumps; LastActivity feeds the
// worker's idle reaper.
type RelayConnection struct {
	ID            string
	SessionID     string
	ClientIP      string
	StartedAt     time.Time
	LastActivity  time.Time
	BytesToEngine int64
	BytesToClient int64
}

// Registry tracks the gateway's active relay connections per session.
type Registry struct {
	clock clock.Clock

	mu          sync.RWMutex
	connections map[string]*RelayConnection
	bySession   map[string]map[string]*RelayConnection
}

// NewRegistry returns an empty registry.
func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{
		clock:       clk,
		connections: make(map[string]*RelayConnection),
		bySession:   make(map[string]map[string]*RelayConnection),
	}
}

// Add registers a new relay and returns its connection ID along with
// whether it is the session's first live relay on this gateway.
func (r *Registry) Add(sessionID, clientIP string) (connectionID string, first bool) {
	now := r.clock.Now()
	connection := &RelayConnection{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		ClientIP:     clientIP,
		StartedAt:    now,
		LastActivity: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[connection.ID] = connection
	perSession, ok := r.bySession[sessionID]
	if !ok {
		perSession = make(map[string]*RelayConnection)
		r.bySession[sessionID] = perSession
	}
	first = len(perSession) == 0
	perSession[connection.ID] = connection
	return connection.ID, first
}

// Remove drops a relay and reports whether it was the session's last,
// so the caller can report the disconnect upstream.
func (r *Registry) Remove(connectionID string) (sessionID string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connection, ok := r.connections[connectionID]
	if !ok {
		return "", false
	}
	delete(r.connections, connectionID)

	sessionID = connection.SessionID
	perSession := r.bySession[sessionID]
	delete(perSession, connectionID)
	if len(perSession) == 0 {
		delete(r.bySession, sessionID)
		last = true
	}
	return sessionID, last
}

// Touch records traffic on a relay: activity timestamp plus byte
// counters in both directions.
func (r *Registry) Touch(connectionID string, toEngine, toClient int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connection, ok := r.connections[connectionID]
	if !ok {
		return
	}
	connection.LastActivity = r.clock.Now()
	connection.BytesToEngine += toEngine
	connection.BytesToClient += toClient
}

// Count returns the number of live relays across all sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// SessionCount returns the number of live relays for one session.
func (r *Registry) SessionCount(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession[sessionID])
}

// LastActivity returns the most recent relay activity for a session
// and whether the session has any live relay at all.
func (r *Registry) LastActivity(sessionID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	perSession, ok := r.bySession[sessionID]
	if !ok || len(perSession) == 0 {
		return time.Time{}, false
	}
	var latest time.Time
	for _, connection := range perSession {
		if connection.LastActivity.After(latest) {
			latest = connection.LastActivity
		}
	}
	return latest, true
}
