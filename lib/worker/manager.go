// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/browsergrid/browsergrid/lib/clock"
	"github.com/browsergrid/browsergrid/lib/engine"
	"github.com/browsergrid/browsergrid/lib/gateway"
	"github.com/browsergrid/browsergrid/lib/session"
)

// hostedSession is one claimed session with its running engine.
type hostedSession struct {
	record       session.Session
	engine       engine.Engine
	startedAt    time.Time
	lastActivity time.Time
}

// Manager owns the engine-per-session mapping on one worker. It
// implements gateway.EngineResolver so the gateway can relay to the
// right engine.
type Manager struct {
	starter engine.Starter
	clock   clock.Clock
	logger  *slog.Logger

	mu      sync.RWMutex
	hosted  map[string]*hostedSession
}

// NewManager builds an empty manager.
func NewManager(starter engine.Starter, clk clock.Clock, logger *slog.Logger) *Manager {
	return &Manager{
		starter: starter,
		clock:   clk,
		logger:  logger,
		hosted:  make(map[string]*hostedSession),
	}
}

// StartSession launches an engine for a claimed session. A session
// already hosted is an error: claims are exactly-once and a duplicate
// means the claim path is broken.
func (m *Manager) StartSession(ctx context.Context, record session.Session) error {
	m.mu.RLock()
	_, exists := m.hosted[record.ID]
	m.mu.RUnlock()
	if exists {
		return fmt.Errorf("worker: session %s already hosted", record.ID)
	}

	started, err := m.starter.Start(ctx, engine.Options{
		SessionID:       record.ID,
		BrowserSettings: record.BrowserSettings,
	})
	if err != nil {
		return fmt.Errorf("worker: starting engine for %s: %w", record.ID, err)
	}

	now := m.clock.Now()
	m.mu.Lock()
	m.hosted[record.ID] = &hostedSession{
		record:       record,
		engine:       started,
		startedAt:    now,
		lastActivity: now,
	}
	m.mu.Unlock()

	m.logger.Info("session hosted", "session", record.ID)
	return nil
}

// StopSession stops a session's engine and forgets it. Unknown
// sessions are a no-op, mirroring the idempotent end upstream.
func (m *Manager) StopSession(ctx context.Context, sessionID string) {
	m.mu.Lock()
	hosted, ok := m.hosted[sessionID]
	delete(m.hosted, sessionID)
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := hosted.engine.Stop(ctx); err != nil {
		m.logger.Warn("engine stop failed", "session", sessionID, "error", err)
	}
	m.logger.Info("session unhosted", "session", sessionID)
}

// StopAll stops every hosted engine; used during shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	for _, sessionID := range m.SessionIDs() {
		m.StopSession(ctx, sessionID)
	}
}

// Resolve implements gateway.EngineResolver.
func (m *Manager) Resolve(sessionID string) (gateway.EngineEndpoints, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hosted, ok := m.hosted[sessionID]
	if !ok {
		return gateway.EngineEndpoints{}, false
	}
	return gateway.EngineEndpoints{
		WebSocketURL: hosted.engine.WebSocketURL(),
		HTTPBaseURL:  hosted.engine.HTTPBaseURL(),
	}, true
}

// Count returns the number of hosted sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hosted)
}

// SessionIDs returns the hosted session IDs.
func (m *Manager) SessionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.hosted))
	for id := range m.hosted {
		ids = append(ids, id)
	}
	return ids
}

// Touch records session activity observed outside the relay path.
func (m *Manager) Touch(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hosted, ok := m.hosted[sessionID]; ok {
		hosted.lastActivity = m.clock.Now()
	}
}

// LastActivity returns the manager's view of a session's activity;
// the reaper merges this with relay activity from the gateway.
func (m *Manager) LastActivity(sessionID string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hosted, ok := m.hosted[sessionID]
	if !ok {
		return time.Time{}, false
	}
	return hosted.lastActivity, true
}

// Healthy probes one hosted engine; an empty worker is healthy. The
// gateway's /health wires to this.
func (m *Manager) Healthy(ctx context.Context) error {
	m.mu.RLock()
	var probe engine.Engine
	for _, hosted := range m.hosted {
		probe = hosted.engine
		break
	}
	m.mu.RUnlock()

	if probe == nil {
		return nil
	}
	return probe.Healthy(ctx)
}
