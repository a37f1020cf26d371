// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"
	"time"

	"github.com/browsergrid/browsergrid/lib/clock"
	"github.com/browsergrid/browsergrid/lib/session"
)

// Memory is an in-process Store for tests and single-node development.
// A single mutex guards all state; every mutating method is atomic,
// which gives PopPending its exactly-once guarantee trivially.
type Memory struct {
	clock clock.Clock

	mu          sync.Mutex
	sessions    map[string]session.Session
	queue       []string
	connections map[string]memoryConnection
	workers     map[string]memoryWorker
}

type memoryConnection struct {
	record    session.Connection
	expiresAt time.Time // zero means no TTL
}

type memoryWorker struct {
	record    session.Worker
	expiresAt time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory(clk clock.Clock) *Memory {
	return &Memory{
		clock:       clk,
		sessions:    make(map[string]session.Session),
		connections: make(map[string]memoryConnection),
		workers:     make(map[string]memoryWorker),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateSession(_ context.Context, record *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[record.ID] = *record
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	copied := record
	return &copied, nil
}

func (m *Memory) UpdateSession(_ context.Context, record *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[record.ID]; !ok {
		return session.ErrSessionNotFound
	}
	m.sessions[record.ID] = *record
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return session.ErrSessionNotFound
	}
	delete(m.sessions, id)
	for connectionID, connection := range m.connections {
		if connection.record.SessionID == id {
			delete(m.connections, connectionID)
		}
	}
	m.removeQueuedLocked(id)
	return nil
}

func (m *Memory) CountActiveSessions(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, record := range m.sessions {
		if !record.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (m *Memory) EnqueuePending(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, sessionID)
	return nil
}

func (m *Memory) PopPending(_ context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.queue) {
		limit = len(m.queue)
	}
	popped := make([]string, limit)
	copy(popped, m.queue[:limit])
	m.queue = m.queue[limit:]
	return popped, nil
}

func (m *Memory) RemovePending(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeQueuedLocked(sessionID)
	return nil
}

func (m *Memory) removeQueuedLocked(sessionID string) {
	kept := m.queue[:0]
	for _, queued := range m.queue {
		if queued != sessionID {
			kept = append(kept, queued)
		}
	}
	m.queue = kept
}

func (m *Memory) CreateConnection(_ context.Context, c *session.Connection, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryConnection{record: *c}
	if ttl > 0 {
		entry.expiresAt = m.clock.Now().Add(ttl)
	}
	m.connections[c.ID] = entry
	return nil
}

func (m *Memory) GetConnection(_ context.Context, id string) (*session.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.connections[id]
	if !ok || m.lapsedLocked(entry.expiresAt) {
		return nil, ErrConnectionNotFound
	}
	copied := entry.record
	return &copied, nil
}

func (m *Memory) DeleteConnection(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[id]; !ok {
		return ErrConnectionNotFound
	}
	delete(m.connections, id)
	return nil
}

func (m *Memory) CountConnections(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, entry := range m.connections {
		if entry.record.SessionID == sessionID && !m.lapsedLocked(entry.expiresAt) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) UpsertWorker(_ context.Context, w *session.Worker, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryWorker{record: *w}
	if ttl > 0 {
		entry.expiresAt = m.clock.Now().Add(ttl)
	}
	m.workers[w.ID] = entry
	return nil
}

func (m *Memory) ListWorkers(_ context.Context) ([]session.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var workers []session.Worker
	for _, entry := range m.workers {
		if !m.lapsedLocked(entry.expiresAt) {
			workers = append(workers, entry.record)
		}
	}
	return workers, nil
}

func (m *Memory) DeleteWorker(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workers, id)
	return nil
}

func (m *Memory) ExpiredSessions(_ context.Context, status session.Status) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	var ids []string
	for id, record := range m.sessions {
		if record.Status == status &&
			!record.ExpiresAt.IsZero() && !record.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) PruneExpired(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.connections {
		if m.lapsedLocked(entry.expiresAt) {
			delete(m.connections, id)
		}
	}
	for id, entry := range m.workers {
		if m.lapsedLocked(entry.expiresAt) {
			delete(m.workers, id)
		}
	}
	return nil
}

func (m *Memory) lapsedLocked(expiresAt time.Time) bool {
	return !expiresAt.IsZero() && !expiresAt.After(m.clock.Now())
}
