// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package store provides the shared session store: session records,
// the FIFO pending queue, per-session connection sets, and TTL-bound
// worker heartbeats. The store holds no business logic — status
// transitions and capacity decisions live in lib/orchestrator.
//
// Two implementations exist: SQLite (production, WAL mode) and an
// in-memory map store (tests, single-process development). Both
// guarantee that PopPending delivers each queue entry exactly once
// under concurrent callers, the property every claim relies on.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/browsergrid/browsergrid/lib/session"
)

// Errors for absent records. Session lookups reuse
// session.ErrSessionNotFound so callers hold one taxonomy.
var (
	ErrConnectionNotFound = errors.New("store: connection not found")
)

// Store is the session store contract. All methods are safe for
// concurrent use. TTL-bound records (connections, workers, pending
// sessions) are invisible to reads once expired; PruneExpired removes
// them physically.
type Store interface {
	// CreateSession inserts a new session record.
	CreateSession(ctx context.Context, s *session.Session) error

	// GetSession returns the session or session.ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (*session.Session, error)

	// UpdateSession replaces the stored record for s.ID. Returns
	// session.ErrSessionNotFound when the record is absent.
	UpdateSession(ctx context.Context, s *session.Session) error

	// DeleteSession removes the session, its connection set, and any
	// queue entries. Returns session.ErrSessionNotFound when the
	// record was already gone, so SessionEnd stays idempotent.
	DeleteSession(ctx context.Context, id string) error

	// CountActiveSessions counts sessions in a non-terminal status.
	// This is the load figure the capacity controller compares
	// against worker capacity.
	CountActiveSessions(ctx context.Context) (int, error)

	// EnqueuePending appends a session ID to the pending queue.
	EnqueuePending(ctx context.Context, sessionID string) error

	// PopPending atomically removes and returns up to limit IDs from
	// the head of the queue. No two callers ever receive the same
	// entry. Returns an empty slice when the queue is empty.
	PopPending(ctx context.Context, limit int) ([]string, error)

	// RemovePending deletes any queue entries for the session. Used
	// by the sweeper when a pending session expires and by explicit
	// end before a claim happens.
	RemovePending(ctx context.Context, sessionID string) error

	// CreateConnection inserts a connection record with the given TTL.
	CreateConnection(ctx context.Context, c *session.Connection, ttl time.Duration) error

	// GetConnection returns the connection or ErrConnectionNotFound.
	GetConnection(ctx context.Context, id string) (*session.Connection, error)

	// DeleteConnection removes the connection. Returns
	// ErrConnectionNotFound when already gone.
	DeleteConnection(ctx context.Context, id string) error

	// CountConnections returns the size of a session's live
	// connection set.
	CountConnections(ctx context.Context, sessionID string) (int, error)

	// UpsertWorker writes a worker heartbeat record with the given
	// TTL, replacing any previous record.
	UpsertWorker(ctx context.Context, w *session.Worker, ttl time.Duration) error

	// ListWorkers returns workers whose heartbeat TTL has not lapsed.
	ListWorkers(ctx context.Context) ([]session.Worker, error)

	// DeleteWorker removes a worker record. Missing records are not
	// an error — shutdown and TTL expiry race benignly.
	DeleteWorker(ctx context.Context, id string) error

	// ExpiredSessions returns IDs of sessions in the given status
	// whose ExpiresAt has passed. The sweeper expires pending
	// sessions and ends disconnected ones past their cleanup TTL.
	ExpiredSessions(ctx context.Context, status session.Status) ([]string, error)

	// PruneExpired physically deletes lapsed connections and worker
	// records.
	PruneExpired(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
