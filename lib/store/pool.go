// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// openPool opens a fixed-size SQLite connection pool with the standard
// pragmas applied to every connection. WAL mode gives concurrent
// readers with a single writer, which matches the store's access
// pattern: many control-plane reads, serialized claim/enqueue writes.
//
// Use ":memory:" with poolSize 1 for tests — each in-memory connection
// is an independent database, so a larger pool would fragment state.
func openPool(path string, poolSize int, logger *slog.Logger) (*sqlitex.Pool, error) {
	if path == "" {
		return nil, fmt.Errorf("store: path is required")
	}
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			pragmas := []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA synchronous=NORMAL",
				"PRAGMA busy_timeout=5000",
				"PRAGMA temp_store=MEMORY",
			}
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("store: %s: %w", pragma, err)
				}
			}
			return sqlitex.ExecuteScript(conn, schemaSQL, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}

	logger.Info("session store opened", "path", path, "pool_size", poolSize)
	return pool, nil
}

// schemaSQL creates the store tables. Timestamps are Unix nanoseconds;
// expires_at of zero means "no TTL".
const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	project_id      TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	last_activity   INTEGER NOT NULL,
	timeout_seconds INTEGER NOT NULL,
	expires_at      INTEGER NOT NULL,
	browser_settings TEXT,
	worker_id       TEXT NOT NULL DEFAULT '',
	compute_handle  TEXT NOT NULL DEFAULT '',
	launch_attempts INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS pending_queue (
	position   INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS connections (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	connected_at  INTEGER NOT NULL,
	last_activity INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS connections_by_session ON connections(session_id);

CREATE TABLE IF NOT EXISTS workers (
	id              TEXT PRIMARY KEY,
	state           TEXT NOT NULL,
	last_heartbeat  INTEGER NOT NULL,
	active_sessions INTEGER NOT NULL,
	max_sessions    INTEGER NOT NULL,
	gateway_url     TEXT NOT NULL DEFAULT '',
	expires_at      INTEGER NOT NULL
);
`
