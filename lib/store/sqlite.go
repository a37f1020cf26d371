// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/browsergrid/browsergrid/lib/clock"
	"github.com/browsergrid/browsergrid/lib/session"
)

// SQLite is the production Store backed by a SQLite database in WAL
// mode. Queue pops run inside an IMMEDIATE transaction, which takes
// the write lock up front — concurrent claimers serialize on the pop
// and each entry is delivered exactly once.
type SQLite struct {
	pool   *sqlitex.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// SQLiteConfig holds the parameters for opening the SQLite store.
type SQLiteConfig struct {
	// Path is the database file path. ":memory:" with PoolSize 1 is
	// valid for tests.
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// Clock provides the current time for TTL checks. Required.
	Clock clock.Clock

	// Logger receives operational messages. Defaults to discard.
	Logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the session store database.
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("store: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := openPool(cfg.Path, cfg.PoolSize, logger)
	if err != nil {
		return nil, err
	}
	return &SQLite{pool: pool, clock: cfg.Clock, logger: logger}, nil
}

// Close closes the connection pool. Blocks until all borrowed
// connections are returned.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

func (s *SQLite) CreateSession(ctx context.Context, record *session.Session) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO sessions
		(id, project_id, status, created_at, last_activity,
		 timeout_seconds, expires_at, browser_settings, worker_id,
		 compute_handle, launch_attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: sessionArgs(record)})
	if err != nil {
		return fmt.Errorf("store: create session %s: %w", record.ID, err)
	}
	return nil
}

func (s *SQLite) GetSession(ctx context.Context, id string) (*session.Session, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	defer s.pool.Put(conn)

	return getSessionOn(conn, id)
}

func getSessionOn(conn *sqlite.Conn, id string) (*session.Session, error) {
	var record *session.Session
	err := sqlitex.Execute(conn, `SELECT id, project_id, status,
		created_at, last_activity, timeout_seconds, expires_at,
		browser_settings, worker_id, compute_handle, launch_attempts
		FROM sessions WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record = scanSession(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: get session %s: %w", id, err)
	}
	if record == nil {
		return nil, session.ErrSessionNotFound
	}
	return record, nil
}

func (s *SQLite) UpdateSession(ctx context.Context, record *session.Session) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	defer s.pool.Put(conn)

	return updateSessionOn(conn, record)
}

func updateSessionOn(conn *sqlite.Conn, record *session.Session) error {
	args := sessionArgs(record)
	// Shift id to the WHERE position.
	args = append(args[1:], record.ID)

	err := sqlitex.Execute(conn, `UPDATE sessions SET
		project_id = ?, status = ?, created_at = ?, last_activity = ?,
		timeout_seconds = ?, expires_at = ?, browser_settings = ?,
		worker_id = ?, compute_handle = ?, launch_attempts = ?
		WHERE id = ?`,
		&sqlitex.ExecOptions{Args: args})
	if err != nil {
		return fmt.Errorf("store: update session %s: %w", record.ID, err)
	}
	if conn.Changes() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

func (s *SQLite) DeleteSession(ctx context.Context, id string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("store: delete session %s: begin: %w", id, err)
	}
	defer endTransaction(&err)

	if err = sqlitex.Execute(conn, `DELETE FROM sessions WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}}); err != nil {
		return fmt.Errorf("store: delete session %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		err = session.ErrSessionNotFound
		return err
	}

	if err = sqlitex.Execute(conn, `DELETE FROM connections WHERE session_id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}}); err != nil {
		return fmt.Errorf("store: delete session %s connections: %w", id, err)
	}
	if err = sqlitex.Execute(conn, `DELETE FROM pending_queue WHERE session_id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}}); err != nil {
		return fmt.Errorf("store: delete session %s queue entries: %w", id, err)
	}
	return nil
}

func (s *SQLite) CountActiveSessions(ctx context.Context) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: count active sessions: %w", err)
	}
	defer s.pool.Put(conn)

	count := 0
	err = sqlitex.Execute(conn,
		`SELECT COUNT(*) FROM sessions WHERE status NOT IN (?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{string(session.StatusStopped), string(session.StatusExpired)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("store: count active sessions: %w", err)
	}
	return count, nil
}

func (s *SQLite) EnqueuePending(ctx context.Context, sessionID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: enqueue: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO pending_queue (session_id) VALUES (?)`,
		&sqlitex.ExecOptions{Args: []any{sessionID}})
	if err != nil {
		return fmt.Errorf("store: enqueue %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLite) PopPending(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: pop pending: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("store: pop pending: begin: %w", err)
	}
	defer endTransaction(&err)

	var positions []int64
	var sessionIDs []string
	err = sqlitex.Execute(conn, `SELECT position, session_id
		FROM pending_queue ORDER BY position LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				positions = append(positions, stmt.ColumnInt64(0))
				sessionIDs = append(sessionIDs, stmt.ColumnText(1))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: pop pending: select: %w", err)
	}

	for _, position := range positions {
		if err = sqlitex.Execute(conn, `DELETE FROM pending_queue WHERE position = ?`,
			&sqlitex.ExecOptions{Args: []any{position}}); err != nil {
			return nil, fmt.Errorf("store: pop pending: delete: %w", err)
		}
	}
	return sessionIDs, nil
}

func (s *SQLite) RemovePending(ctx context.Context, sessionID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: remove pending: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM pending_queue WHERE session_id = ?`,
		&sqlitex.ExecOptions{Args: []any{sessionID}})
	if err != nil {
		return fmt.Errorf("store: remove pending %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLite) CreateConnection(ctx context.Context, c *session.Connection, ttl time.Duration) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: create connection: %w", err)
	}
	defer s.pool.Put(conn)

	expiresAt := int64(0)
	if ttl > 0 {
		expiresAt = s.clock.Now().Add(ttl).UnixNano()
	}
	err = sqlitex.Execute(conn, `INSERT INTO connections
		(id, session_id, connected_at, last_activity, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			c.ID, c.SessionID,
			c.ConnectedAt.UnixNano(), c.LastActivity.UnixNano(),
			expiresAt,
		}})
	if err != nil {
		return fmt.Errorf("store: create connection %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLite) GetConnection(ctx context.Context, id string) (*session.Connection, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: get connection: %w", err)
	}
	defer s.pool.Put(conn)

	var record *session.Connection
	err = sqlitex.Execute(conn, `SELECT id, session_id, connected_at, last_activity
		FROM connections WHERE id = ? AND (expires_at = 0 OR expires_at > ?)`,
		&sqlitex.ExecOptions{
			Args: []any{id, s.clock.Now().UnixNano()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record = &session.Connection{
					ID:           stmt.ColumnText(0),
					SessionID:    stmt.ColumnText(1),
					ConnectedAt:  time.Unix(0, stmt.ColumnInt64(2)),
					LastActivity: time.Unix(0, stmt.ColumnInt64(3)),
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: get connection %s: %w", id, err)
	}
	if record == nil {
		return nil, ErrConnectionNotFound
	}
	return record, nil
}

func (s *SQLite) DeleteConnection(ctx context.Context, id string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: delete connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM connections WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("store: delete connection %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

func (s *SQLite) CountConnections(ctx context.Context, sessionID string) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: count connections: %w", err)
	}
	defer s.pool.Put(conn)

	count := 0
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM connections
		WHERE session_id = ? AND (expires_at = 0 OR expires_at > ?)`,
		&sqlitex.ExecOptions{
			Args: []any{sessionID, s.clock.Now().UnixNano()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("store: count connections for %s: %w", sessionID, err)
	}
	return count, nil
}

func (s *SQLite) UpsertWorker(ctx context.Context, w *session.Worker, ttl time.Duration) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: upsert worker: %w", err)
	}
	defer s.pool.Put(conn)

	expiresAt := int64(0)
	if ttl > 0 {
		expiresAt = s.clock.Now().Add(ttl).UnixNano()
	}
	err = sqlitex.Execute(conn, `INSERT INTO workers
		(id, state, last_heartbeat, active_sessions, max_sessions, gateway_url, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		state = excluded.state,
		last_heartbeat = excluded.last_heartbeat,
		active_sessions = excluded.active_sessions,
		max_sessions = excluded.max_sessions,
		gateway_url = excluded.gateway_url,
		expires_at = excluded.expires_at`,
		&sqlitex.ExecOptions{Args: []any{
			w.ID, string(w.State), w.LastHeartbeat.UnixNano(),
			w.ActiveSessions, w.MaxSessions, w.GatewayURL, expiresAt,
		}})
	if err != nil {
		return fmt.Errorf("store: upsert worker %s: %w", w.ID, err)
	}
	return nil
}

func (s *SQLite) ListWorkers(ctx context.Context) ([]session.Worker, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list workers: %w", err)
	}
	defer s.pool.Put(conn)

	var workers []session.Worker
	err = sqlitex.Execute(conn, `SELECT id, state, last_heartbeat,
		active_sessions, max_sessions, gateway_url FROM workers
		WHERE expires_at = 0 OR expires_at > ? ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{s.clock.Now().UnixNano()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				workers = append(workers, session.Worker{
					ID:             stmt.ColumnText(0),
					State:          session.WorkerState(stmt.ColumnText(1)),
					LastHeartbeat:  time.Unix(0, stmt.ColumnInt64(2)),
					ActiveSessions: stmt.ColumnInt(3),
					MaxSessions:    stmt.ColumnInt(4),
					GatewayURL:     stmt.ColumnText(5),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: list workers: %w", err)
	}
	return workers, nil
}

func (s *SQLite) DeleteWorker(ctx context.Context, id string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: delete worker: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM workers WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("store: delete worker %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) ExpiredSessions(ctx context.Context, status session.Status) ([]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: expired sessions: %w", err)
	}
	defer s.pool.Put(conn)

	var ids []string
	err = sqlitex.Execute(conn, `SELECT id FROM sessions
		WHERE status = ? AND expires_at != 0 AND expires_at <= ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(status), s.clock.Now().UnixNano()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ids = append(ids, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: expired sessions: %w", err)
	}
	return ids, nil
}

func (s *SQLite) PruneExpired(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: prune expired: %w", err)
	}
	defer s.pool.Put(conn)

	now := s.clock.Now().UnixNano()
	if err = sqlitex.Execute(conn,
		`DELETE FROM connections WHERE expires_at != 0 AND expires_at <= ?`,
		&sqlitex.ExecOptions{Args: []any{now}}); err != nil {
		return fmt.Errorf("store: prune connections: %w", err)
	}
	if err = sqlitex.Execute(conn,
		`DELETE FROM workers WHERE expires_at != 0 AND expires_at <= ?`,
		&sqlitex.ExecOptions{Args: []any{now}}); err != nil {
		return fmt.Errorf("store: prune workers: %w", err)
	}
	return nil
}

// sessionArgs flattens a session record into the column order used by
// INSERT and (shifted) UPDATE statements.
func sessionArgs(record *session.Session) []any {
	var settings any
	if len(record.BrowserSettings) > 0 {
		settings = string(record.BrowserSettings)
	}
	expiresAt := int64(0)
	if !record.ExpiresAt.IsZero() {
		expiresAt = record.ExpiresAt.UnixNano()
	}
	return []any{
		record.ID,
		record.ProjectID,
		string(record.Status),
		record.CreatedAt.UnixNano(),
		record.LastActivity.UnixNano(),
		record.TimeoutSeconds,
		expiresAt,
		settings,
		record.WorkerID,
		record.ComputeHandle,
		record.LaunchAttempts,
	}
}

func scanSession(stmt *sqlite.Stmt) *session.Session {
	record := &session.Session{
		ID:             stmt.ColumnText(0),
		ProjectID:      stmt.ColumnText(1),
		Status:         session.Status(stmt.ColumnText(2)),
		CreatedAt:      time.Unix(0, stmt.ColumnInt64(3)),
		LastActivity:   time.Unix(0, stmt.ColumnInt64(4)),
		TimeoutSeconds: stmt.ColumnInt(5),
		WorkerID:       stmt.ColumnText(8),
		ComputeHandle:  stmt.ColumnText(9),
		LaunchAttempts: stmt.ColumnInt(10),
	}
	if expiresAt := stmt.ColumnInt64(6); expiresAt != 0 {
		record.ExpiresAt = time.Unix(0, expiresAt)
	}
	if settings := stmt.ColumnText(7); settings != "" {
		record.BrowserSettings = []byte(settings)
	}
	return record
}
