// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/browsergrid/browsergrid/lib/clock"
	"github.com/browsergrid/browsergrid/lib/session"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// The contract tests run against both backends; the SQLite store uses
// a single-connection in-memory database.
func runStoreTests(t *testing.T, name string, open func(t *testing.T, clk clock.Clock) Store) {
	t.Run(name, func(t *testing.T) {
		t.Run("SessionLifecycle", func(t *testing.T) { testSessionLifecycle(t, open) })
		t.Run("QueueFIFO", func(t *testing.T) { testQueueFIFO(t, open) })
		t.Run("QueueExactlyOnce", func(t *testing.T) { testQueueExactlyOnce(t, open) })
		t.Run("RemovePending", func(t *testing.T) { testRemovePending(t, open) })
		t.Run("Connections", func(t *testing.T) { testConnections(t, open) })
		t.Run("WorkerTTL", func(t *testing.T) { testWorkerTTL(t, open) })
		t.Run("ExpiredSessions", func(t *testing.T) { testExpiredSessions(t, open) })
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, "memory", func(t *testing.T, clk clock.Clock) Store {
		return NewMemory(clk)
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, "sqlite", func(t *testing.T, clk clock.Clock) Store {
		st, err := OpenSQLite(SQLiteConfig{
			Path:     ":memory:",
			PoolSize: 1,
			Clock:    clk,
		})
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { st.Close() })
		return st
	})
}

func newSession(id string, status session.Status) *session.Session {
	return &session.Session{
		ID:             id,
		ProjectID:      "proj-1",
		Status:         status,
		CreatedAt:      epoch,
		LastActivity:   epoch,
		TimeoutSeconds: 60,
	}
}

func testSessionLifecycle(t *testing.T, open func(t *testing.T, clk clock.Clock) Store) {
	ctx := context.Background()
	st := open(t, clock.Fake(epoch))

	if _, err := st.GetSession(ctx, "missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("GetSession(missing) = %v, want ErrSessionNotFound", err)
	}

	record := newSession("s1", session.StatusPending)
	if err := st.CreateSession(ctx, record); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	loaded, err := st.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if loaded.Status != session.StatusPending || loaded.ProjectID != "proj-1" {
		t.Fatalf("loaded session = %+v", loaded)
	}
	if !loaded.ExpiresAt.IsZero() {
		t.Fatalf("ExpiresAt = %v, want zero for no TTL", loaded.ExpiresAt)
	}

	loaded.Status = session.StatusActive
	loaded.WorkerID = "w1"
	if err := st.UpdateSession(ctx, loaded); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	reloaded, err := st.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession after update: %v", err)
	}
	if reloaded.Status != session.StatusActive || reloaded.WorkerID != "w1" {
		t.Fatalf("updated session = %+v", reloaded)
	}

	count, err := st.CountActiveSessions(ctx)
	if err != nil {
		t.Fatalf("CountActiveSessions: %v", err)
	}
	if count != 1 {
		t.Fatalf("CountActiveSessions = %d, want 1", count)
	}

	if err := st.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := st.DeleteSession(ctx, "s1"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("second DeleteSession = %v, want ErrSessionNotFound", err)
	}

	if err := st.UpdateSession(ctx, record); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("UpdateSession(deleted) = %v, want ErrSessionNotFound", err)
	}
}

func testQueueFIFO(t *testing.T, open func(t *testing.T, clk clock.Clock) Store) {
	ctx := context.Background()
	st := open(t, clock.Fake(epoch))

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := st.CreateSession(ctx, newSession(id, session.StatusPending)); err != nil {
			t.Fatalf("CreateSession(%s): %v", id, err)
		}
		if err := st.EnqueuePending(ctx, id); err != nil {
			t.Fatalf("EnqueuePending(%s): %v", id, err)
		}
	}

	first, err := st.PopPending(ctx, 2)
	if err != nil {
		t.Fatalf("PopPending: %v", err)
	}
	if len(first) != 2 || first[0] != "a" || first[1] != "b" {
		t.Fatalf("first pop = %v, want [a b]", first)
	}

	rest, err := st.PopPending(ctx, 10)
	if err != nil {
		t.Fatalf("PopPending: %v", err)
	}
	if len(rest) != 2 || rest[0] != "c" || rest[1] != "d" {
		t.Fatalf("second pop = %v, want [c d]", rest)
	}

	empty, err := st.PopPending(ctx, 1)
	if err != nil {
		t.Fatalf("PopPending(empty): %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("pop from empty queue = %v", empty)
	}

	if popped, err := st.PopPending(ctx, 0); err != nil || len(popped) != 0 {
		t.Fatalf("PopPending(0) = %v, %v", popped, err)
	}
}

// testQueueExactlyOnce hammers PopPending from many goroutines and
// checks that every entry is delivered to exactly one caller.
func testQueueExactlyOnce(t *testing.T, open func(t *testing.T, clk clock.Clock) Store) {
	ctx := context.Background()
	st := open(t, clock.Fake(epoch))

	const total = 200
	ids := make([]string, total)
	for i := range ids {
		ids[i] = fmt.Sprintf("sess-%03d", i)
		record := newSession(ids[i], session.StatusPending)
		if err := st.CreateSession(ctx, record); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if err := st.EnqueuePending(ctx, ids[i]); err != nil {
			t.Fatalf("EnqueuePending: %v", err)
		}
	}

	const claimers = 8
	var mu sync.Mutex
	var delivered []string
	var wg sync.WaitGroup
	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				popped, err := st.PopPending(ctx, 7)
				if err != nil {
					t.Errorf("PopPending: %v", err)
					return
				}
				if len(popped) == 0 {
					return
				}
				mu.Lock()
				delivered = append(delivered, popped...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(delivered) != total {
		t.Fatalf("delivered %d entries, want %d", len(delivered), total)
	}
	sort.Strings(delivered)
	for i := 1; i < len(delivered); i++ {
		if delivered[i] == delivered[i-1] {
			t.Fatalf("entry %q delivered twice", delivered[i])
		}
	}
}

func testRemovePending(t *testing.T, open func(t *testing.T, clk clock.Clock) Store) {
	ctx := context.Background()
	st := open(t, clock.Fake(epoch))

	for _, id := range []string{"x", "y", "z"} {
		if err := st.CreateSession(ctx, newSession(id, session.StatusPending)); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if err := st.EnqueuePending(ctx, id); err != nil {
			t.Fatalf("EnqueuePending: %v", err)
		}
	}

	if err := st.RemovePending(ctx, "y"); err != nil {
		t.Fatalf("RemovePending: %v", err)
	}
	// Removing an absent entry is a no-op.
	if err := st.RemovePending(ctx, "y"); err != nil {
		t.Fatalf("second RemovePending: %v", err)
	}

	popped, err := st.PopPending(ctx, 10)
	if err != nil {
		t.Fatalf("PopPending: %v", err)
	}
	if len(popped) != 2 || popped[0] != "x" || popped[1] != "z" {
		t.Fatalf("queue after removal = %v, want [x z]", popped)
	}
}

func testConnections(t *testing.T, open func(t *testing.T, clk clock.Clock) Store) {
	ctx := context.Background()
	fake := clock.Fake(epoch)
	st := open(t, fake)

	if err := st.CreateSession(ctx, newSession("s1", session.StatusConnected)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	for _, id := range []string{"c1", "c2"} {
		connection := &session.Connection{
			ID:          id,
			SessionID:   "s1",
			ConnectedAt: epoch,
		}
		if err := st.CreateConnection(ctx, connection, time.Hour); err != nil {
			t.Fatalf("CreateConnection(%s): %v", id, err)
		}
	}

	count, err := st.CountConnections(ctx, "s1")
	if err != nil {
		t.Fatalf("CountConnections: %v", err)
	}
	if count != 2 {
		t.Fatalf("CountConnections = %d, want 2", count)
	}

	loaded, err := st.GetConnection(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if loaded.SessionID != "s1" {
		t.Fatalf("connection session = %q, want s1", loaded.SessionID)
	}

	if err := st.DeleteConnection(ctx, "c1"); err != nil {
		t.Fatalf("DeleteConnection: %v", err)
	}
	if err := st.DeleteConnection(ctx, "c1"); !errors.Is(err, ErrConnectionNotFound) {
		t.Fatalf("second DeleteConnection = %v, want ErrConnectionNotFound", err)
	}

	// TTL lapse hides the remaining connection.
	fake.Advance(2 * time.Hour)
	if _, err := st.GetConnection(ctx, "c2"); !errors.Is(err, ErrConnectionNotFound) {
		t.Fatalf("lapsed GetConnection = %v, want ErrConnectionNotFound", err)
	}
	count, err = st.CountConnections(ctx, "s1")
	if err != nil {
		t.Fatalf("CountConnections after lapse: %v", err)
	}
	if count != 0 {
		t.Fatalf("CountConnections after lapse = %d, want 0", count)
	}

	if err := st.PruneExpired(ctx); err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}

	// Deleting the session drops its surviving connection records.
	if err := st.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
}

func testWorkerTTL(t *testing.T, open func(t *testing.T, clk clock.Clock) Store) {
	ctx := context.Background()
	fake := clock.Fake(epoch)
	st := open(t, fake)

	worker := &session.Worker{
		ID:             "w1",
		State:          session.WorkerRunning,
		LastHeartbeat:  epoch,
		ActiveSessions: 3,
		MaxSessions:    20,
		GatewayURL:     "ws://10.0.0.7:9080",
	}
	if err := st.UpsertWorker(ctx, worker, 90*time.Second); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}

	workers, err := st.ListWorkers(ctx)
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	if len(workers) != 1 || workers[0].GatewayURL != "ws://10.0.0.7:9080" {
		t.Fatalf("ListWorkers = %+v", workers)
	}

	// A re-upsert replaces the record and refreshes the TTL.
	fake.Advance(60 * time.Second)
	worker.ActiveSessions = 5
	worker.LastHeartbeat = fake.Now()
	if err := st.UpsertWorker(ctx, worker, 90*time.Second); err != nil {
		t.Fatalf("UpsertWorker refresh: %v", err)
	}
	fake.Advance(60 * time.Second)

	workers, err = st.ListWorkers(ctx)
	if err != nil {
		t.Fatalf("ListWorkers: %v", err)
	}
	if len(workers) != 1 || workers[0].ActiveSessions != 5 {
		t.Fatalf("refreshed worker = %+v", workers)
	}

	// Silence past the TTL hides the worker.
	fake.Advance(91 * time.Second)
	workers, err = st.ListWorkers(ctx)
	if err != nil {
		t.Fatalf("ListWorkers after lapse: %v", err)
	}
	if len(workers) != 0 {
		t.Fatalf("lapsed worker still listed: %+v", workers)
	}

	if err := st.DeleteWorker(ctx, "w1"); err != nil {
		t.Fatalf("DeleteWorker: %v", err)
	}
	if err := st.DeleteWorker(ctx, "absent"); err != nil {
		t.Fatalf("DeleteWorker(absent): %v", err)
	}
}

func testExpiredSessions(t *testing.T, open func(t *testing.T, clk clock.Clock) Store) {
	ctx := context.Background()
	fake := clock.Fake(epoch)
	st := open(t, fake)

	fresh := newSession("fresh", session.StatusPending)
	fresh.ExpiresAt = epoch.Add(time.Hour)
	lapsed := newSession("lapsed", session.StatusPending)
	lapsed.ExpiresAt = epoch.Add(time.Minute)
	active := newSession("active", session.StatusActive)
	active.ExpiresAt = epoch.Add(time.Minute)
	unbounded := newSession("unbounded", session.StatusPending)

	for _, record := range []*session.Session{fresh, lapsed, active, unbounded} {
		if err := st.CreateSession(ctx, record); err != nil {
			t.Fatalf("CreateSession(%s): %v", record.ID, err)
		}
	}

	fake.Advance(10 * time.Minute)

	ids, err := st.ExpiredSessions(ctx, session.StatusPending)
	if err != nil {
		t.Fatalf("ExpiredSessions: %v", err)
	}
	if len(ids) != 1 || ids[0] != "lapsed" {
		t.Fatalf("ExpiredSessions(pending) = %v, want [lapsed]", ids)
	}

	ids, err = st.ExpiredSessions(ctx, session.StatusActive)
	if err != nil {
		t.Fatalf("ExpiredSessions(active): %v", err)
	}
	if len(ids) != 1 || ids[0] != "active" {
		t.Fatalf("ExpiredSessions(active) = %v, want [active]", ids)
	}
}
