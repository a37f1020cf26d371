// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/browsergrid/browsergrid/lib/clock"
	"github.com/browsergrid/browsergrid/lib/engine"
	"github.com/browsergrid/browsergrid/lib/session"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestManager(stub *engine.Stub, fake *clock.FakeClock) *Manager {
	return NewManager(stub, fake, slog.New(slog.DiscardHandler))
}

func TestManagerStartSession(t *testing.T) {
	stub := &engine.Stub{SocketURL: "ws://127.0.0.1:9222/devtools/browser/x", BaseURL: "http://127.0.0.1:9222"}
	m := newTestManager(stub, clock.Fake(epoch))
	ctx := context.Background()

	if err := m.StartSession(ctx, session.Session{ID: "sess-1"}); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if m.Count() != 1 {
		t.Fatalf("Count = %d, want 1", m.Count())
	}
	if got := stub.Started(); len(got) != 1 || got[0] != "sess-1" {
		t.Fatalf("started = %v, want [sess-1]", got)
	}
}

func TestManagerRejectsDuplicateSession(t *testing.T) {
	stub := &engine.Stub{}
	m := newTestManager(stub, clock.Fake(epoch))
	ctx := context.Background()

	if err := m.StartSession(ctx, session.Session{ID: "sess-1"}); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := m.StartSession(ctx, session.Session{ID: "sess-1"}); err == nil {
		t.Fatal("duplicate StartSession did not error")
	}
	if len(stub.Started()) != 1 {
		t.Fatalf("started %d engines, want 1", len(stub.Started()))
	}
}

func TestManagerStartSessionPropagatesEngineFailure(t *testing.T) {
	stub := &engine.Stub{StartErr: errors.New("no free port")}
	m := newTestManager(stub, clock.Fake(epoch))

	err := m.StartSession(context.Background(), session.Session{ID: "sess-1"})
	if err == nil {
		t.Fatal("StartSession swallowed the engine failure")
	}
	if m.Count() != 0 {
		t.Fatalf("Count = %d after failed start, want 0", m.Count())
	}
}

func TestManagerStopSession(t *testing.T) {
	stub := &engine.Stub{}
	m := newTestManager(stub, clock.Fake(epoch))
	ctx := context.Background()

	m.StartSession(ctx, session.Session{ID: "sess-1"})
	m.StopSession(ctx, "sess-1")
	if m.Count() != 0 {
		t.Fatalf("Count = %d after stop, want 0", m.Count())
	}
	if got := stub.Stopped(); len(got) != 1 || got[0] != "sess-1" {
		t.Fatalf("stopped = %v, want [sess-1]", got)
	}

	// Unknown session is a no-op.
	m.StopSession(ctx, "sess-1")
	if len(stub.Stopped()) != 1 {
		t.Fatal("repeated stop touched the engine again")
	}
}

func TestManagerResolve(t *testing.T) {
	stub := &engine.Stub{SocketURL: "ws://127.0.0.1:9222/devtools/browser/x", BaseURL: "http://127.0.0.1:9222"}
	m := newTestManager(stub, clock.Fake(epoch))

	m.StartSession(context.Background(), session.Session{ID: "sess-1"})

	endpoints, ok := m.Resolve("sess-1")
	if !ok {
		t.Fatal("Resolve(sess-1) = false")
	}
	if endpoints.WebSocketURL != stub.SocketURL || endpoints.HTTPBaseURL != stub.BaseURL {
		t.Fatalf("endpoints = %+v", endpoints)
	}
	if _, ok := m.Resolve("sess-2"); ok {
		t.Fatal("Resolve(sess-2) = true for unhosted session")
	}
}

func TestManagerTouchAdvancesActivity(t *testing.T) {
	fake := clock.Fake(epoch)
	m := newTestManager(&engine.Stub{}, fake)

	m.StartSession(context.Background(), session.Session{ID: "sess-1"})
	fake.Advance(time.Minute)
	m.Touch("sess-1")

	lastActivity, ok := m.LastActivity("sess-1")
	if !ok {
		t.Fatal("LastActivity(sess-1) = false")
	}
	if got, want := lastActivity, epoch.Add(time.Minute); !got.Equal(want) {
		t.Fatalf("lastActivity = %v, want %v", got, want)
	}
}

func TestManagerHealthy(t *testing.T) {
	stub := &engine.Stub{}
	m := newTestManager(stub, clock.Fake(epoch))
	ctx := context.Background()

	// Empty manager is healthy.
	if err := m.Healthy(ctx); err != nil {
		t.Fatalf("Healthy on empty manager: %v", err)
	}

	m.StartSession(ctx, session.Session{ID: "sess-1"})
	if err := m.Healthy(ctx); err != nil {
		t.Fatalf("Healthy: %v", err)
	}

	stub.HealthErr = errors.New("engine gone")
	if err := m.Healthy(ctx); err == nil {
		t.Fatal("Healthy ignored a failing engine probe")
	}
}

func TestManagerStopAll(t *testing.T) {
	stub := &engine.Stub{}
	m := newTestManager(stub, clock.Fake(epoch))
	ctx := context.Background()

	m.StartSession(ctx, session.Session{ID: "sess-1"})
	m.StartSession(ctx, session.Session{ID: "sess-2"})
	m.StopAll(ctx)

	if m.Count() != 0 {
		t.Fatalf("Count = %d after StopAll, want 0", m.Count())
	}
	if len(stub.Stopped()) != 2 {
		t.Fatalf("stopped %d engines, want 2", len(stub.Stopped()))
	}
}
