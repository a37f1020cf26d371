// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"sync"
)

// Stub is an in-process fake Starter/Engine pair for tests: no browser
// process, configurable endpoints and failures.
type Stub struct {
	// SocketURL and BaseURL are handed to every started engine.
	SocketURL string
	BaseURL   string

	// StartErr, when set, makes Start fail.
	StartErr error

	// HealthErr, when set, makes every engine's Healthy probe fail.
	HealthErr error

	mu      sync.Mutex
	started []string
	stopped []string
}

// Start records the session and returns a stub engine.
func (s *Stub) Start(ctx context.Context, options Options) (Engine, error) {
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	s.mu.Lock()
	s.started = append(s.started, options.SessionID)
	s.mu.Unlock()
	return &stubEngine{stub: s, sessionID: options.SessionID}, nil
}

// Started returns the session IDs passed to Start, in order.
func (s *Stub) Started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.started...)
}

// Stopped returns the session IDs whose engines were stopped, in order.
func (s *Stub) Stopped() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stopped...)
}

type stubEngine struct {
	stub      *Stub
	sessionID string
}

func (e *stubEngine) WebSocketURL() string { return e.stub.SocketURL }
func (e *stubEngine) HTTPBaseURL() string  { return e.stub.BaseURL }

func (e *stubEngine) Healthy(ctx context.Context) error {
	return e.stub.HealthErr
}

func (e *stubEngine) Stop(ctx context.Context) error {
	e.stub.mu.Lock()
	e.stub.stopped = append(e.stub.stopped, e.sessionID)
	e.stub.mu.Unlock()
	return nil
}
