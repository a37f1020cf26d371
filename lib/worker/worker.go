// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker is the worker runtime: it claims pending sessions
// from the control plane, runs one browser engine per claimed session,
// serves the protocol gateway, reports health, and reaps idle
// sessions. The worker is the authority for "session ended": idle
// reaping and shutdown report the end upstream, and the control
// plane's own cleanup treats those reports as the primary signal.
package worker

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/browsergrid/browsergrid/lib/clock"
	"github.com/browsergrid/browsergrid/lib/controlclient"
	"github.com/browsergrid/browsergrid/lib/engine"
	"github.com/browsergrid/browsergrid/lib/gateway"
	"github.com/browsergrid/browsergrid/lib/session"
)

// Config tunes the worker runtime.
type Config struct {
	// WorkerID is this worker's stable identity, assigned at launch.
	WorkerID string

	// MaxSessions caps concurrently hosted sessions.
	MaxSessions int

	// GatewayListen is the gateway's listen address.
	GatewayListen string

	// GatewayURL is the externally reachable base URL advertised in
	// heartbeats for direct streaming.
	GatewayURL string

	// TokenPublicKey verifies connect tokens at the gateway.
	TokenPublicKey ed25519.PublicKey

	// Intervals. Zero values select the defaults noted per field.
	ClaimInterval     time.Duration // 2s
	HeartbeatInterval time.Duration // 30s
	ReapInterval      time.Duration // 60s
	IdleThreshold     time.Duration // 5m

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 20
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = 2 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 60 * time.Second
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = 5 * time.Minute
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Runtime is one running worker.
type Runtime struct {
	config  Config
	control *controlclient.Client
	manager *Manager
	gateway *gateway.Gateway
	clock   clock.Clock
	logger  *slog.Logger
}

// New wires a runtime from its collaborators.
func New(config Config, control *controlclient.Client, starter engine.Starter) (*Runtime, error) {
	config = config.withDefaults()
	if config.WorkerID == "" {
		return nil, fmt.Errorf("worker: worker id is required")
	}
	if control == nil {
		return nil, fmt.Errorf("worker: control client is required")
	}
	if starter == nil {
		return nil, fmt.Errorf("worker: engine starter is required")
	}

	r := &Runtime{
		config:  config,
		control: control,
		clock:   config.Clock,
		logger:  config.Logger.With("worker", config.WorkerID),
	}
	r.manager = NewManager(starter, config.Clock, r.logger)
	r.gateway = gateway.New(gateway.Config{
		PublicKey:     config.TokenPublicKey,
		Resolver:      r.manager,
		OnFirstAttach: r.onFirstAttach,
		OnLastDetach:  r.onLastDetach,
		HealthCheck:   r.manager.Healthy,
		Clock:         config.Clock,
		Logger:        r.logger,
	})
	return r, nil
}

// Gateway exposes the embedded gateway, mainly for its handler.
func (r *Runtime) Gateway() *gateway.Gateway {
	return r.gateway
}

// Run starts the claim, heartbeat, and reap loops plus the gateway
// server and blocks until ctx is done, then shuts down gracefully:
// hosted sessions are reported ended upstream and their engines
// stopped.
func (r *Runtime) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    r.config.GatewayListen,
		Handler: r.gateway.Handler(),
	}
	serverErr := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var wg sync.WaitGroup
	loops := []func(context.Context){
		r.claimLoop,
		r.heartbeatLoop,
		r.reapLoop,
		r.gateway.Run,
	}
	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()
	for _, loop := range loops {
		wg.Add(1)
		go func(loop func(context.Context)) {
			defer wg.Done()
			loop(loopCtx)
		}(loop)
	}

	r.logger.Info("worker running",
		"gateway_listen", r.config.GatewayListen,
		"max_sessions", r.config.MaxSessions,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("worker: gateway server: %w", err)
	}

	cancelLoops()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	r.shutdownSessions(shutdownCtx)

	r.logger.Info("worker stopped")
	return runErr
}

// shutdownSessions ends every hosted session upstream and stops its
// engine. End reports are best-effort: the control plane's sweeper
// covers sessions we fail to report.
func (r *Runtime) shutdownSessions(ctx context.Context) {
	for _, sessionID := range r.manager.SessionIDs() {
		if err := r.control.EndSession(ctx, sessionID); err != nil &&
			!errors.Is(err, session.ErrSessionNotFound) {
			r.logger.Warn("shutdown end report failed",
				"session", sessionID, "error", err)
		}
		r.manager.StopSession(ctx, sessionID)
	}
}

// claimLoop polls the control plane for pending sessions while slots
// are free.
func (r *Runtime) claimLoop(ctx context.Context) {
	ticker := r.clock.NewTicker(r.config.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.claimOnce(ctx)
		}
	}
}

// claimOnce claims up to the free-slot count and starts an engine per
// claimed session. A session whose engine launch fails is released
// back so the control plane can requeue or end it.
func (r *Runtime) claimOnce(ctx context.Context) {
	current := r.manager.Count()
	if current >= r.config.MaxSessions {
		return
	}

	response, err := r.control.Claim(ctx, session.ClaimRequest{
		WorkerID:        r.config.WorkerID,
		MaxSessions:     r.config.MaxSessions,
		CurrentSessions: current,
	})
	if err != nil {
		r.logger.Warn("claim failed", "error", err)
		return
	}

	for _, claimed := range response.Sessions {
		if err := r.manager.StartSession(ctx, claimed); err != nil {
			r.logger.Error("engine launch failed; releasing claim",
				"session", claimed.ID, "error", err)
			releaseErr := r.control.Release(ctx, session.ReleaseRequest{
				WorkerID:  r.config.WorkerID,
				SessionID: claimed.ID,
				Reason:    err.Error(),
			})
			if releaseErr != nil {
				r.logger.Error("claim release failed",
					"session", claimed.ID, "error", releaseErr)
			}
		}
	}
}

// heartbeatLoop reports liveness and capacity. The first heartbeat
// also flips this worker's record from pending to running on the
// control plane.
func (r *Runtime) heartbeatLoop(ctx context.Context) {
	r.heartbeatOnce(ctx)

	ticker := r.clock.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.heartbeatOnce(ctx)
		}
	}
}

func (r *Runtime) heartbeatOnce(ctx context.Context) {
	err := r.control.Heartbeat(ctx, r.config.WorkerID, session.HeartbeatRequest{
		ActiveSessions: r.manager.Count(),
		MaxSessions:    r.config.MaxSessions,
		GatewayURL:     r.config.GatewayURL,
	})
	if err != nil {
		r.logger.Warn("heartbeat failed", "error", err)
	}
}

// onFirstAttach reports the session connected when its first relay
// attaches to the gateway.
func (r *Runtime) onFirstAttach(sessionID string) {
	r.manager.Touch(sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.control.MarkConnected(ctx, sessionID); err != nil {
		r.logger.Warn("connected report failed", "session", sessionID, "error", err)
	}
}

// onLastDetach only stamps activity; the disconnected transition is
// driven by the client's disconnect handshake or the idle reaper, not
// by relay teardown, so a flaky network blip does not bounce status.
func (r *Runtime) onLastDetach(sessionID string) {
	r.manager.Touch(sessionID)
}
