// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator implements the stateless control-plane
// operations over the session store: create, claim, get, end, connect,
// disconnect, claim release, and the capacity decision that launches
// new workers. All shared-state correctness rests on the store's
// atomic queue pop; any two operations on different sessions run fully
// concurrently.
package orchestrator

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/browsergrid/browsergrid/lib/clock"
	"github.com/browsergrid/browsergrid/lib/compute"
	"github.com/browsergrid/browsergrid/lib/session"
	"github.com/browsergrid/browsergrid/lib/sessiontoken"
	"github.com/browsergrid/browsergrid/lib/store"
)

// Config holds the orchestrator's tunables. Zero values select the
// defaults noted per field.
type Config struct {
	// MaxSessionsPerWorker caps engine count per worker. Default 20.
	MaxSessionsPerWorker int

	// MaxWorkers caps the fleet size. Default 10.
	MaxWorkers int

	// DefaultTimeout applies when a create request carries no
	// timeout. Default 15 minutes.
	DefaultTimeout time.Duration

	// TokenValidity bounds connect-token lifetime. Default 1 hour.
	TokenValidity time.Duration

	// WorkerTTL is the heartbeat TTL; a worker silent longer than
	// this is presumed dead. Default 90 seconds.
	WorkerTTL time.Duration

	// ConnectionTTL bounds connection records against leaked
	// disconnects. Default 1 hour.
	ConnectionTTL time.Duration

	// CleanupTTL bounds how long a fully-disconnected session's state
	// survives before the sweeper ends it. Default 5 minutes.
	CleanupTTL time.Duration

	// MaxLaunchAttempts caps engine-launch retries per session before
	// the session stops. Default 3.
	MaxLaunchAttempts int

	// StopComputeOnDisconnect requests compute termination when the
	// last connection drops. Default false: the idle reaper on the
	// worker handles reclamation.
	StopComputeOnDisconnect bool

	// GatewayIngress is the public base URL for gateway traffic
	// (e.g. "wss://connect.browsergrid.dev"). When empty, connect
	// URLs fall back to the control-plane relay at PublicURL.
	GatewayIngress string

	// PublicURL is the control plane's own base URL, used for the
	// relay fallback.
	PublicURL string
}

func (c Config) withDefaults() Config {
	if c.MaxSessionsPerWorker <= 0 {
		c.MaxSessionsPerWorker = 20
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 10
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 15 * time.Minute
	}
	if c.TokenValidity <= 0 {
		c.TokenValidity = time.Hour
	}
	if c.WorkerTTL <= 0 {
		c.WorkerTTL = 90 * time.Second
	}
	if c.ConnectionTTL <= 0 {
		c.ConnectionTTL = time.Hour
	}
	if c.CleanupTTL <= 0 {
		c.CleanupTTL = 5 * time.Minute
	}
	if c.MaxLaunchAttempts <= 0 {
		c.MaxLaunchAttempts = 3
	}
	return c
}

// Orchestrator is the control plane's operation set. It holds no
// session state of its own — everything lives in the store, so any
// number of control-plane replicas can run against one store.
type Orchestrator struct {
	store      store.Store
	launcher   compute.Launcher
	clock      clock.Clock
	logger     *slog.Logger
	signingKey ed25519.PrivateKey
	config     Config
}

// New constructs an Orchestrator. Store, launcher, clock, and signing
// key are required.
func New(st store.Store, launcher compute.Launcher, clk clock.Clock, signingKey ed25519.PrivateKey, logger *slog.Logger, cfg Config) (*Orchestrator, error) {
	if st == nil {
		return nil, fmt.Errorf("orchestrator: store is required")
	}
	if launcher == nil {
		return nil, fmt.Errorf("orchestrator: compute launcher is required")
	}
	if clk == nil {
		return nil, fmt.Errorf("orchestrator: clock is required")
	}
	if len(signingKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("orchestrator: invalid signing key")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		store:      st,
		launcher:   launcher,
		clock:      clk,
		logger:     logger,
		signingKey: signingKey,
		config:     cfg.withDefaults(),
	}, nil
}

// CreateSession writes a pending session, enqueues it, runs the
// capacity decision, and returns the connect URL and signed token.
// Queuing never fails for capacity reasons — only a store failure
// yields ErrCapacityExhausted.
func (o *Orchestrator) CreateSession(ctx context.Context, request session.CreateRequest) (*session.CreateResponse, error) {
	now := o.clock.Now()

	timeout := o.config.DefaultTimeout
	if request.TimeoutMinutes > 0 {
		timeout = time.Duration(request.TimeoutMinutes) * time.Minute
	}

	record := &session.Session{
		ID:              uuid.NewString(),
		ProjectID:       request.ProjectID,
		Status:          session.StatusPending,
		CreatedAt:       now,
		LastActivity:    now,
		TimeoutSeconds:  int(timeout / time.Second),
		ExpiresAt:       now.Add(timeout),
		BrowserSettings: request.BrowserSettings,
	}

	if err := o.store.CreateSession(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrCapacityExhausted, err)
	}
	if err := o.store.EnqueuePending(ctx, record.ID); err != nil {
		// The record exists but can never be claimed; remove it
		// rather than leaving a stuck pending session.
		if deleteErr := o.store.DeleteSession(ctx, record.ID); deleteErr != nil {
			o.logger.Error("orphaned session after enqueue failure",
				"session", record.ID, "error", deleteErr)
		}
		return nil, fmt.Errorf("%w: %v", session.ErrCapacityExhausted, err)
	}

	// Capacity decision. Launch failures degrade to queuing for
	// existing workers — creation has already succeeded.
	o.maybeLaunchWorker(ctx, record)

	token, err := sessiontoken.MintString(o.signingKey, &sessiontoken.Token{
		SessionID: record.ID,
		ProjectID: record.ProjectID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(o.config.TokenValidity).Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: minting token: %w", err)
	}

	o.logger.Info("session created",
		"session", record.ID,
		"project", record.ProjectID,
		"timeout", timeout,
	)

	return &session.CreateResponse{
		SessionID:  record.ID,
		ConnectURL: o.connectURL(record.ID, token),
		Token:      token,
	}, nil
}

// connectURL points at the fixed gateway ingress when configured,
// otherwise at the control-plane relay.
func (o *Orchestrator) connectURL(sessionID, token string) string {
	base := o.config.GatewayIngress
	if base == "" {
		base = o.config.PublicURL + "/v1/relay"
	}
	return fmt.Sprintf("%s/sessions/%s?token=%s", base, sessionID, token)
}

// GetSession returns session detail with the derived connection count.
func (o *Orchestrator) GetSession(ctx context.Context, id string) (*session.Detail, error) {
	record, err := o.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	connections, err := o.store.CountConnections(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: counting connections: %w", err)
	}
	return &session.Detail{Session: *record, ActiveConnections: connections}, nil
}

// EndSession is idempotent: the first call tears the session down, a
// second call returns session.ErrSessionNotFound. Compute termination
// is best-effort; its errors are logged, never returned.
func (o *Orchestrator) EndSession(ctx context.Context, id string) error {
	record, err := o.store.GetSession(ctx, id)
	if err != nil {
		return err
	}

	if record.ComputeHandle != "" {
		if err := o.launcher.Stop(ctx, compute.Handle(record.ComputeHandle)); err != nil {
			o.logger.Warn("compute stop failed during session end",
				"session", id, "handle", record.ComputeHandle, "error", err)
		}
	}

	if err := o.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	o.logger.Info("session ended", "session", id, "status_was", record.Status)
	return nil
}

// Connect validates the token, records a connection, and optionally
// resolves a direct streaming endpoint on the assigned worker. The
// session's status does not change here — the gateway attachment is
// what moves it to connected (see MarkConnected).
func (o *Orchestrator) Connect(ctx context.Context, request session.ConnectRequest) (*session.ConnectResponse, error) {
	token, err := sessiontoken.VerifyString(o.TokenPublicKey(), request.Token, o.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrAuthentication, err)
	}

	record, err := o.store.GetSession(ctx, token.SessionID)
	if err != nil {
		return nil, err
	}

	now := o.clock.Now()
	connection := &session.Connection{
		ID:           uuid.NewString(),
		SessionID:    record.ID,
		ConnectedAt:  now,
		LastActivity: now,
	}
	if err := o.store.CreateConnection(ctx, connection, o.config.ConnectionTTL); err != nil {
		return nil, fmt.Errorf("orchestrator: recording connection: %w", err)
	}

	record.LastActivity = now
	if err := o.store.UpdateSession(ctx, record); err != nil {
		o.logger.Warn("session activity update failed", "session", record.ID, "error", err)
	}

	response := &session.ConnectResponse{ConnectionID: connection.ID}
	if request.RequestStream {
		response.StreamURL = o.resolveStreamURL(ctx, record)
	}

	o.logger.Info("client connected",
		"session", record.ID,
		"connection", connection.ID,
		"stream", request.RequestStream,
	)
	return response, nil
}

// resolveStreamURL returns the assigned worker's direct streaming
// endpoint, or "" when the session has no worker yet or the worker's
// heartbeat lapsed. Media then flows through the control-plane relay.
func (o *Orchestrator) resolveStreamURL(ctx context.Context, record *session.Session) string {
	if record.WorkerID == "" {
		return ""
	}
	workers, err := o.store.ListWorkers(ctx)
	if err != nil {
		o.logger.Warn("worker list failed during stream resolution",
			"session", record.ID, "error", err)
		return ""
	}
	for _, worker := range workers {
		if worker.ID == record.WorkerID && worker.GatewayURL != "" {
			return fmt.Sprintf("%s/stream/%s", worker.GatewayURL, record.ID)
		}
	}
	return ""
}

// Disconnect removes a connection. When the session's connection set
// empties, the session transitions to disconnected, a bounded cleanup
// TTL starts, and — under the idle-stop policy — compute termination
// is requested. Otherwise only the session's activity clock moves.
func (o *Orchestrator) Disconnect(ctx context.Context, connectionID string) error {
	connection, err := o.store.GetConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	if err := o.store.DeleteConnection(ctx, connectionID); err != nil {
		return err
	}

	record, err := o.store.GetSession(ctx, connection.SessionID)
	if err != nil {
		// Session already gone; nothing left to transition.
		return nil
	}

	now := o.clock.Now()
	remaining, err := o.store.CountConnections(ctx, record.ID)
	if err != nil {
		return fmt.Errorf("orchestrator: counting connections: %w", err)
	}

	record.LastActivity = now
	if remaining == 0 {
		if record.Status.CanTransitionTo(session.StatusDisconnected) {
			record.Status = session.StatusDisconnected
		}
		record.ExpiresAt = now.Add(o.config.CleanupTTL)
		if o.config.StopComputeOnDisconnect && record.ComputeHandle != "" {
			if err := o.launcher.Stop(ctx, compute.Handle(record.ComputeHandle)); err != nil {
				o.logger.Warn("compute stop failed on disconnect",
					"session", record.ID, "error", err)
			}
		}
	}
	if err := o.store.UpdateSession(ctx, record); err != nil {
		return err
	}

	o.logger.Info("client disconnected",
		"session", record.ID,
		"connection", connectionID,
		"remaining", remaining,
	)
	return nil
}

// MarkConnected moves a session to connected when the worker's gateway
// observes the first relay attachment. Redundant calls are no-ops.
func (o *Orchestrator) MarkConnected(ctx context.Context, sessionID string) error {
	record, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if record.Status == session.StatusConnected {
		return nil
	}
	if !record.Status.CanTransitionTo(session.StatusConnected) {
		return nil
	}
	record.Status = session.StatusConnected
	record.LastActivity = o.clock.Now()
	return o.store.UpdateSession(ctx, record)
}

// TokenPublicKey returns the verification key gateways use.
func (o *Orchestrator) TokenPublicKey() ed25519.PublicKey {
	return o.signingKey.Public().(ed25519.PublicKey)
}
