// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/browsergrid/browsergrid/lib/session"
)

// Claim atomically assigns up to availableSlots pending sessions to a
// worker. The queue pop is exactly-once across concurrent claimers;
// every popped ID is re-validated against the session record, because
// a session can be ended (or expire) between enqueue and claim — such
// IDs are skipped silently, not retried.
func (o *Orchestrator) Claim(ctx context.Context, request session.ClaimRequest) (*session.ClaimResponse, error) {
	if request.WorkerID == "" {
		return nil, fmt.Errorf("%w: workerId is required", session.ErrMalformedRequest)
	}

	availableSlots := request.MaxSessions - request.CurrentSessions
	if availableSlots < 0 {
		availableSlots = 0
	}

	popped, err := o.store.PopPending(ctx, availableSlots)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: popping pending queue: %w", err)
	}

	now := o.clock.Now()
	claimed := make([]session.Session, 0, len(popped))
	for _, sessionID := range popped {
		record, err := o.store.GetSession(ctx, sessionID)
		if err != nil {
			// Popped ID whose record vanished (ended or TTL-expired
			// out of the store).
			o.logger.Info("claim skipped: session record gone", "session", sessionID)
			continue
		}
		if record.Status != session.StatusPending {
			o.logger.Info("claim skipped: session no longer pending",
				"session", sessionID, "status", record.Status)
			continue
		}

		record.Status = session.StatusActive
		record.WorkerID = request.WorkerID
		record.LastActivity = now
		// The claim TTL has served its purpose; idle reclamation now
		// belongs to the worker's reaper.
		record.ExpiresAt = now.Add(time.Duration(record.TimeoutSeconds) * time.Second)
		if err := o.store.UpdateSession(ctx, record); err != nil {
			o.logger.Warn("claim update failed", "session", sessionID, "error", err)
			continue
		}
		claimed = append(claimed, *record)
	}

	// Refresh the worker heartbeat with the post-claim session count.
	worker := &session.Worker{
		ID:             request.WorkerID,
		State:          session.WorkerRunning,
		LastHeartbeat:  now,
		ActiveSessions: request.CurrentSessions + len(claimed),
		MaxSessions:    request.MaxSessions,
	}
	if err := o.store.UpsertWorker(ctx, worker, o.config.WorkerTTL); err != nil {
		o.logger.Warn("worker heartbeat refresh failed", "worker", request.WorkerID, "error", err)
	}

	if len(claimed) > 0 {
		o.logger.Info("sessions claimed",
			"worker", request.WorkerID,
			"count", len(claimed),
		)
	}
	return &session.ClaimResponse{Sessions: claimed}, nil
}

// ReleaseClaim compensates a claim whose engine launch failed. The
// session is requeued as pending until its attempt cap is reached,
// after which it is ended. Safe to call redundantly: releases for
// unknown sessions or mismatched workers are no-ops.
func (o *Orchestrator) ReleaseClaim(ctx context.Context, request session.ReleaseRequest) error {
	record, err := o.store.GetSession(ctx, request.SessionID)
	if err != nil {
		return nil
	}
	if record.Status != session.StatusActive || record.WorkerID != request.WorkerID {
		return nil
	}

	record.LaunchAttempts++
	if record.LaunchAttempts >= o.config.MaxLaunchAttempts {
		o.logger.Error("session abandoned after repeated launch failures",
			"session", record.ID,
			"attempts", record.LaunchAttempts,
			"reason", request.Reason,
		)
		return o.EndSession(ctx, record.ID)
	}

	now := o.clock.Now()
	record.Status = session.StatusPending
	record.WorkerID = ""
	record.LastActivity = now
	record.ExpiresAt = now.Add(time.Duration(record.TimeoutSeconds) * time.Second)
	if err := o.store.UpdateSession(ctx, record); err != nil {
		return fmt.Errorf("orchestrator: requeue update: %w", err)
	}
	if err := o.store.EnqueuePending(ctx, record.ID); err != nil {
		return fmt.Errorf("orchestrator: requeue enqueue: %w", err)
	}

	o.logger.Warn("claim released; session requeued",
		"session", record.ID,
		"worker", request.WorkerID,
		"attempt", record.LaunchAttempts,
		"reason", request.Reason,
	)
	return nil
}

// Heartbeat refreshes a worker's TTL-bound record.
func (o *Orchestrator) Heartbeat(ctx context.Context, workerID string, request session.HeartbeatRequest) error {
	if workerID == "" {
		return fmt.Errorf("%w: worker id is required", session.ErrMalformedRequest)
	}
	worker := &session.Worker{
		ID:             workerID,
		State:          session.WorkerRunning,
		LastHeartbeat:  o.clock.Now(),
		ActiveSessions: request.ActiveSessions,
		MaxSessions:    request.MaxSessions,
		GatewayURL:     request.GatewayURL,
	}
	return o.store.UpsertWorker(ctx, worker, o.config.WorkerTTL)
}
