// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/browsergrid/browsergrid/lib/compute"
	"github.com/browsergrid/browsergrid/lib/session"
)

// shouldLaunchWorker is the capacity decision. Launch a worker iff the
// active-session load has reached the running fleet's capacity and the
// fleet (running plus still-booting) is below its cap.
//
// Pure function; the orchestrator feeds it counts read from the store.
func shouldLaunchWorker(activeSessions, runningWorkers, pendingWorkers, maxSessionsPerWorker, maxWorkers int) bool {
	if activeSessions < runningWorkers*maxSessionsPerWorker {
		return false
	}
	return runningWorkers+pendingWorkers < maxWorkers
}

// maybeLaunchWorker runs the capacity decision for a freshly created
// session and launches a compute unit when capacity is saturated.
// Every failure path degrades to queuing: the session stays pending
// for any existing or future worker.
func (o *Orchestrator) maybeLaunchWorker(ctx context.Context, record *session.Session) {
	activeSessions, err := o.store.CountActiveSessions(ctx)
	if err != nil {
		o.logger.Warn("capacity check skipped: counting sessions failed", "error", err)
		return
	}
	workers, err := o.store.ListWorkers(ctx)
	if err != nil {
		o.logger.Warn("capacity check skipped: listing workers failed", "error", err)
		return
	}

	runningWorkers, pendingWorkers := 0, 0
	for _, worker := range workers {
		switch worker.State {
		case session.WorkerRunning:
			runningWorkers++
		case session.WorkerPending:
			pendingWorkers++
		}
	}

	if !shouldLaunchWorker(activeSessions, runningWorkers, pendingWorkers,
		o.config.MaxSessionsPerWorker, o.config.MaxWorkers) {
		return
	}

	// Stable logical name family; infrastructure identifiers are
	// derived by the launcher at launch time.
	workerName := fmt.Sprintf("worker-%s", uuid.NewString()[:8])
	handle, err := o.launcher.Launch(ctx, compute.LaunchSpec{
		Name:        workerName,
		MaxSessions: o.config.MaxSessionsPerWorker,
	})
	if err != nil {
		o.logger.Error("worker launch failed; session stays queued",
			"session", record.ID, "worker", workerName, "error", err)
		return
	}

	// A pending worker row makes the in-flight launch visible to
	// subsequent capacity decisions; its first heartbeat flips it to
	// running.
	pendingWorker := &session.Worker{
		ID:            workerName,
		State:         session.WorkerPending,
		LastHeartbeat: o.clock.Now(),
		MaxSessions:   o.config.MaxSessionsPerWorker,
	}
	if err := o.store.UpsertWorker(ctx, pendingWorker, o.config.WorkerTTL); err != nil {
		o.logger.Warn("pending worker record write failed", "worker", workerName, "error", err)
	}

	record.ComputeHandle = string(handle)
	if err := o.store.UpdateSession(ctx, record); err != nil {
		o.logger.Warn("compute handle record failed", "session", record.ID, "error", err)
	}

	o.logger.Info("worker launched",
		"worker", workerName,
		"active_sessions", activeSessions,
		"running_workers", runningWorkers,
		"pending_workers", pendingWorkers,
	)
}
