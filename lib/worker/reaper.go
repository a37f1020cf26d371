// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"

	"github.com/browsergrid/browsergrid/lib/session"
)

// reapLoop ends sessions idle beyond the threshold. Activity is the
// later of relay traffic seen by the gateway and lifecycle events seen
// by the manager, so a session with a live but silent connection still
// ages out.
func (r *Runtime) reapLoop(ctx context.Context) {
	ticker := r.clock.NewTicker(r.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reapOnce(ctx)
		}
	}
}

// reapOnce sweeps hosted sessions once. Exposed on the runtime for
// deterministic tests.
func (r *Runtime) reapOnce(ctx context.Context) {
	now := r.clock.Now()
	registry := r.gateway.Registry()

	for _, sessionID := range r.manager.SessionIDs() {
		lastActivity, ok := r.manager.LastActivity(sessionID)
		if !ok {
			continue
		}
		if relayActivity, live := registry.LastActivity(sessionID); live && relayActivity.After(lastActivity) {
			lastActivity = relayActivity
		}
		if now.Sub(lastActivity) < r.config.IdleThreshold {
			continue
		}

		r.logger.Info("reaping idle session",
			"session", sessionID,
			"idle", now.Sub(lastActivity),
		)
		if err := r.control.EndSession(ctx, sessionID); err != nil &&
			!errors.Is(err, session.ErrSessionNotFound) {
			r.logger.Warn("idle end report failed", "session", sessionID, "error", err)
		}
		r.manager.StopSession(ctx, sessionID)
	}
}
