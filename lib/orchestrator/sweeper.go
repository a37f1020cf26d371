// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"time"

	"github.com/browsergrid/browsergrid/lib/session"
)

// RunSweeper periodically expires unclaimed pending sessions, ends
// fully-disconnected sessions past their cleanup TTL, and prunes
// lapsed connection and worker records. Blocks until ctx is done.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := o.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep pass. Exposed for deterministic tests
// and for invocation on demand.
func (o *Orchestrator) SweepOnce(ctx context.Context) {
	o.expirePending(ctx)
	o.endLapsedDisconnected(ctx)
	if err := o.store.PruneExpired(ctx); err != nil {
		o.logger.Warn("prune failed", "error", err)
	}
}

// expirePending moves pending sessions past their TTL to expired and
// removes them from the queue so no worker claims a dead session.
func (o *Orchestrator) expirePending(ctx context.Context) {
	ids, err := o.store.ExpiredSessions(ctx, session.StatusPending)
	if err != nil {
		o.logger.Warn("expiry scan failed", "error", err)
		return
	}
	for _, id := range ids {
		record, err := o.store.GetSession(ctx, id)
		if err != nil {
			continue
		}
		record.Status = session.StatusExpired
		if err := o.store.UpdateSession(ctx, record); err != nil {
			o.logger.Warn("expiry update failed", "session", id, "error", err)
			continue
		}
		if err := o.store.RemovePending(ctx, id); err != nil {
			o.logger.Warn("queue removal failed", "session", id, "error", err)
		}
		o.logger.Info("session expired unclaimed", "session", id)
	}
}

// endLapsedDisconnected ends sessions whose last connection dropped
// and whose bounded cleanup TTL has elapsed.
func (o *Orchestrator) endLapsedDisconnected(ctx context.Context) {
	ids, err := o.store.ExpiredSessions(ctx, session.StatusDisconnected)
	if err != nil {
		o.logger.Warn("cleanup scan failed", "error", err)
		return
	}
	for _, id := range ids {
		if err := o.EndSession(ctx, id); err != nil {
			o.logger.Warn("cleanup end failed", "session", id, "error", err)
		}
	}
}
