// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package compute abstracts the infrastructure API that launches and
// stops the compute units hosting workers. The capacity controller
// calls Launch when the pool is saturated; session end and disconnect
// call Stop best-effort.
//
// Launch specs refer to a stable logical name family ("worker" plus a
// generated suffix) resolved at launch time — a unit never embeds its
// own generated identifier before it exists.
package compute

import "context"

// Handle is an opaque reference to a launched compute unit, usable
// only with the Launcher that produced it.
type Handle string

// LaunchSpec describes the compute unit to launch.
type LaunchSpec struct {
	// Name is the logical worker name (e.g. "worker-9f3a"). The
	// launcher derives infrastructure identifiers from it.
	Name string

	// MaxSessions is passed through to the worker's configuration.
	MaxSessions int
}

// Launcher launches and stops compute units. Implementations must be
// safe for concurrent use.
type Launcher interface {
	// Launch starts a compute unit and returns its handle. The unit
	// boots asynchronously; it announces itself to the control plane
	// with its first heartbeat.
	Launch(ctx context.Context, spec LaunchSpec) (Handle, error)

	// Stop terminates a compute unit. Stopping an already-stopped or
	// unknown handle is not an error.
	Stop(ctx context.Context, handle Handle) error
}
