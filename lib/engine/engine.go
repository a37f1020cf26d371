// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine starts and supervises the local browser engines that
// sessions run against. One engine per session; the worker runtime
// owns the mapping.
package engine

import (
	"context"
	"encoding/json"
)

// Engine is a running browser engine bound to one session. Both URLs
// point at the engine's local control endpoint and are only reachable
// from the worker that started it.
type Engine interface {
	// WebSocketURL is the engine's root protocol socket.
	WebSocketURL() string

	// HTTPBaseURL is the engine's HTTP metadata surface.
	HTTPBaseURL() string

	// Healthy probes the engine's reachability.
	Healthy(ctx context.Context) error

	// Stop terminates the engine process and releases its resources.
	// Stopping an already-dead engine is not an error.
	Stop(ctx context.Context) error
}

// Options parameterizes an engine start.
type Options struct {
	// SessionID names the session this engine serves, used for
	// logging and working-directory naming.
	SessionID string

	// BrowserSettings is the client-supplied settings document from
	// session creation, passed through uninterpreted by the control
	// plane. See browserSettings for the fields the engine honors.
	BrowserSettings json.RawMessage
}

// Starter launches engines. The worker runtime holds one Starter and
// calls it once per claimed session.
type Starter interface {
	Start(ctx context.Context, options Options) (Engine, error)
}

// browserSettings is the subset of the client settings document the
// engine layer interprets. Unknown fields are ignored, not rejected:
// the document also carries hints for layers above this one.
type browserSettings struct {
	Headless *bool    `json:"headless,omitempty"`
	Width    int      `json:"width,omitempty"`
	Height   int      `json:"height,omitempty"`
	Profile  string   `json:"profile,omitempty"`
	Args     []string `json:"args,omitempty"`
}

func parseSettings(raw json.RawMessage) browserSettings {
	var settings browserSettings
	if len(raw) > 0 {
		// Malformed settings fall back to defaults rather than
		// failing the launch; creation already stored the document.
		json.Unmarshal(raw, &settings)
	}
	return settings
}
