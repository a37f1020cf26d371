// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "errors"

// Errors shared across the control plane and gateway. Each maps to one
// HTTP status; see HTTPStatus.
var (
	// ErrAuthentication covers missing, invalid, and expired tokens.
	ErrAuthentication = errors.New("session: authentication failed")

	// ErrRateLimited is returned while a session's rate-limit block is
	// in effect.
	ErrRateLimited = errors.New("session: rate limit exceeded")

	// ErrCircuitOpen means the worker's engine is presumed down and
	// calls are being rejected without reaching it.
	ErrCircuitOpen = errors.New("session: circuit open")

	// ErrSessionNotFound means the session record is absent (never
	// existed, expired out of the store, or already ended).
	ErrSessionNotFound = errors.New("session: not found")

	// ErrCapacityExhausted means the store or compute launch path
	// failed outright. Queuing alone never produces this error.
	ErrCapacityExhausted = errors.New("session: capacity exhausted")

	// ErrEngineUnreachable is a dial/connect failure against the local
	// browser engine.
	ErrEngineUnreachable = errors.New("session: engine unreachable")

	// ErrMalformedRequest is a request rejected at the decode boundary.
	ErrMalformedRequest = errors.New("session: malformed request")
)

// HTTPStatus maps a taxonomy error to its control-plane HTTP status.
// Unknown errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return 400
	case errors.Is(err, ErrAuthentication):
		return 401
	case errors.Is(err, ErrSessionNotFound):
		return 404
	case errors.Is(err, ErrRateLimited):
		return 429
	case errors.Is(err, ErrCircuitOpen),
		errors.Is(err, ErrCapacityExhausted),
		errors.Is(err, ErrEngineUnreachable):
		return 503
	default:
		return 500
	}
}

// ErrorCode returns the stable machine-readable code carried in
// ErrorBody for a taxonomy error. Unknown errors report "internal".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrAuthentication):
		return "authentication_failed"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limit_exceeded"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrCapacityExhausted):
		return "capacity_exhausted"
	case errors.Is(err, ErrEngineUnreachable):
		return "engine_unreachable"
	default:
		return "internal"
	}
}
