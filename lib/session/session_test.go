// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusActive, true},
		{StatusPending, StatusExpired, true},
		{StatusPending, StatusConnected, false},
		{StatusActive, StatusConnected, true},
		{StatusActive, StatusDisconnected, true},
		{StatusActive, StatusPending, false},
		{StatusConnected, StatusDisconnected, true},
		{StatusDisconnected, StatusConnected, true},
		{StatusDisconnected, StatusActive, false},
		// Explicit end from any non-terminal state.
		{StatusPending, StatusStopped, true},
		{StatusActive, StatusStopped, true},
		{StatusConnected, StatusStopped, true},
		{StatusDisconnected, StatusStopped, true},
		// Terminal states stay terminal.
		{StatusStopped, StatusActive, false},
		{StatusStopped, StatusStopped, false},
		{StatusExpired, StatusStopped, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_to_%s", tc.from, tc.to), func(t *testing.T) {
			if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
				t.Fatalf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	for _, status := range []Status{StatusStopped, StatusExpired} {
		if !status.Terminal() {
			t.Errorf("%s should be terminal", status)
		}
	}
	for _, status := range []Status{StatusPending, StatusActive, StatusConnected, StatusDisconnected} {
		if status.Terminal() {
			t.Errorf("%s should not be terminal", status)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrMalformedRequest, 400},
		{ErrAuthentication, 401},
		{ErrSessionNotFound, 404},
		{ErrRateLimited, 429},
		{ErrCircuitOpen, 503},
		{ErrCapacityExhausted, 503},
		{ErrEngineUnreachable, 503},
		{errors.New("something else"), 500},
		// Wrapped errors resolve through errors.Is.
		{fmt.Errorf("claim: %w", ErrSessionNotFound), 404},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestErrorCodeRoundTrip(t *testing.T) {
	sentinels := []error{
		ErrMalformedRequest,
		ErrAuthentication,
		ErrSessionNotFound,
		ErrRateLimited,
		ErrCircuitOpen,
		ErrCapacityExhausted,
		ErrEngineUnreachable,
	}
	seen := make(map[string]bool)
	for _, sentinel := range sentinels {
		code := ErrorCode(sentinel)
		if code == "internal" {
			t.Errorf("ErrorCode(%v) fell through to internal", sentinel)
		}
		if seen[code] {
			t.Errorf("ErrorCode(%v) = %q collides with another sentinel", sentinel, code)
		}
		seen[code] = true
	}
	if got := ErrorCode(errors.New("boom")); got != "internal" {
		t.Errorf("ErrorCode(unknown) = %q, want internal", got)
	}
}
