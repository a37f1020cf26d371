// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"testing"
	"time"

	"github.com/browsergrid/browsergrid/lib/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestBreakerOpensAtThreshold(t *testing.T) {
	fake := clock.Fake(epoch)
	breaker := NewCircuitBreaker(fake, 3, 30*time.Second)

	for i := range 2 {
		breaker.Failure()
		if breaker.State() != BreakerClosed {
			t.Fatalf("breaker opened after %d failures, threshold 3", i+1)
		}
		if breaker.Rejecting() {
			t.Fatal("closed breaker rejecting")
		}
	}

	breaker.Failure()
	if breaker.State() != BreakerOpen {
		t.Fatalf("state after threshold = %s, want open", breaker.State())
	}
	if !breaker.Rejecting() {
		t.Fatal("open breaker not rejecting")
	}
	if breaker.Allow() {
		t.Fatal("open breaker allowed a call")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	fake := clock.Fake(epoch)
	breaker := NewCircuitBreaker(fake, 3, 30*time.Second)

	breaker.Failure()
	breaker.Failure()
	breaker.Success()

	// The count started over; two more failures stay closed.
	breaker.Failure()
	breaker.Failure()
	if breaker.State() != BreakerClosed {
		t.Fatalf("state = %s, want closed after interleaved success", breaker.State())
	}
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	fake := clock.Fake(epoch)
	breaker := NewCircuitBreaker(fake, 2, 30*time.Second)

	breaker.Failure()
	breaker.Failure()
	if !breaker.Rejecting() {
		t.Fatal("breaker should reject while open")
	}

	// Cooldown not yet elapsed.
	fake.Advance(29 * time.Second)
	if !breaker.Rejecting() {
		t.Fatal("breaker stopped rejecting before cooldown")
	}

	fake.Advance(time.Second)
	if breaker.Rejecting() {
		t.Fatal("breaker still rejecting after cooldown")
	}
	if breaker.State() != BreakerHalfOpen {
		t.Fatalf("state after cooldown = %s, want half-open", breaker.State())
	}

	// Exactly one trial call is admitted.
	if !breaker.Allow() {
		t.Fatal("half-open breaker rejected the trial call")
	}
	if breaker.Allow() {
		t.Fatal("half-open breaker admitted a second concurrent call")
	}
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	fake := clock.Fake(epoch)
	breaker := NewCircuitBreaker(fake, 2, 30*time.Second)

	breaker.Failure()
	breaker.Failure()
	fake.Advance(30 * time.Second)
	breaker.Rejecting()
	if !breaker.Allow() {
		t.Fatal("trial not admitted")
	}

	breaker.Success()
	if breaker.State() != BreakerClosed {
		t.Fatalf("state after trial success = %s, want closed", breaker.State())
	}
	if !breaker.Allow() {
		t.Fatal("closed breaker rejected a call")
	}
}

func TestBreakerTrialFailureReopensWithFreshCooldown(t *testing.T) {
	fake := clock.Fake(epoch)
	breaker := NewCircuitBreaker(fake, 2, 30*time.Second)

	breaker.Failure()
	breaker.Failure()
	fake.Advance(30 * time.Second)
	breaker.Rejecting()
	if !breaker.Allow() {
		t.Fatal("trial not admitted")
	}

	breaker.Failure()
	if breaker.State() != BreakerOpen {
		t.Fatalf("state after trial failure = %s, want open", breaker.State())
	}

	// The cooldown restarted at the trial failure.
	fake.Advance(29 * time.Second)
	if !breaker.Rejecting() {
		t.Fatal("breaker reopened without a fresh cooldown")
	}
	fake.Advance(time.Second)
	if breaker.Rejecting() {
		t.Fatal("breaker still rejecting after fresh cooldown")
	}
}
