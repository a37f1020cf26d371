// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"sync"
	"time"

	"github.com/browsergrid/browsergrid/lib/clock"
)

// BreakerState is the circuit breaker's operating mode.
type BreakerState string

const (
	// BreakerClosed passes all calls through.
	BreakerClosed BreakerState = "closed"

	// BreakerOpen rejects all calls without touching the engine until
	// the cooldown elapses.
	BreakerOpen BreakerState = "open"

	// BreakerHalfOpen lets exactly one trial call through; its
	// outcome decides between Closed and a fresh Open cooldown.
	BreakerHalfOpen BreakerState = "half-open"
)

// CircuitBreaker protects the worker's shared local engine. It is per
// gateway instance, not per session: engine reachability failures
// degrade the whole worker.
type CircuitBreaker struct {
	clock     clock.Clock
	threshold int
	cooldown  time.Duration

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	lastFailureTime time.Time
	trialInFlight   bool
}

// NewCircuitBreaker returns a closed breaker. threshold is the
// consecutive-failure count that opens it; cooldown is how long it
// stays open before probing.
func NewCircuitBreaker(clk clock.Clock, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		clock:     clk,
		threshold: threshold,
		cooldown:  cooldown,
		state:     BreakerClosed,
	}
}

// Rejecting reports whether the middleware should short-circuit the
// request with 503. An open breaker whose cooldown has elapsed moves
// to half-open here and stops rejecting, so the next request becomes
// the trial.
func (b *CircuitBreaker) Rejecting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return false
	}
	if b.clock.Now().Sub(b.lastFailureTime) < b.cooldown {
		return true
	}
	b.state = BreakerHalfOpen
	b.trialInFlight = false
	return false
}

// Allow is called immediately before an engine call. In half-open it
// reserves the single trial slot; concurrent callers are rejected
// until the trial resolves via Success or Failure.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return false
	}
}

// Success records a successful engine call: a half-open trial (or any
// closed-state success) resets the breaker to closed with a zeroed
// failure count.
func (b *CircuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failureCount = 0
	b.trialInFlight = false
}

// Failure records a failed engine call. In closed state it increments
// the failure count and opens the breaker at the threshold; a failed
// half-open trial reopens immediately with a fresh cooldown.
func (b *CircuitBreaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = b.clock.Now()
	b.trialInFlight = false

	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
	case BreakerClosed:
		b.failureCount++
		if b.failureCount >= b.threshold {
			b.state = BreakerOpen
		}
	}
}

// State returns the current state for /metrics.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
