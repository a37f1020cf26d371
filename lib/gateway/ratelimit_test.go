// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"testing"
	"time"

	"github.com/browsergrid/browsergrid/lib/clock"
)

func TestRateLimiterBoundary(t *testing.T) {
	fake := clock.Fake(epoch)
	limiter := NewRateLimiter(fake, time.Minute, 5, 5*time.Minute)

	// Requests 1..N succeed, N+1 is rejected and starts the block.
	for i := range 5 {
		if !limiter.Allow("sess-1") {
			t.Fatalf("request %d rejected within budget", i+1)
		}
	}
	if limiter.Allow("sess-1") {
		t.Fatal("request 6 admitted past budget")
	}
	if limiter.ActiveBlocks() != 1 {
		t.Fatalf("ActiveBlocks = %d, want 1", limiter.ActiveBlocks())
	}
}

func TestRateLimiterBlockOutlastsWindowReset(t *testing.T) {
	fake := clock.Fake(epoch)
	limiter := NewRateLimiter(fake, time.Minute, 2, 5*time.Minute)

	limiter.Allow("sess-1")
	limiter.Allow("sess-1")
	if limiter.Allow("sess-1") {
		t.Fatal("over-budget request admitted")
	}

	// The window would have reset, but the block holds.
	fake.Advance(2 * time.Minute)
	if limiter.Allow("sess-1") {
		t.Fatal("blocked key admitted after window reset")
	}

	// After the block elapses a fresh window starts.
	fake.Advance(4 * time.Minute)
	if !limiter.Allow("sess-1") {
		t.Fatal("request rejected after block elapsed")
	}
	if !limiter.Allow("sess-1") {
		t.Fatal("fresh window did not reset the count")
	}
	if limiter.Allow("sess-1") {
		t.Fatal("fresh window budget not enforced")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	fake := clock.Fake(epoch)
	limiter := NewRateLimiter(fake, time.Minute, 2, 5*time.Minute)

	limiter.Allow("sess-1")
	limiter.Allow("sess-1")

	// A new window restores the budget before any block started.
	fake.Advance(time.Minute)
	if !limiter.Allow("sess-1") {
		t.Fatal("request rejected after window rolled over")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	fake := clock.Fake(epoch)
	limiter := NewRateLimiter(fake, time.Minute, 1, 5*time.Minute)

	if !limiter.Allow("sess-1") {
		t.Fatal("first key rejected")
	}
	if limiter.Allow("sess-1") {
		t.Fatal("first key over budget admitted")
	}
	if !limiter.Allow("sess-2") {
		t.Fatal("second key affected by first key's block")
	}
}

func TestRateLimiterSweepEvictsIdleKeys(t *testing.T) {
	fake := clock.Fake(epoch)
	limiter := NewRateLimiter(fake, time.Minute, 100, 5*time.Minute)

	for i := range 10 {
		limiter.Allow(fmt.Sprintf("sess-%d", i))
	}
	if len(limiter.windows) != 10 {
		t.Fatalf("tracked windows = %d, want 10", len(limiter.windows))
	}

	fake.Advance(31 * time.Minute)
	limiter.sweepOnce()
	if len(limiter.windows) != 0 {
		t.Fatalf("windows after sweep = %d, want 0", len(limiter.windows))
	}
}

func TestRateLimiterSweepKeepsActiveBlocks(t *testing.T) {
	fake := clock.Fake(epoch)
	limiter := NewRateLimiter(fake, time.Minute, 1, time.Hour)

	limiter.Allow("sess-1")
	limiter.Allow("sess-1") // starts an hour-long block

	// Idle beyond eviction but still blocked: the key must survive so
	// the block keeps being enforced.
	fake.Advance(31 * time.Minute)
	limiter.sweepOnce()
	if limiter.Allow("sess-1") {
		t.Fatal("blocked key admitted after sweep")
	}
}
