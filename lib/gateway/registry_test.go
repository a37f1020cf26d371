// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"testing"
	"time"

	"github.com/browsergrid/browsergrid/lib/clock"
)

func TestRegistryFirstAndLast(t *testing.T) {
	r := NewRegistry(clock.Fake(epoch))

	first1, isFirst := r.Add("sess-1", "10.0.0.1")
	if !isFirst {
		t.Fatal("first relay not reported as first")
	}
	second, isFirst := r.Add("sess-1", "10.0.0.2")
	if isFirst {
		t.Fatal("second relay reported as first")
	}
	if r.SessionCount("sess-1") != 2 {
		t.Fatalf("SessionCount = %d, want 2", r.SessionCount("sess-1"))
	}

	if _, last := r.Remove(first1); last {
		t.Fatal("removal with a relay remaining reported as last")
	}
	sessionID, last := r.Remove(second)
	if !last {
		t.Fatal("final removal not reported as last")
	}
	if sessionID != "sess-1" {
		t.Fatalf("Remove returned session %q, want sess-1", sessionID)
	}
	if r.Count() != 0 {
		t.Fatalf("Count = %d after removals, want 0", r.Count())
	}
}

func TestRegistryRemoveUnknown(t *testing.T) {
	r := NewRegistry(clock.Fake(epoch))
	if sessionID, last := r.Remove("nope"); sessionID != "" || last {
		t.Fatalf("Remove(unknown) = (%q, %v), want empty and false", sessionID, last)
	}
}

func TestRegistryTouchFeedsLastActivity(t *testing.T) {
	fake := clock.Fake(epoch)
	r := NewRegistry(fake)

	connectionID, _ := r.Add("sess-1", "10.0.0.1")
	r.Add("sess-1", "10.0.0.2")

	fake.Advance(time.Minute)
	r.Touch(connectionID, 100, 50)

	lastActivity, live := r.LastActivity("sess-1")
	if !live {
		t.Fatal("LastActivity reported no live relays")
	}
	if want := epoch.Add(time.Minute); !lastActivity.Equal(want) {
		t.Fatalf("lastActivity = %v, want %v", lastActivity, want)
	}

	if _, live := r.LastActivity("sess-2"); live {
		t.Fatal("LastActivity reported a live relay for an unknown session")
	}
}
