// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling
// time.Now, time.After, time.NewTicker, or time.Sleep directly. Real()
// provides standard library behavior; Fake() provides a deterministic
// clock for tests that advances only when Advance is called.
//
// When a goroutine registers a ticker or sleep on a FakeClock, use
// WaitForTimers to block until the registration has happened before
// calling Advance. This removes the race between timer registration
// and time advancement that plagues tests built on real sleeps.
package clock
