// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/browsergrid/browsergrid/lib/clock"
)

// RateLimiter is a fixed-window counter keyed by session. A key that
// exceeds its window budget is blocked outright for a penalty period
// that outlasts the window, then starts fresh.
type RateLimiter struct {
	clock         clock.Clock
	windowSize    time.Duration
	maxRequests   int
	blockDuration time.Duration
	idleEviction  time.Duration

	mu      sync.RWMutex
	windows map[string]*rateWindow
}

type rateWindow struct {
	windowStart  time.Time
	requestCount int
	blockedUntil time.Time
	lastSeen     time.Time
}

// NewRateLimiter builds a limiter. Zero values select the defaults:
// 60 requests per 1m window, 5m block, 30m idle eviction.
func NewRateLimiter(clk clock.Clock, windowSize time.Duration, maxRequests int, blockDuration time.Duration) *RateLimiter {
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	if maxRequests <= 0 {
		maxRequests = 60
	}
	if blockDuration <= 0 {
		blockDuration = 5 * time.Minute
	}
	return &RateLimiter{
		clock:         clk,
		windowSize:    windowSize,
		maxRequests:   maxRequests,
		blockDuration: blockDuration,
		idleEviction:  30 * time.Minute,
		windows:       make(map[string]*rateWindow),
	}
}

// Allow admits or rejects one request for key. With a budget of N,
// requests 1..N in a window are admitted and request N+1 both rejects
// and starts the block.
func (l *RateLimiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	window, ok := l.windows[key]
	if !ok {
		window = &rateWindow{windowStart: now}
		l.windows[key] = window
	}
	window.lastSeen = now

	if !window.blockedUntil.IsZero() {
		if now.Before(window.blockedUntil) {
			return false
		}
		// Block served; start over.
		*window = rateWindow{windowStart: now, lastSeen: now}
	}

	if now.Sub(window.windowStart) >= l.windowSize {
		window.windowStart = now
		window.requestCount = 0
	}

	window.requestCount++
	if window.requestCount > l.maxRequests {
		window.blockedUntil = now.Add(l.blockDuration)
		return false
	}
	return true
}

// ActiveBlocks counts keys currently serving a block, for /metrics.
func (l *RateLimiter) ActiveBlocks() int {
	now := l.clock.Now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	blocked := 0
	for _, window := range l.windows {
		if !window.blockedUntil.IsZero() && now.Before(window.blockedUntil) {
			blocked++
		}
	}
	return blocked
}

// RunSweeper evicts idle keys on an interval so the window map does
// not grow with every session ever seen. Blocks until ctx is done.
func (l *RateLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweepOnce()
		}
	}
}

func (l *RateLimiter) sweepOnce() {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, window := range l.windows {
		if now.Sub(window.lastSeen) < l.idleEviction {
			continue
		}
		if !window.blockedUntil.IsZero() && now.Before(window.blockedUntil) {
			continue
		}
		delete(l.windows, key)
	}
}
