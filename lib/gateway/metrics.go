// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"sync"
	"time"

	"github.com/browsergrid/browsergrid/lib/clock"
)

// Metrics aggregates gateway-wide counters plus a per-error-kind
// table. All methods are safe for concurrent use.
type Metrics struct {
	clock clock.Clock

	mu              sync.RWMutex
	requests        int64
	relayFailures   int64
	authFailures    int64
	rateLimited     int64
	breakerRejected int64
	bytesToEngine   int64
	bytesToClient   int64
	wsConnections   int64
	errorsByKind    map[string]*errorStat
}

type errorStat struct {
	Count    int64     `json:"count"`
	LastSeen time.Time `json:"lastSeen"`
}

// NewMetrics returns an empty metrics registry.
func NewMetrics(clk clock.Clock) *Metrics {
	return &Metrics{
		clock:        clk,
		errorsByKind: make(map[string]*errorStat),
	}
}

func (m *Metrics) RecordRequest() {
	m.mu.Lock()
	m.requests++
	m.mu.Unlock()
}

func (m *Metrics) RecordWebSocket() {
	m.mu.Lock()
	m.wsConnections++
	m.mu.Unlock()
}

func (m *Metrics) RecordBytes(toEngine, toClient int64) {
	m.mu.Lock()
	m.bytesToEngine += toEngine
	m.bytesToClient += toClient
	m.mu.Unlock()
}

// RecordError bumps the per-kind error table and the matching
// aggregate counter. kind is a short stable label, not an error
// message, so the table stays bounded.
func (m *Metrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stat, ok := m.errorsByKind[kind]
	if !ok {
		stat = &errorStat{}
		m.errorsByKind[kind] = stat
	}
	stat.Count++
	stat.LastSeen = m.clock.Now()

	switch kind {
	case ErrorKindAuth:
		m.authFailures++
	case ErrorKindRateLimited:
		m.rateLimited++
	case ErrorKindBreakerOpen:
		m.breakerRejected++
	case ErrorKindEngine:
		m.relayFailures++
	}
}

// Stable error-kind labels for RecordError and the /metrics table.
const (
	ErrorKindAuth        = "authentication"
	ErrorKindRateLimited = "rate_limited"
	ErrorKindBreakerOpen = "circuit_open"
	ErrorKindEngine      = "engine_unreachable"
	ErrorKindBadRequest  = "malformed_request"
	ErrorKindNotFound    = "session_not_found"
)

// Snapshot is the /metrics response body.
type Snapshot struct {
	Requests        int64                `json:"requests"`
	WSConnections   int64                `json:"wsConnections"`
	RelayFailures   int64                `json:"relayFailures"`
	AuthFailures    int64                `json:"authFailures"`
	RateLimited     int64                `json:"rateLimited"`
	BreakerRejected int64                `json:"breakerRejected"`
	BytesToEngine   int64                `json:"bytesToEngine"`
	BytesToClient   int64                `json:"bytesToClient"`
	Errors          map[string]errorStat `json:"errors"`
	BreakerState    BreakerState         `json:"breakerState"`
	ActiveBlocks    int                  `json:"activeRateBlocks"`
	ActiveRelays    int                  `json:"activeRelays"`
}

// Snapshot copies the counters out under the read lock. The breaker,
// limiter, and registry figures are filled in by the caller.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errors := make(map[string]errorStat, len(m.errorsByKind))
	for kind, stat := range m.errorsByKind {
		errors[kind] = *stat
	}
	return Snapshot{
		Requests:        m.requests,
		WSConnections:   m.wsConnections,
		RelayFailures:   m.relayFailures,
		AuthFailures:    m.authFailures,
		RateLimited:     m.rateLimited,
		BreakerRejected: m.breakerRejected,
		BytesToEngine:   m.bytesToEngine,
		BytesToClient:   m.bytesToClient,
		Errors:          errors,
	}
}
