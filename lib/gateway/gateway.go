// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway is the per-worker protocol gateway: it authenticates
// connect tokens, rate-limits and circuit-breaks traffic, and relays
// WebSocket and HTTP requests to the local browser engines. /health
// and /metrics are served unauthenticated for infrastructure probes;
// everything else passes through the middleware chain.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"crypto/ed25519"

	"github.com/browsergrid/browsergrid/lib/clock"
	"github.com/browsergrid/browsergrid/lib/session"
)

// EngineEndpoints locates one session's browser engine on this worker.
type EngineEndpoints struct {
	// WebSocketURL is the engine's protocol endpoint, e.g.
	// ws://127.0.0.1:9222/devtools/browser/<id>.
	WebSocketURL string

	// HTTPBaseURL is the engine's HTTP root for JSON metadata paths,
	// e.g. http://127.0.0.1:9222.
	HTTPBaseURL string
}

// EngineResolver maps a session ID to its engine endpoints. The worker
// runtime's engine manager implements this; sessions not hosted on
// this worker resolve to false.
type EngineResolver interface {
	Resolve(sessionID string) (EngineEndpoints, bool)
}

// Config carries the gateway's dependencies and tuning.
type Config struct {
	// PublicKey verifies connect tokens minted by the control plane.
	PublicKey ed25519.PublicKey

	// Resolver locates session engines on this worker. Required.
	Resolver EngineResolver

	// OnFirstAttach, if set, is invoked when a session gains its first
	// live relay on this gateway. The worker uses it to report the
	// session connected upstream.
	OnFirstAttach func(sessionID string)

	// OnLastDetach, if set, is invoked when a session's last live
	// relay drops.
	OnLastDetach func(sessionID string)

	// HealthCheck, if set, is probed by /health; an error marks the
	// gateway degraded. Typically wired to the engine manager.
	HealthCheck func(ctx context.Context) error

	// Rate limiting. Zero values select 60 requests per minute with a
	// five-minute block.
	RateWindow    time.Duration
	RateLimit     int
	BlockDuration time.Duration

	// Circuit breaker. Zero values select 5 failures / 30s cooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Gateway is the protocol gateway server. Obtain its http.Handler via
// Handler and run the sweepers via Run.
type Gateway struct {
	config   Config
	clock    clock.Clock
	logger   *slog.Logger
	limiter  *RateLimiter
	breaker  *CircuitBreaker
	metrics  *Metrics
	registry *Registry
	mux      *http.ServeMux
}

// New builds a gateway from config.
func New(config Config) *Gateway {
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	g := &Gateway{
		config:   config,
		clock:    clk,
		logger:   logger,
		limiter:  NewRateLimiter(clk, config.RateWindow, config.RateLimit, config.BlockDuration),
		breaker:  NewCircuitBreaker(clk, config.BreakerThreshold, config.BreakerCooldown),
		metrics:  NewMetrics(clk),
		registry: NewRegistry(clk),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /metrics", g.handleMetrics)

	relay := g.chain(http.HandlerFunc(g.handleRelay))
	mux.Handle("/sessions/{session}", relay)
	mux.Handle("/sessions/{session}/{enginePath...}", relay)
	mux.Handle("/stream/{session}", g.chain(http.HandlerFunc(g.handleStream)))

	g.mux = mux
	return g
}

// Handler returns the gateway's HTTP handler for mounting in a server.
func (g *Gateway) Handler() http.Handler {
	return g.mux
}

// Run starts the background sweepers and blocks until ctx is done.
func (g *Gateway) Run(ctx context.Context) {
	g.limiter.RunSweeper(ctx, 5*time.Minute)
}

// Registry exposes the relay registry; the worker's idle reaper reads
// per-session activity from it.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// chain assembles the middleware pipeline for relay endpoints. Order
// matters: logging, metrics, rate limiting, circuit breaking, then
// authentication, with the relay handler doing protocol routing last.
func (g *Gateway) chain(handler http.Handler) http.Handler {
	handler = g.withAuth(handler)
	handler = g.withBreaker(handler)
	handler = g.withRateLimit(handler)
	handler = g.withMetrics(handler)
	handler = g.withLogging(handler)
	return handler
}

func (g *Gateway) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := g.clock.Now()
		next.ServeHTTP(w, r)
		g.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"session", r.PathValue("session"),
			"remote", remoteIP(r),
			"duration", g.clock.Now().Sub(start),
		)
	})
}

func (g *Gateway) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.metrics.RecordRequest()
		next.ServeHTTP(w, r)
	})
}

// withRateLimit keys windows by the token's unverified session claim.
// Authentication has not run yet at this point in the chain, so the
// key is best-effort; unparseable tokens share one per-IP bucket.
func (g *Gateway) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := g.rateKey(r)
		if !g.limiter.Allow(key) {
			g.metrics.RecordError(ErrorKindRateLimited)
			g.writeError(w, session.ErrRateLimited, "rate limit exceeded for session")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) withBreaker(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.breaker.Rejecting() {
			g.metrics.RecordError(ErrorKindBreakerOpen)
			g.writeError(w, session.ErrCircuitOpen, "engine circuit open; retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleRelay routes an authenticated request by protocol: WebSocket
// upgrades go to the bidirectional relay, everything else to the HTTP
// relay against the engine's JSON surface.
func (g *Gateway) handleRelay(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())
	endpoints, ok := g.config.Resolver.Resolve(token.SessionID)
	if !ok {
		g.metrics.RecordError(ErrorKindNotFound)
		g.writeError(w, session.ErrSessionNotFound, "session is not hosted on this worker")
		return
	}

	if isWebSocketUpgrade(r) {
		g.relayWebSocket(w, r, token, endpoints)
		return
	}
	g.relayHTTP(w, r, token, endpoints)
}

// handleStream serves the live-view stream: a WebSocket relay against
// the engine's page target rather than the browser target.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())
	endpoints, ok := g.config.Resolver.Resolve(token.SessionID)
	if !ok {
		g.metrics.RecordError(ErrorKindNotFound)
		g.writeError(w, session.ErrSessionNotFound, "session is not hosted on this worker")
		return
	}
	if !isWebSocketUpgrade(r) {
		g.metrics.RecordError(ErrorKindBadRequest)
		g.writeError(w, session.ErrMalformedRequest, "stream endpoint requires a WebSocket upgrade")
		return
	}
	g.relayWebSocket(w, r, token, endpoints)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if g.config.HealthCheck != nil {
		if err := g.config.HealthCheck(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
			g.logger.Warn("health check failed", "error", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := g.metrics.Snapshot()
	snapshot.BreakerState = g.breaker.State()
	snapshot.ActiveBlocks = g.limiter.ActiveBlocks()
	snapshot.ActiveRelays = g.registry.Count()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}

// writeError emits the structured error body with the taxonomy's HTTP
// status for err.
func (g *Gateway) writeError(w http.ResponseWriter, err error, message string) {
	writeErrorBody(w, err, message)
}

func writeErrorBody(w http.ResponseWriter, err error, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(session.HTTPStatus(err))
	json.NewEncoder(w).Encode(session.ErrorBody{
		Error:   session.ErrorCode(err),
		Message: message,
	})
}

func isWebSocketUpgrade(r *http.Request) bool {
	return headerListContains(r.Header, "Connection", "upgrade") &&
		headerListContains(r.Header, "Upgrade", "websocket")
}

// headerListContains reports whether any comma-separated element of
// the named header equals token case-insensitively.
func headerListContains(header http.Header, name, token string) bool {
	for _, value := range header.Values(name) {
		for _, part := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
