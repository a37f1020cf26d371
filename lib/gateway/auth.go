// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"net/http"

	"github.com/browsergrid/browsergrid/lib/session"
	"github.com/browsergrid/browsergrid/lib/sessiontoken"
)

type contextKey struct{}

// tokenFromContext returns the verified token claims attached by the
// auth middleware. Only reachable on handlers behind the chain, so a
// nil return indicates a wiring bug, not a client error.
func tokenFromContext(ctx context.Context) *sessiontoken.Token {
	token, _ := ctx.Value(contextKey{}).(*sessiontoken.Token)
	return token
}

// withAuth extracts and verifies the connect token, checks that it is
// bound to the session named in the path, and attaches the claims to
// the request context. Failures reply 401 with no fallback.
func (g *Gateway) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := sessiontoken.FromRequest(r)
		if err != nil {
			g.rejectAuth(w, r, "missing connect token")
			return
		}

		token, err := sessiontoken.VerifyForSession(
			g.config.PublicKey, tokenString, r.PathValue("session"), g.clock.Now())
		if err != nil {
			g.rejectAuth(w, r, "connect token rejected")
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gateway) rejectAuth(w http.ResponseWriter, r *http.Request, message string) {
	g.metrics.RecordError(ErrorKindAuth)
	g.logger.Warn("authentication failed",
		"path", r.URL.Path,
		"remote", remoteIP(r),
	)
	g.writeError(w, session.ErrAuthentication, message)
}

// rateKey derives the limiter key for a request. The limiter runs
// before authentication, so the session claim is read without
// verification; requests with no decodable token fall back to a
// per-address bucket.
func (g *Gateway) rateKey(r *http.Request) string {
	if tokenString, err := sessiontoken.FromRequest(r); err == nil {
		if sessionID := sessiontoken.PeekSessionID(tokenString); sessionID != "" {
			return "session:" + sessionID
		}
	}
	return "addr:" + remoteIP(r)
}
