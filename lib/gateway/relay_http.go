// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/browsergrid/browsergrid/lib/session"
	"github.com/browsergrid/browsergrid/lib/sessiontoken"
)

// gatewayHeaderPrefix marks headers owned by the gateway itself; they
// never cross the trust boundary in either direction.
const gatewayHeaderPrefix = "X-Browsergrid-"

// hopByHopHeaders are connection-scoped per RFC 9110 §7.6.1 and must
// not be forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

var relayHTTPClient = &http.Client{Timeout: 30 * time.Second}

// relayHTTP forwards a plain HTTP request to the engine's JSON surface
// and copies the response back verbatim. Engine connection errors
// count against the circuit breaker.
func (g *Gateway) relayHTTP(w http.ResponseWriter, r *http.Request, token *sessiontoken.Token, endpoints EngineEndpoints) {
	if !g.breaker.Allow() {
		g.metrics.RecordError(ErrorKindBreakerOpen)
		g.writeError(w, session.ErrCircuitOpen, "engine circuit open; retry later")
		return
	}

	upstream, err := http.NewRequestWithContext(
		r.Context(), r.Method, g.engineHTTPURL(r, endpoints), r.Body)
	if err != nil {
		g.metrics.RecordError(ErrorKindBadRequest)
		g.writeError(w, session.ErrMalformedRequest, "request cannot be forwarded")
		return
	}
	copyRequestHeaders(upstream.Header, r.Header)

	response, err := relayHTTPClient.Do(upstream)
	if err != nil {
		g.breaker.Failure()
		g.metrics.RecordError(ErrorKindEngine)
		g.logger.Warn("engine request failed",
			"session", token.SessionID,
			"path", r.URL.Path,
			"error", err,
		)
		g.writeError(w, session.ErrEngineUnreachable, "browser engine is unreachable")
		return
	}
	defer response.Body.Close()
	g.breaker.Success()

	copyResponseHeaders(w.Header(), response.Header)
	w.WriteHeader(response.StatusCode)
	written, err := io.Copy(w, response.Body)
	if err != nil {
		g.logger.Warn("response copy interrupted",
			"session", token.SessionID, "error", err)
	}
	g.metrics.RecordBytes(r.ContentLength, written)
}

// engineHTTPURL maps the inbound path onto the engine's HTTP surface,
// dropping the credential query parameters.
func (g *Gateway) engineHTTPURL(r *http.Request, endpoints EngineEndpoints) string {
	target := endpoints.HTTPBaseURL + "/" + r.PathValue("enginePath")

	query := r.URL.Query()
	query.Del("token")
	query.Del("signingKey")
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}

// copyRequestHeaders forwards client headers minus credentials,
// gateway-owned headers, and hop-by-hop headers.
func copyRequestHeaders(dst, src http.Header) {
	for name, values := range src {
		if name == "Authorization" || strings.HasPrefix(name, gatewayHeaderPrefix) {
			continue
		}
		if isHopByHop(name) {
			continue
		}
		dst[name] = values
	}
}

// copyResponseHeaders forwards engine response headers minus
// hop-by-hop headers.
func copyResponseHeaders(dst, src http.Header) {
	for name, values := range src {
		if isHopByHop(name) {
			continue
		}
		dst[name] = values
	}
}

func isHopByHop(name string) bool {
	for _, hop := range hopByHopHeaders {
		if strings.EqualFold(name, hop) {
			return true
		}
	}
	return false
}
