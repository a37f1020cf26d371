// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package controlclient is the typed HTTP client for the control
// plane's session API, used by worker runtimes and tooling.
package controlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/browsergrid/browsergrid/lib/session"
)

// Client talks to one control-plane server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client for the control plane at baseURL. httpClient may
// be nil for a default with a 30s timeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("controlclient: invalid base url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// CreateSession requests a new session.
func (c *Client) CreateSession(ctx context.Context, request session.CreateRequest) (*session.CreateResponse, error) {
	var response session.CreateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetSession fetches a session's detail.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*session.Detail, error) {
	var detail session.Detail
	path := "/v1/sessions/" + url.PathEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// EndSession ends a session. Mirrors the server's idempotency: ending
// an already-ended session returns ErrSessionNotFound.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/end"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// Claim asks the control plane for up to maxSessions-currentSessions
// pending sessions.
func (c *Client) Claim(ctx context.Context, request session.ClaimRequest) (*session.ClaimResponse, error) {
	var response session.ClaimResponse
	if err := c.do(ctx, http.MethodPost, "/internal/session-claim", request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Release returns a claimed session whose engine launch failed.
func (c *Client) Release(ctx context.Context, request session.ReleaseRequest) error {
	return c.do(ctx, http.MethodPost, "/internal/session-release", request, nil)
}

// Heartbeat refreshes the worker's liveness record.
func (c *Client) Heartbeat(ctx context.Context, workerID string, request session.HeartbeatRequest) error {
	path := "/internal/workers/" + url.PathEscape(workerID) + "/heartbeat"
	return c.do(ctx, http.MethodPost, path, request, nil)
}

// MarkConnected reports a session's first gateway attach.
func (c *Client) MarkConnected(ctx context.Context, sessionID string) error {
	path := "/internal/sessions/" + url.PathEscape(sessionID) + "/connected"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// do runs one request/response cycle. Error replies are decoded into
// the taxonomy so callers can use errors.Is against the session
// sentinels.
func (c *Client) do(ctx context.Context, method, path string, requestBody, responseBody any) error {
	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("controlclient: encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("controlclient: building request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("controlclient: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		return decodeError(response)
	}
	if responseBody == nil || response.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(responseBody); err != nil {
		return fmt.Errorf("controlclient: decoding response: %w", err)
	}
	return nil
}

// decodeError maps a structured error reply back onto the session
// sentinels; undecodable bodies degrade to a status-only error.
func decodeError(response *http.Response) error {
	var body session.ErrorBody
	if err := json.NewDecoder(response.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("controlclient: server returned %d", response.StatusCode)
	}

	sentinel := sentinelForCode(body.Error)
	if sentinel == nil {
		return fmt.Errorf("controlclient: %s: %s", body.Error, body.Message)
	}
	return fmt.Errorf("%w: %s", sentinel, body.Message)
}

func sentinelForCode(code string) error {
	switch code {
	case "malformed_request":
		return session.ErrMalformedRequest
	case "authentication_failed":
		return session.ErrAuthentication
	case "session_not_found":
		return session.ErrSessionNotFound
	case "rate_limit_exceeded":
		return session.ErrRateLimited
	case "circuit_open":
		return session.ErrCircuitOpen
	case "capacity_exhausted":
		return session.ErrCapacityExhausted
	case "engine_unreachable":
		return session.ErrEngineUnreachable
	default:
		return nil
	}
}
