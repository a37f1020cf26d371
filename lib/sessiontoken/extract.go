// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package sessiontoken

import (
	"net/http"
	"strings"
)

// FromRequest extracts the base64url token string from an HTTP
// request. Sources, in priority order:
//
//  1. Authorization: Bearer <token>
//  2. ?token=<token>
//  3. ?signingKey=<token>   (legacy client SDKs)
//
// Returns ErrMissingToken when no source is present. Extraction does
// not verify — callers pass the result to VerifyString.
func FromRequest(r *http.Request) (string, error) {
	if authorization := r.Header.Get("Authorization"); authorization != "" {
		if bearer, ok := strings.CutPrefix(authorization, "Bearer "); ok && bearer != "" {
			return bearer, nil
		}
	}

	query := r.URL.Query()
	if token := query.Get("token"); token != "" {
		return token, nil
	}
	if token := query.Get("signingKey"); token != "" {
		return token, nil
	}

	return "", ErrMissingToken
}

// PeekSessionID decodes the token payload without verifying the
// signature and returns its SessionID, or "" when the token cannot be
// decoded. The rate limiter uses this to key its windows before
// authentication runs; nothing security-relevant may depend on it.
func PeekSessionID(tokenString string) string {
	raw, err := decodeBase64(tokenString)
	if err != nil || len(raw) <= signatureSize {
		return ""
	}

	var token Token
	if err := unmarshalPayload(raw[:len(raw)-signatureSize], &token); err != nil {
		return ""
	}
	return token.SessionID
}
