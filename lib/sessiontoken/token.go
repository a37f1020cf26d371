// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessiontoken mints and verifies the signed connect tokens
// that bind a client to one session. A token is a deterministic
// CBOR-encoded payload followed by a 64-byte Ed25519 signature,
// transported base64url-encoded in an Authorization bearer header or a
// token query parameter.
package sessiontoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/browsergrid/browsergrid/lib/codec"
)

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize // 64 bytes

// Token is the CBOR-encoded payload of a connect token. Integer keys
// keep the wire form compact.
type Token struct {
	// SessionID is the session this token grants access to. The
	// gateway and the connect handshake accept the token only for
	// this session.
	SessionID string `cbor:"1,keyasint"`

	// ProjectID is the owning project, carried for logging and
	// per-project accounting at the gateway.
	ProjectID string `cbor:"2,keyasint,omitempty"`

	// ClientIP optionally pins the token to the address it was issued
	// for. Informational: the gateway records it but does not reject
	// mismatches (clients legitimately roam across NATs).
	ClientIP string `cbor:"3,keyasint,omitempty"`

	// IssuedAt is a Unix timestamp (seconds) of when the control
	// plane minted this token.
	IssuedAt int64 `cbor:"4,keyasint"`

	// ExpiresAt is a Unix timestamp (seconds) after which the token
	// is no longer valid.
	ExpiresAt int64 `cbor:"5,keyasint"`
}

// Errors returned by Verify and related functions.
var (
	ErrTokenTooShort    = errors.New("sessiontoken: token too short for signature")
	ErrInvalidSignature = errors.New("sessiontoken: invalid Ed25519 signature")
	ErrTokenExpired     = errors.New("sessiontoken: token has expired")
	ErrSessionMismatch  = errors.New("sessiontoken: token is for a different session")
	ErrMissingToken     = errors.New("sessiontoken: no token in request")
)

// GenerateKeypair returns a fresh Ed25519 keypair. The control plane
// holds the private key; every gateway gets the public key.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("sessiontoken: generating keypair: %w", err)
	}
	return public, private, nil
}

// Mint signs a Token and returns the raw wire bytes: CBOR payload
// followed by the 64-byte signature.
func Mint(privateKey ed25519.PrivateKey, token *Token) ([]byte, error) {
	payload, err := codec.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("sessiontoken: encoding payload: %w", err)
	}

	signature := ed25519.Sign(privateKey, payload)

	result := make([]byte, len(payload)+signatureSize)
	copy(result, payload)
	copy(result[len(payload):], signature)
	return result, nil
}

// MintString is Mint with base64url encoding applied, the form carried
// in URLs and headers.
func MintString(privateKey ed25519.PrivateKey, token *Token) (string, error) {
	raw, err := Mint(privateKey, token)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Verify splits the raw token bytes, verifies the signature, decodes
// the payload, and checks expiry against the wall clock.
func Verify(publicKey ed25519.PublicKey, tokenBytes []byte) (*Token, error) {
	return VerifyAt(publicKey, tokenBytes, time.Now())
}

// VerifyAt is Verify with an explicit time for expiry checks, for
// deterministic testing and clock injection.
func VerifyAt(publicKey ed25519.PublicKey, tokenBytes []byte, now time.Time) (*Token, error) {
	if len(tokenBytes) <= signatureSize {
		return nil, ErrTokenTooShort
	}

	splitPoint := len(tokenBytes) - signatureSize
	payload := tokenBytes[:splitPoint]
	signature := tokenBytes[splitPoint:]

	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var token Token
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("sessiontoken: decoding payload: %w", err)
	}

	if now.Unix() >= token.ExpiresAt {
		return nil, ErrTokenExpired
	}
	return &token, nil
}

// VerifyString decodes a base64url token string and verifies it.
func VerifyString(publicKey ed25519.PublicKey, tokenString string, now time.Time) (*Token, error) {
	raw, err := decodeBase64(tokenString)
	if err != nil {
		return nil, fmt.Errorf("sessiontoken: decoding base64: %w", err)
	}
	return VerifyAt(publicKey, raw, now)
}

// decodeBase64 accepts the canonical unpadded URL alphabet and, for
// older client SDKs, the padded form.
func decodeBase64(tokenString string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(tokenString)
	if err == nil {
		return raw, nil
	}
	return base64.URLEncoding.DecodeString(tokenString)
}

// unmarshalPayload decodes the CBOR payload portion of a token.
func unmarshalPayload(payload []byte, token *Token) error {
	return codec.Unmarshal(payload, token)
}

// VerifyForSession combines VerifyString with a session binding check:
// a valid token for a different session is rejected.
func VerifyForSession(publicKey ed25519.PublicKey, tokenString, sessionID string, now time.Time) (*Token, error) {
	token, err := VerifyString(publicKey, tokenString, now)
	if err != nil {
		return nil, err
	}
	if sessionID != "" && token.SessionID != sessionID {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrSessionMismatch, token.SessionID, sessionID)
	}
	return token, nil
}
