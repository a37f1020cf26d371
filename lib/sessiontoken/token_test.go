// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package sessiontoken

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMintVerifyRoundTrip(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	minted := &Token{
		SessionID: "sess-1",
		ProjectID: "proj-1",
		ClientIP:  "203.0.113.9",
		IssuedAt:  epoch.Unix(),
		ExpiresAt: epoch.Add(time.Hour).Unix(),
	}
	encoded, err := MintString(private, minted)
	if err != nil {
		t.Fatalf("MintString: %v", err)
	}

	verified, err := VerifyString(public, encoded, epoch.Add(time.Minute))
	if err != nil {
		t.Fatalf("VerifyString: %v", err)
	}
	if *verified != *minted {
		t.Fatalf("verified token = %+v, want %+v", verified, minted)
	}
}

func TestVerifyExpiry(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	encoded, err := MintString(private, &Token{
		SessionID: "sess-1",
		IssuedAt:  epoch.Unix(),
		ExpiresAt: epoch.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("MintString: %v", err)
	}

	if _, err := VerifyString(public, encoded, epoch.Add(59*time.Minute)); err != nil {
		t.Fatalf("token rejected before expiry: %v", err)
	}
	if _, err := VerifyString(public, encoded, epoch.Add(time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("token at expiry: got %v, want ErrTokenExpired", err)
	}
	if _, err := VerifyString(public, encoded, epoch.Add(2*time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("token after expiry: got %v, want ErrTokenExpired", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	_, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	otherPublic, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	encoded, err := MintString(private, &Token{
		SessionID: "sess-1",
		IssuedAt:  epoch.Unix(),
		ExpiresAt: epoch.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("MintString: %v", err)
	}
	if _, err := VerifyString(otherPublic, encoded, epoch); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("wrong key: got %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	raw, err := Mint(private, &Token{
		SessionID: "sess-1",
		IssuedAt:  epoch.Unix(),
		ExpiresAt: epoch.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	raw[0] ^= 0xff
	if _, err := VerifyAt(public, raw, epoch); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("tampered payload: got %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyTooShort(t *testing.T) {
	public, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if _, err := VerifyAt(public, make([]byte, 64), epoch); !errors.Is(err, ErrTokenTooShort) {
		t.Fatalf("short token: got %v, want ErrTokenTooShort", err)
	}
}

func TestVerifyForSession(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	encoded, err := MintString(private, &Token{
		SessionID: "sess-1",
		IssuedAt:  epoch.Unix(),
		ExpiresAt: epoch.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("MintString: %v", err)
	}

	if _, err := VerifyForSession(public, encoded, "sess-1", epoch); err != nil {
		t.Fatalf("matching session rejected: %v", err)
	}
	if _, err := VerifyForSession(public, encoded, "sess-2", epoch); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("mismatched session: got %v, want ErrSessionMismatch", err)
	}
	// Empty expected session skips the binding check.
	if _, err := VerifyForSession(public, encoded, "", epoch); err != nil {
		t.Fatalf("unbound verify rejected: %v", err)
	}
}

func TestFromRequestSources(t *testing.T) {
	r := httptest.NewRequest("GET", "/sessions/s1", nil)
	if _, err := FromRequest(r); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("empty request: got %v, want ErrMissingToken", err)
	}

	r = httptest.NewRequest("GET", "/sessions/s1?signingKey=legacy", nil)
	if got, err := FromRequest(r); err != nil || got != "legacy" {
		t.Fatalf("signingKey param: got %q, %v", got, err)
	}

	r = httptest.NewRequest("GET", "/sessions/s1?token=fromquery&signingKey=legacy", nil)
	if got, err := FromRequest(r); err != nil || got != "fromquery" {
		t.Fatalf("token param: got %q, %v", got, err)
	}

	// Header wins over query parameters.
	r.Header.Set("Authorization", "Bearer fromheader")
	if got, err := FromRequest(r); err != nil || got != "fromheader" {
		t.Fatalf("bearer header: got %q, %v", got, err)
	}

	r = httptest.NewRequest("GET", "/sessions/s1", nil)
	r.Header.Set("Authorization", "Basic dXNlcg==")
	if _, err := FromRequest(r); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("non-bearer auth: got %v, want ErrMissingToken", err)
	}
}

func TestPeekSessionID(t *testing.T) {
	_, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	encoded, err := MintString(private, &Token{
		SessionID: "sess-42",
		IssuedAt:  epoch.Unix(),
		ExpiresAt: epoch.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("MintString: %v", err)
	}

	if got := PeekSessionID(encoded); got != "sess-42" {
		t.Fatalf("PeekSessionID = %q, want sess-42", got)
	}
	if got := PeekSessionID("not-base64!!!"); got != "" {
		t.Fatalf("PeekSessionID(garbage) = %q, want empty", got)
	}
	if got := PeekSessionID(""); got != "" {
		t.Fatalf("PeekSessionID(empty) = %q, want empty", got)
	}
}
