// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"testing"
)

func TestParseSettings(t *testing.T) {
	settings := parseSettings(json.RawMessage(`{
		"headless": false,
		"width": 1920,
		"height": 1080,
		"profile": "crawler",
		"args": ["--disable-gpu"],
		"fingerprint": {"os": "linux"}
	}`))

	if settings.Headless == nil || *settings.Headless {
		t.Fatalf("headless = %v, want false", settings.Headless)
	}
	if settings.Width != 1920 || settings.Height != 1080 {
		t.Fatalf("dimensions = %dx%d, want 1920x1080", settings.Width, settings.Height)
	}
	if settings.Profile != "crawler" {
		t.Fatalf("profile = %q, want crawler", settings.Profile)
	}
	if len(settings.Args) != 1 || settings.Args[0] != "--disable-gpu" {
		t.Fatalf("args = %v", settings.Args)
	}
}

func TestParseSettingsEmpty(t *testing.T) {
	settings := parseSettings(nil)
	if settings.Headless != nil || settings.Width != 0 || settings.Profile != "" {
		t.Fatalf("zero settings expected, got %+v", settings)
	}
}

func TestParseSettingsMalformed(t *testing.T) {
	// Malformed documents degrade to defaults; the launch must not fail
	// over a settings typo because the session is already committed.
	settings := parseSettings(json.RawMessage(`{"width": "wide"`))
	if settings.Width != 0 {
		t.Fatalf("width = %d from malformed settings, want 0", settings.Width)
	}
}
