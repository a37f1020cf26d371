// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadWithoutEnvReturnsDefaults(t *testing.T) {
	t.Setenv("BROWSERGRID_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Control.Listen != ":8080" {
		t.Fatalf("control.listen = %q, want :8080", cfg.Control.Listen)
	}
	if cfg.Worker.MaxSessions != 20 {
		t.Fatalf("worker.max_sessions = %d, want 20", cfg.Worker.MaxSessions)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
control:
  listen: ":7000"
  database: ":memory:"
  sweep_interval: 10s
worker:
  max_sessions: 4
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Control.Listen != ":7000" {
		t.Fatalf("control.listen = %q, want :7000", cfg.Control.Listen)
	}
	if cfg.Control.Database != ":memory:" {
		t.Fatalf("control.database = %q, want :memory:", cfg.Control.Database)
	}
	if cfg.Control.SweepInterval != 10*time.Second {
		t.Fatalf("control.sweep_interval = %v, want 10s", cfg.Control.SweepInterval)
	}
	if cfg.Worker.MaxSessions != 4 {
		t.Fatalf("worker.max_sessions = %d, want 4", cfg.Worker.MaxSessions)
	}
	// Untouched fields keep their defaults.
	if cfg.Control.MaxWorkers != 10 {
		t.Fatalf("control.max_workers = %d, want default 10", cfg.Control.MaxWorkers)
	}
	if cfg.Engine.DefaultWidth != 1280 {
		t.Fatalf("engine.default_width = %d, want default 1280", cfg.Engine.DefaultWidth)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFile accepted a missing file")
	}
}

func TestLoadFileRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "control: [not a mapping")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted malformed YAML")
	}
}

func TestVariableExpansion(t *testing.T) {
	t.Setenv("HOME", "/home/grid")
	path := writeConfig(t, `
control:
  database: "${HOME}/control.db"
engine:
  profile_root: "${BROWSERGRID_PROFILES:-/var/cache/profiles}"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Control.Database != "/home/grid/control.db" {
		t.Fatalf("control.database = %q, HOME not expanded", cfg.Control.Database)
	}
	if cfg.Engine.ProfileRoot != "/var/cache/profiles" {
		t.Fatalf("engine.profile_root = %q, default fallback not applied", cfg.Engine.ProfileRoot)
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Control.Listen = ""
	cfg.Control.MaxWorkers = 0
	cfg.Worker.MaxSessions = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
}
