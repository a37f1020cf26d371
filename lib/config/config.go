// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Browsergrid
// components.
//
// Configuration is loaded from a single file specified by:
//   - BROWSERGRID_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file is
// the single source of truth; environment variables do not override
// values. The only expansion performed is ${HOME}-style path
// variables for portability.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration shared by the control plane and
// worker binaries; each reads its own section.
type Config struct {
	// Control configures the control-plane server.
	Control ControlConfig `yaml:"control"`

	// Worker configures the worker runtime.
	Worker WorkerConfig `yaml:"worker"`

	// Engine configures browser engine startup on workers.
	Engine EngineConfig `yaml:"engine"`
}

// ControlConfig configures the control-plane server.
type ControlConfig struct {
	// Listen is the HTTP listen address.
	// Default: :8080
	Listen string `yaml:"listen"`

	// PublicURL is the externally reachable base URL advertised in
	// connect URLs when no gateway ingress is configured.
	PublicURL string `yaml:"public_url"`

	// GatewayIngress, when set, is the ingress base URL that fronts
	// worker gateways; connect URLs are formed against it.
	GatewayIngress string `yaml:"gateway_ingress"`

	// Database is the SQLite database path. The special value
	// ":memory:" selects the in-memory store.
	// Default: ${BROWSERGRID_ROOT}/control.db
	Database string `yaml:"database"`

	// SigningKeyFile holds the Ed25519 private key seed (raw 32
	// bytes) used to mint connect tokens. Empty generates an
	// ephemeral keypair at startup, which invalidates outstanding
	// tokens on restart.
	SigningKeyFile string `yaml:"signing_key_file"`

	// MaxSessionsPerWorker and MaxWorkers bound the fleet.
	// Defaults: 20 and 10.
	MaxSessionsPerWorker int `yaml:"max_sessions_per_worker"`
	MaxWorkers           int `yaml:"max_workers"`

	// WorkerCommand is the binary launched per worker by the local
	// compute launcher.
	// Default: browsergrid-worker (found in PATH)
	WorkerCommand string `yaml:"worker_command"`

	// SweepInterval is the store sweeper cadence.
	// Default: 30s
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// WorkerConfig configures the worker runtime.
type WorkerConfig struct {
	// ControlURL is the control plane's base URL.
	// Default: http://127.0.0.1:8080
	ControlURL string `yaml:"control_url"`

	// GatewayListen is the gateway's listen address.
	// Default: :9080
	GatewayListen string `yaml:"gateway_listen"`

	// GatewayURL is the externally reachable gateway base URL
	// advertised in heartbeats for direct streaming. Empty disables
	// direct stream URLs for sessions on this worker.
	GatewayURL string `yaml:"gateway_url"`

	// PublicKeyFile holds the Ed25519 public key (raw 32 bytes) that
	// verifies connect tokens.
	PublicKeyFile string `yaml:"public_key_file"`

	// MaxSessions caps concurrently hosted sessions.
	// Default: 20
	MaxSessions int `yaml:"max_sessions"`

	// IdleThreshold is how long a session may sit without traffic
	// before the reaper ends it.
	// Default: 5m
	IdleThreshold time.Duration `yaml:"idle_threshold"`
}

// EngineConfig configures browser engine startup.
type EngineConfig struct {
	// Bin overrides the browser binary path. Empty lets the launcher
	// locate one.
	Bin string `yaml:"bin"`

	// ProfileRoot is the directory caching per-profile user data
	// across sessions. Empty disables profile reuse.
	// Default: ${BROWSERGRID_ROOT}/profiles
	ProfileRoot string `yaml:"profile_root"`

	// DefaultWidth and DefaultHeight apply when a session's settings
	// carry no dimensions. Defaults: 1280x800.
	DefaultWidth  int `yaml:"default_width"`
	DefaultHeight int `yaml:"default_height"`
}

// Default returns the default configuration. These defaults ensure
// all fields have sensible values for a single-machine deployment;
// production deployments load a config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "browsergrid")

	return &Config{
		Control: ControlConfig{
			Listen:               ":8080",
			PublicURL:            "http://127.0.0.1:8080",
			Database:             filepath.Join(defaultRoot, "control.db"),
			MaxSessionsPerWorker: 20,
			MaxWorkers:           10,
			WorkerCommand:        "browsergrid-worker",
			SweepInterval:        30 * time.Second,
		},
		Worker: WorkerConfig{
			ControlURL:    "http://127.0.0.1:8080",
			GatewayListen: ":9080",
			MaxSessions:   20,
			IdleThreshold: 5 * time.Minute,
		},
		Engine: EngineConfig{
			ProfileRoot:   filepath.Join(defaultRoot, "profiles"),
			DefaultWidth:  1280,
			DefaultHeight: 800,
		},
	}
}

// Load loads configuration from the BROWSERGRID_CONFIG environment
// variable. If the variable is unset, the defaults are returned, so a
// bare binary runs a local single-machine setup out of the box.
func Load() (*Config, error) {
	configPath := os.Getenv("BROWSERGRID_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// path-valued fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Control.Database = expandVars(c.Control.Database, vars)
	c.Control.SigningKeyFile = expandVars(c.Control.SigningKeyFile, vars)
	c.Worker.PublicKeyFile = expandVars(c.Worker.PublicKeyFile, vars)
	c.Engine.Bin = expandVars(c.Engine.Bin, vars)
	c.Engine.ProfileRoot = expandVars(c.Engine.ProfileRoot, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Control.Listen == "" {
		errs = append(errs, fmt.Errorf("control.listen is required"))
	}
	if c.Control.Database == "" {
		errs = append(errs, fmt.Errorf("control.database is required"))
	}
	if c.Control.MaxSessionsPerWorker <= 0 {
		errs = append(errs, fmt.Errorf("control.max_sessions_per_worker must be positive"))
	}
	if c.Control.MaxWorkers <= 0 {
		errs = append(errs, fmt.Errorf("control.max_workers must be positive"))
	}
	if c.Worker.ControlURL == "" {
		errs = append(errs, fmt.Errorf("worker.control_url is required"))
	}
	if c.Worker.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("worker.max_sessions must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
