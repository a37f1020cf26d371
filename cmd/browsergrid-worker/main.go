// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Browsergrid-worker is the worker runtime binary. It claims sessions
// from the control plane, runs one browser engine per session, and
// serves the protocol gateway that clients connect to.
package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/browsergrid/browsergrid/lib/config"
	"github.com/browsergrid/browsergrid/lib/controlclient"
	"github.com/browsergrid/browsergrid/lib/engine"
	"github.com/browsergrid/browsergrid/lib/process"
	"github.com/browsergrid/browsergrid/lib/worker"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		workerID    string
		controlURL  string
		maxSessions int
		verbose     bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the config file (default: $BROWSERGRID_CONFIG)")
	pflag.StringVar(&workerID, "worker-id", "", "worker identity (default: generated)")
	pflag.StringVar(&controlURL, "control-url", "", "control-plane base URL override")
	pflag.IntVar(&maxSessions, "max-sessions", 0, "hosted-session cap override")
	pflag.BoolVar(&verbose, "verbose", false, "enable debug logging")
	pflag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if controlURL != "" {
		cfg.Worker.ControlURL = controlURL
	}
	if maxSessions > 0 {
		cfg.Worker.MaxSessions = maxSessions
	}
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.NewString()[:8])
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publicKey, err := loadPublicKey(cfg.Worker.PublicKeyFile, logger)
	if err != nil {
		return err
	}

	control, err := controlclient.New(cfg.Worker.ControlURL, nil)
	if err != nil {
		return err
	}

	starter := engine.NewChromium(engine.ChromiumConfig{
		Bin:           cfg.Engine.Bin,
		ProfileRoot:   cfg.Engine.ProfileRoot,
		DefaultWidth:  cfg.Engine.DefaultWidth,
		DefaultHeight: cfg.Engine.DefaultHeight,
		Logger:        logger,
	})

	runtime, err := worker.New(worker.Config{
		WorkerID:       workerID,
		MaxSessions:    cfg.Worker.MaxSessions,
		GatewayListen:  cfg.Worker.GatewayListen,
		GatewayURL:     cfg.Worker.GatewayURL,
		TokenPublicKey: publicKey,
		IdleThreshold:  cfg.Worker.IdleThreshold,
		Logger:         logger,
	}, control, starter)
	if err != nil {
		return err
	}

	return runtime.Run(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// loadPublicKey reads the raw Ed25519 public key that verifies connect
// tokens. A worker without one rejects every relay request, so it is
// required.
func loadPublicKey(path string, logger *slog.Logger) (ed25519.PublicKey, error) {
	if path == "" {
		return nil, fmt.Errorf("worker.public_key_file is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key %s: want %d bytes, got %d",
			path, ed25519.PublicKeySize, len(raw))
	}
	logger.Debug("loaded token public key", "path", path)
	return ed25519.PublicKey(raw), nil
}
