// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Browsergrid-control is the control-plane server. It owns the session
// store, serves the public session API and the worker-facing internal
// API, runs the TTL sweeper, and launches workers when the capacity
// policy calls for them.
package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/browsergrid/browsergrid/lib/clock"
	"github.com/browsergrid/browsergrid/lib/compute"
	"github.com/browsergrid/browsergrid/lib/config"
	"github.com/browsergrid/browsergrid/lib/httpapi"
	"github.com/browsergrid/browsergrid/lib/orchestrator"
	"github.com/browsergrid/browsergrid/lib/process"
	"github.com/browsergrid/browsergrid/lib/sessiontoken"
	"github.com/browsergrid/browsergrid/lib/store"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath string
		listen     string
		verbose    bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the config file (default: $BROWSERGRID_CONFIG)")
	pflag.StringVar(&listen, "listen", "", "listen address override")
	pflag.BoolVar(&verbose, "verbose", false, "enable debug logging")
	pflag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Control.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer sessionStore.Close()

	signingKey, err := loadSigningKey(cfg.Control.SigningKeyFile, logger)
	if err != nil {
		return err
	}

	launcher, err := compute.NewLocal(compute.LocalConfig{
		Binary:     cfg.Control.WorkerCommand,
		ConfigPath: configPath,
		ControlURL: cfg.Control.PublicURL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(sessionStore, launcher, clock.Real(), signingKey, logger, orchestrator.Config{
		MaxSessionsPerWorker: cfg.Control.MaxSessionsPerWorker,
		MaxWorkers:           cfg.Control.MaxWorkers,
		GatewayIngress:       cfg.Control.GatewayIngress,
		PublicURL:            cfg.Control.PublicURL,
	})
	if err != nil {
		return err
	}

	server, err := httpapi.New(httpapi.Config{
		Orchestrator: orch,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	go orch.RunSweeper(ctx, cfg.Control.SweepInterval)

	httpServer := &http.Server{
		Addr:    cfg.Control.Listen,
		Handler: server.Handler(),
	}
	serverErr := make(chan error, 1)
	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("control plane running",
		"listen", cfg.Control.Listen,
		"database", cfg.Control.Database,
		"max_workers", cfg.Control.MaxWorkers,
	)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("control server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// openStore picks the store backend: the in-memory store for the
// ":memory:" sentinel, SQLite otherwise.
func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Control.Database == ":memory:" {
		return store.NewMemory(clock.Real()), nil
	}
	return store.OpenSQLite(store.SQLiteConfig{
		Path:   cfg.Control.Database,
		Clock:  clock.Real(),
		Logger: logger,
	})
}

// loadSigningKey reads the Ed25519 seed from disk, or generates an
// ephemeral keypair when no file is configured. Ephemeral keys mean a
// restart invalidates every outstanding connect token.
func loadSigningKey(path string, logger *slog.Logger) (ed25519.PrivateKey, error) {
	if path == "" {
		logger.Warn("no signing key configured; generating ephemeral keypair")
		_, private, err := sessiontoken.GenerateKeypair()
		return private, err
	}

	seed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing key %s: want %d-byte seed, got %d bytes",
			path, ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
