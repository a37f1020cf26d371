// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package compute

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Local launches workers as child processes of the control plane.
// Meant for development and single-machine deployments; production
// deployments implement Launcher against their infrastructure API.
type Local struct {
	binary     string
	configPath string
	controlURL string
	logger     *slog.Logger

	mu        sync.Mutex
	processes map[Handle]*exec.Cmd
}

// LocalConfig holds the parameters for the local launcher.
type LocalConfig struct {
	// Binary is the path to the browsergrid-worker executable.
	Binary string

	// ConfigPath is passed to the worker as --config.
	ConfigPath string

	// ControlURL is the control-plane base URL the worker reports to.
	ControlURL string

	Logger *slog.Logger
}

// NewLocal creates a local process launcher.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("compute: worker binary path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Local{
		binary:     cfg.Binary,
		configPath: cfg.ConfigPath,
		controlURL: cfg.ControlURL,
		logger:     logger,
		processes:  make(map[Handle]*exec.Cmd),
	}, nil
}

func (l *Local) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	arguments := []string{
		"--worker-id", spec.Name,
		"--control-url", l.controlURL,
	}
	if l.configPath != "" {
		arguments = append(arguments, "--config", l.configPath)
	}
	if spec.MaxSessions > 0 {
		arguments = append(arguments, "--max-sessions", strconv.Itoa(spec.MaxSessions))
	}

	// Deliberately not CommandContext: the worker outlives the launch
	// request's context and is stopped explicitly via Stop.
	command := exec.Command(l.binary, arguments...)
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := command.Start(); err != nil {
		return "", fmt.Errorf("compute: starting worker %s: %w", spec.Name, err)
	}

	handle := Handle(spec.Name)
	l.mu.Lock()
	l.processes[handle] = command
	l.mu.Unlock()

	// Reap the child to avoid zombies and drop the handle when it
	// exits on its own.
	go func() {
		err := command.Wait()
		l.mu.Lock()
		delete(l.processes, handle)
		l.mu.Unlock()
		l.logger.Info("worker process exited", "worker", spec.Name, "error", err)
	}()

	l.logger.Info("worker process launched", "worker", spec.Name, "pid", command.Process.Pid)
	return handle, nil
}

func (l *Local) Stop(ctx context.Context, handle Handle) error {
	l.mu.Lock()
	command, ok := l.processes[handle]
	l.mu.Unlock()
	if !ok {
		return nil
	}

	// SIGTERM first for graceful shutdown; SIGKILL after a grace
	// period or when the caller's context expires.
	if err := command.Process.Signal(syscall.SIGTERM); err != nil {
		return nil // already gone
	}

	done := make(chan struct{})
	go func() {
		for {
			l.mu.Lock()
			_, alive := l.processes[handle]
			l.mu.Unlock()
			if !alive {
				close(done)
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		command.Process.Kill()
	case <-time.After(10 * time.Second):
		command.Process.Kill()
	}
	return nil
}
