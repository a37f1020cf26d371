// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/browsergrid/browsergrid/lib/session"
)

// ChromiumConfig tunes the Chromium starter.
type ChromiumConfig struct {
	// Bin overrides the browser binary path. Empty lets the launcher
	// find or download one.
	Bin string

	// ProfileRoot is the directory under which per-profile user-data
	// dirs are cached across sessions. Empty disables profile reuse.
	ProfileRoot string

	// DefaultWidth/DefaultHeight apply when the settings document
	// carries no dimensions.
	DefaultWidth  int
	DefaultHeight int

	Logger *slog.Logger
}

// Chromium starts one headless Chromium per session via the rod
// launcher. It implements Starter.
type Chromium struct {
	config   ChromiumConfig
	profiles *ProfileCache
	logger   *slog.Logger
}

// NewChromium builds a Chromium starter.
func NewChromium(config ChromiumConfig) *Chromium {
	if config.DefaultWidth <= 0 {
		config.DefaultWidth = 1280
	}
	if config.DefaultHeight <= 0 {
		config.DefaultHeight = 800
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var profiles *ProfileCache
	if config.ProfileRoot != "" {
		profiles = NewProfileCache(config.ProfileRoot)
	}
	return &Chromium{config: config, profiles: profiles, logger: logger}
}

// Start launches a Chromium process for one session and waits for its
// control socket to come up.
func (c *Chromium) Start(ctx context.Context, options Options) (Engine, error) {
	settings := parseSettings(options.BrowserSettings)

	headless := true
	if settings.Headless != nil {
		headless = *settings.Headless
	}
	width, height := settings.Width, settings.Height
	if width <= 0 {
		width = c.config.DefaultWidth
	}
	if height <= 0 {
		height = c.config.DefaultHeight
	}

	launch := launcher.New().
		Headless(headless).
		Set("window-size", fmt.Sprintf("%d,%d", width, height))
	if c.config.Bin != "" {
		launch = launch.Bin(c.config.Bin)
	}
	if c.profiles != nil && settings.Profile != "" {
		dir, err := c.profiles.Dir(settings.Profile, options.BrowserSettings)
		if err != nil {
			return nil, fmt.Errorf("engine: profile dir: %w", err)
		}
		launch = launch.UserDataDir(dir)
	}
	for _, rawFlag := range settings.Args {
		flag := strings.TrimLeft(rawFlag, "-")
		name, value, hasValue := strings.Cut(flag, "=")
		if hasValue {
			launch = launch.Set(flags.Flag(name), value)
		} else {
			launch = launch.Set(flags.Flag(name))
		}
	}

	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launching chromium: %v", session.ErrEngineUnreachable, err)
	}

	httpBase, err := httpBaseFromSocket(controlURL)
	if err != nil {
		launch.Kill()
		return nil, fmt.Errorf("engine: parsing control url %q: %w", controlURL, err)
	}

	c.logger.Info("engine started",
		"session", options.SessionID,
		"control_url", controlURL,
		"headless", headless,
	)
	return &chromiumEngine{
		sessionID:    options.SessionID,
		launch:       launch,
		webSocketURL: controlURL,
		httpBaseURL:  httpBase,
		logger:       c.logger,
	}, nil
}

type chromiumEngine struct {
	sessionID    string
	launch       *launcher.Launcher
	webSocketURL string
	httpBaseURL  string
	logger       *slog.Logger
}

func (e *chromiumEngine) WebSocketURL() string { return e.webSocketURL }
func (e *chromiumEngine) HTTPBaseURL() string  { return e.httpBaseURL }

// Healthy probes the engine's version endpoint.
func (e *chromiumEngine) Healthy(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, e.httpBaseURL+"/json/version", nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrEngineUnreachable, err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: version probe returned %d", session.ErrEngineUnreachable, response.StatusCode)
	}
	return nil
}

// Stop kills the browser process and removes its temp working data.
// The launcher tolerates an already-dead process.
func (e *chromiumEngine) Stop(ctx context.Context) error {
	e.launch.Kill()
	e.launch.Cleanup()
	e.logger.Info("engine stopped", "session", e.sessionID)
	return nil
}

// httpBaseFromSocket derives the engine's HTTP root from its control
// socket URL.
func httpBaseFromSocket(socketURL string) (string, error) {
	parsed, err := url.Parse(socketURL)
	if err != nil {
		return "", err
	}
	scheme := "http"
	if parsed.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + parsed.Host, nil
}
