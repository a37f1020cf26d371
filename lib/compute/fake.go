// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package compute

import (
	"context"
	"sync"
)

// Fake is a Launcher for tests. It records launches and stops and can
// be primed to fail.
type Fake struct {
	mu       sync.Mutex
	launched []LaunchSpec
	stopped  []Handle

	// LaunchErr, when set, is returned by every Launch call.
	LaunchErr error
}

// NewFake returns an empty fake launcher.
func NewFake() *Fake { return &Fake{} }

func (f *Fake) Launch(_ context.Context, spec LaunchSpec) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LaunchErr != nil {
		return "", f.LaunchErr
	}
	f.launched = append(f.launched, spec)
	return Handle(spec.Name), nil
}

func (f *Fake) Stop(_ context.Context, handle Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, handle)
	return nil
}

// Launched returns a copy of the recorded launch specs.
func (f *Fake) Launched() []LaunchSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LaunchSpec(nil), f.launched...)
}

// Stopped returns a copy of the recorded stop handles.
func (f *Fake) Stopped() []Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Handle(nil), f.stopped...)
}
