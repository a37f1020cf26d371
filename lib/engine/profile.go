// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// ProfileCache maps a named browser profile plus its settings document
// to a stable user-data directory, so repeat sessions with the same
// profile reuse cookies, local storage, and the HTTP cache.
type ProfileCache struct {
	root string
}

// NewProfileCache roots the cache at dir.
func NewProfileCache(dir string) *ProfileCache {
	return &ProfileCache{root: dir}
}

// Dir returns the user-data directory for a profile, creating it on
// first use. The key hashes both the profile name and the settings
// bytes: the same profile with different engine settings gets a
// separate directory, since mixed-settings profile data corrupts
// Chromium state.
func (c *ProfileCache) Dir(profile string, settings []byte) (string, error) {
	hasher := blake3.New()
	hasher.Write([]byte(profile))
	hasher.Write([]byte{0})
	hasher.Write(settings)
	key := hex.EncodeToString(hasher.Sum(nil))[:16]

	dir := filepath.Join(c.root, key)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("engine: creating profile dir: %w", err)
	}
	return dir, nil
}
