// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"os"
	"testing"
)

func TestProfileCacheDirStable(t *testing.T) {
	cache := NewProfileCache(t.TempDir())

	first, err := cache.Dir("crawler", []byte(`{"width":1920}`))
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	second, err := cache.Dir("crawler", []byte(`{"width":1920}`))
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if first != second {
		t.Fatalf("same profile and settings mapped to %q and %q", first, second)
	}
	if info, err := os.Stat(first); err != nil || !info.IsDir() {
		t.Fatalf("profile dir not created: %v", err)
	}
}

func TestProfileCacheDirSeparatesSettings(t *testing.T) {
	cache := NewProfileCache(t.TempDir())

	wide, err := cache.Dir("crawler", []byte(`{"width":1920}`))
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	narrow, err := cache.Dir("crawler", []byte(`{"width":800}`))
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if wide == narrow {
		t.Fatal("different settings shared a profile directory")
	}

	other, err := cache.Dir("scraper", []byte(`{"width":1920}`))
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if other == wide {
		t.Fatal("different profiles shared a directory")
	}
}
