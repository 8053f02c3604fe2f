// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRejectsEmptyBundleID(t *testing.T) {
	cfg := Default()
	cfg.Port = 55000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty bundle id")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.BundleID = "com.example.app"
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port 0")
	}
}

func TestValidateRejectsBadAddress(t *testing.T) {
	cfg := Default()
	cfg.BundleID = "com.example.app"
	cfg.Port = 55000
	cfg.Address = "not-an-ip"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid address")
	}
}

func TestValidateAccepts(t *testing.T) {
	cfg := Default()
	cfg.BundleID = "com.example.app"
	cfg.Port = 55000
	cfg.Address = "192.168.1.10"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "bundle_id: com.example.app\nport: 55000\nforce_barcode: true\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.BundleID != "com.example.app" {
		t.Errorf("BundleID = %q, want com.example.app", cfg.BundleID)
	}
	if cfg.Port != 55000 {
		t.Errorf("Port = %d, want 55000", cfg.Port)
	}
	if !cfg.ForceBarcode {
		t.Error("ForceBarcode = false, want true")
	}
	if cfg.MediaServiceVersion != "6.0.0" {
		t.Errorf("MediaServiceVersion = %q, want default 6.0.0", cfg.MediaServiceVersion)
	}
}

func TestResolvedAddressDefaultsToUnspecified(t *testing.T) {
	cfg := Default()
	if !cfg.ResolvedAddress().IsUnspecified() {
		t.Errorf("ResolvedAddress() = %v, want unspecified", cfg.ResolvedAddress())
	}
}
