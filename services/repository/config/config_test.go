// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entityvault.yaml")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("first run should create the file: %v", err)
	}
	if cfg.Query.MaxLimit != 50_000_000 {
		t.Errorf("MaxLimit = %d, want default", cfg.Query.MaxLimit)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Logging.Level)
	}
	if !cfg.Store.SyncWrites {
		t.Error("SyncWrites should default to true")
	}
}

func TestLoadFileParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entityvault.yaml")
	content := []byte(`
store:
  path: /tmp/ev
  in_memory: true
query:
  max_limit: 100
logging:
  level: debug
  json: true
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Store.Path != "/tmp/ev" || !cfg.Store.InMemory {
		t.Errorf("store config = %+v", cfg.Store)
	}
	if cfg.Query.MaxLimit != 100 {
		t.Errorf("MaxLimit = %d, want 100", cfg.Query.MaxLimit)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("logging config = %+v", cfg.Logging)
	}
	// Unset sections keep their defaults.
	if cfg.Telemetry.ServiceName != "entityvault" {
		t.Errorf("ServiceName = %q, want entityvault", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entityvault.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("malformed yaml should fail")
	}
}
