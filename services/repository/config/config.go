// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the repository service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/entityvault/services/repository/telemetry"
)

// Config is the full service configuration.
type Config struct {
	// Store configures the embedded storage engine.
	Store StoreConfig `yaml:"store"`

	// Query configures query execution bounds.
	Query QueryConfig `yaml:"query"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry configures tracing and metrics export.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

type StoreConfig struct {
	// Path is the on-disk directory for the database.
	Path string `yaml:"path"`

	// InMemory runs the store without persistence. Useful for tests
	// and throwaway sessions.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites forces an fsync on every commit.
	SyncWrites bool `yaml:"sync_writes"`
}

type QueryConfig struct {
	// MaxLimit caps the limit a query may request.
	MaxLimit int64 `yaml:"max_limit"`
}

type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Dir enables file logging when set. Supports ~ expansion.
	Dir string `yaml:"dir"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`

	// Quiet disables stderr output.
	Quiet bool `yaml:"quiet"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Store: StoreConfig{
			Path:       filepath.Join(home, ".entityvault", "data"),
			SyncWrites: true,
		},
		Query: QueryConfig{
			MaxLimit: 50_000_000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

var (
	// Global is the singleton configuration loaded by Load.
	Global Config
	once   sync.Once
)

// Load reads the config into Global once per process, creating the
// default file on first run. An empty path uses
// ~/.entityvault/entityvault.yaml.
func Load(path string) error {
	var err error
	once.Do(func() {
		Global, err = LoadFile(path)
	})
	return err
}

// LoadFile reads and parses one config file, creating it with defaults
// when it does not exist. An empty path uses the default location.
func LoadFile(path string) (Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("could not find the user's home directory: %w", err)
		}
		path = filepath.Join(home, ".entityvault", "entityvault.yaml")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return Config{}, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse the config file: %w", err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
