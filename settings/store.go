// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/lapse-project/lapse/lib/atomicfile"
)

// Store persists settings across tracker runs. The tracker loads once
// at startup and saves after every accepted change.
type Store interface {
	Load() (Config, error)
	Save(Config) error
}

// FileStore keeps settings in a single YAML file, written atomically
// so a crash mid-save never corrupts the previous settings.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the YAML file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the conventional settings location:
// $XDG_CONFIG_HOME/lapse/settings.yaml, falling back to
// ~/.config/lapse/settings.yaml.
func DefaultPath() string {
	if configDir := os.Getenv("XDG_CONFIG_HOME"); configDir != "" {
		return filepath.Join(configDir, "lapse", "settings.yaml")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "lapse", "settings.yaml")
}

// Load reads the settings file. A missing file yields the defaults
// with no error: first run is not a fault. Fields absent from the
// file keep their default values.
func (s *FileStore) Load() (Config, error) {
	loaded := Default()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return loaded, nil
		}
		return Config{}, fmt.Errorf("reading settings %s: %w", s.path, err)
	}

	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Config{}, fmt.Errorf("parsing settings %s: %w", s.path, err)
	}
	if err := loaded.Validate(); err != nil {
		return Config{}, fmt.Errorf("settings %s: %w", s.path, err)
	}
	return loaded, nil
}

// Save writes the settings file atomically, creating the parent
// directory on first save.
func (s *FileStore) Save(config Config) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := atomicfile.Write(s.path, data, 0o600); err != nil {
		return fmt.Errorf("saving settings %s: %w", s.path, err)
	}
	return nil
}
