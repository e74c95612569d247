// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package autostart manages launch-at-login registration for the
// tracker. Registration is best effort throughout: the tracker treats
// registrar failures as log lines, never as reasons to reject the
// settings change that asked for them.
package autostart

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lapse-project/lapse/lib/atomicfile"
)

// Registrar flips an application's launch-at-login state.
type Registrar interface {
	// Set registers execPath to start with the user session when
	// enabled is true, or removes the registration when false.
	// Removing an absent registration is not an error.
	Set(appName, execPath string, enabled bool) error

	// Get reports whether appName is currently registered.
	Get(appName string) (bool, error)
}

// XDG implements Registrar with desktop entries in the user's
// autostart directory, the freedesktop mechanism every major desktop
// honors.
type XDG struct {
	directory string
}

// NewXDG returns a registrar over $XDG_CONFIG_HOME/autostart, falling
// back to ~/.config/autostart.
func NewXDG() *XDG {
	if configDir := os.Getenv("XDG_CONFIG_HOME"); configDir != "" {
		return &XDG{directory: filepath.Join(configDir, "autostart")}
	}
	homeDir, _ := os.UserHomeDir()
	return &XDG{directory: filepath.Join(homeDir, ".config", "autostart")}
}

// NewXDGInDir returns a registrar over an explicit directory.
func NewXDGInDir(directory string) *XDG {
	return &XDG{directory: directory}
}

func (x *XDG) entryPath(appName string) string {
	return filepath.Join(x.directory, appName+".desktop")
}

// Set writes or removes the desktop entry for appName.
func (x *XDG) Set(appName, execPath string, enabled bool) error {
	path := x.entryPath(appName)

	if !enabled {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing autostart entry %s: %w", path, err)
		}
		return nil
	}

	entry := fmt.Sprintf(`[Desktop Entry]
Type=Application
Name=%s
Exec=%s
Comment=Background screen capture
X-GNOME-Autostart-enabled=true
`, appName, execPath)

	if err := os.MkdirAll(x.directory, 0o755); err != nil {
		return fmt.Errorf("creating autostart directory: %w", err)
	}
	if err := atomicfile.Write(path, []byte(entry), 0o644); err != nil {
		return fmt.Errorf("writing autostart entry %s: %w", path, err)
	}
	return nil
}

// Get reports whether appName has an active desktop entry. An entry
// marked Hidden=true counts as disabled; desktops ignore those.
func (x *XDG) Get(appName string) (bool, error) {
	data, err := os.ReadFile(x.entryPath(appName))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading autostart entry: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "Hidden=true" {
			return false, nil
		}
	}
	return true, nil
}
