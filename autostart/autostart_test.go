// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package autostart

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetEnableWritesDesktopEntry(t *testing.T) {
	directory := filepath.Join(t.TempDir(), "autostart")
	registrar := NewXDGInDir(directory)

	if err := registrar.Set("lapse-tracker", "/usr/local/bin/lapse-tracker", true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(directory, "lapse-tracker.desktop"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	for _, want := range []string{
		"[Desktop Entry]",
		"Exec=/usr/local/bin/lapse-tracker",
		"Name=lapse-tracker",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("entry missing %q:\n%s", want, content)
		}
	}

	enabled, err := registrar.Get("lapse-tracker")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !enabled {
		t.Error("Get = false after enabling")
	}
}

func TestSetDisableRemovesEntry(t *testing.T) {
	directory := filepath.Join(t.TempDir(), "autostart")
	registrar := NewXDGInDir(directory)

	if err := registrar.Set("lapse-tracker", "/usr/local/bin/lapse-tracker", true); err != nil {
		t.Fatalf("Set enable: %v", err)
	}
	if err := registrar.Set("lapse-tracker", "/usr/local/bin/lapse-tracker", false); err != nil {
		t.Fatalf("Set disable: %v", err)
	}

	if _, err := os.Stat(filepath.Join(directory, "lapse-tracker.desktop")); !os.IsNotExist(err) {
		t.Errorf("desktop entry still present (stat err %v)", err)
	}

	enabled, err := registrar.Get("lapse-tracker")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if enabled {
		t.Error("Get = true after disabling")
	}
}

func TestSetDisableWithoutEntryIsNotAnError(t *testing.T) {
	registrar := NewXDGInDir(filepath.Join(t.TempDir(), "autostart"))
	if err := registrar.Set("lapse-tracker", "", false); err != nil {
		t.Errorf("Set disable on empty dir: %v", err)
	}
}

func TestGetTreatsHiddenEntryAsDisabled(t *testing.T) {
	directory := t.TempDir()
	entry := "[Desktop Entry]\nType=Application\nName=lapse-tracker\nHidden=true\n"
	if err := os.WriteFile(filepath.Join(directory, "lapse-tracker.desktop"), []byte(entry), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	enabled, err := NewXDGInDir(directory).Get("lapse-tracker")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if enabled {
		t.Error("Get = true for hidden entry")
	}
}

func TestSetEnableReplacesStaleEntry(t *testing.T) {
	directory := filepath.Join(t.TempDir(), "autostart")
	registrar := NewXDGInDir(directory)

	if err := registrar.Set("lapse-tracker", "/old/path", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := registrar.Set("lapse-tracker", "/new/path", true); err != nil {
		t.Fatalf("Set replace: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(directory, "lapse-tracker.desktop"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "Exec=/new/path") {
		t.Errorf("entry kept the old exec path:\n%s", data)
	}
}
