// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package xdg resolves XDG Base Directory paths for precinct: configuration
// under $XDG_CONFIG_HOME/precinct and state (logs, history) under
// $XDG_STATE_HOME/precinct, falling back to ~/.config and ~/.local/state.
// Directories are created private (0700) because they may hold query text.
package xdg

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under each XDG base.
const AppName = "precinct"

// ConfigDir returns the XDG config directory for precinct, creating it if missing.
func ConfigDir() (string, error) {
	return ensure("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for precinct, creating it if missing.
func StateDir() (string, error) {
	return ensure("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// StatePath joins name onto StateDir.
func StatePath(name string) (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func ensure(env, homeRel string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, homeRel)
	}
	dir := filepath.Join(base, AppName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
