// ABOUTME: XDG-style resolution of the till config file and data directory
// ABOUTME: Env overrides first, then XDG base dirs, then home-relative fallbacks

package config

import (
	"os"
	"path/filepath"
)

const appName = "till"

// ConfigPath returns the path to the till config file.
// Priority: TILL_CONFIG env var > XDG_CONFIG_HOME/till/config.yaml > ~/.config/till/config.yaml
func ConfigPath() string {
	if envPath := os.Getenv("TILL_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, appName, "config.yaml")
}

// DataDir returns the directory the datastore lives in by default.
// Priority: XDG_DATA_HOME/till > ~/.local/share/till
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, appName)
}
