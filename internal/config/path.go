// Package config loads application settings from viper, the environment and .env files.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appDirName = "finhelper"

// ConfigDir holds config.yaml, the rules file and the Sheets token:
// $XDG_CONFIG_HOME/finhelper, or ~/.config/finhelper.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir holds the ledger database and its backups:
// $XDG_DATA_HOME/finhelper, or ~/.local/share/finhelper.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func xdgDir(envVar, homeRel string) string {
	if base := os.Getenv(envVar); base != "" && filepath.IsAbs(base) {
		return filepath.Join(base, appDirName)
	}
	return filepath.Join(homeDir(), homeRel, appDirName)
}

// ExpandPath resolves a leading ~ to the home directory and expands $VARS.
func ExpandPath(path string) string {
	switch {
	case path == "~":
		path = homeDir()
	case strings.HasPrefix(path, "~/"):
		path = filepath.Join(homeDir(), path[2:])
	}
	return os.ExpandEnv(path)
}

// homeDir falls back to the working directory when no home is known, so paths stay
// usable in bare containers.
func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}
