package config

import (
	"os"
	"path/filepath"
)

// PokusPath returns the root directory for Pokus data.
// It uses $POKUS_PATH if set, otherwise defaults to ~/.pokus.
func PokusPath() string {
	if v := os.Getenv("POKUS_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".pokus")
	}
	return filepath.Join(home, ".pokus")
}

// ConfigPath returns the path to the Pokus config file.
func ConfigPath() string {
	return filepath.Join(PokusPath(), "config.jsonc")
}

// DotenvPath returns the path to the Pokus .env file.
func DotenvPath() string {
	return filepath.Join(PokusPath(), ".env")
}
