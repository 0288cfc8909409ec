package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPokusPath_Default(t *testing.T) {
	t.Setenv("POKUS_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := PokusPath()
	want := filepath.Join(home, ".pokus")
	if got != want {
		t.Errorf("PokusPath() = %q, want %q", got, want)
	}
}

func TestPokusPath_EnvOverride(t *testing.T) {
	t.Setenv("POKUS_PATH", "/tmp/custom-pokus")

	got := PokusPath()
	want := "/tmp/custom-pokus"
	if got != want {
		t.Errorf("PokusPath() = %q, want %q", got, want)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("POKUS_PATH", "/tmp/test-pokus")

	got := ConfigPath()
	want := "/tmp/test-pokus/config.jsonc"
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestDotenvPath(t *testing.T) {
	t.Setenv("POKUS_PATH", "/tmp/test-pokus")

	got := DotenvPath()
	want := "/tmp/test-pokus/.env"
	if got != want {
		t.Errorf("DotenvPath() = %q, want %q", got, want)
	}
}
