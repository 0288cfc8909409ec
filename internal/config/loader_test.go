package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999
	},
	"models": {
		"default": "claude",
		"providers": {
			"claude": {
				"driver": "anthropic",
				"model": "claude-sonnet-4-20250514",
				"auth": {
					"api_key": "${{ .Env.ANTHROPIC_API_KEY }}"
				},
				"max_tokens": 4096
			}
		}
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "test-key-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}
	if cfg.Models.Default != "claude" {
		t.Errorf("expected default claude, got %s", cfg.Models.Default)
	}

	p, ok := cfg.Models.Providers["claude"]
	if !ok {
		t.Fatal("expected claude provider")
	}
	if p.Auth.APIKey != "test-key-123" {
		t.Errorf("expected api_key test-key-123, got %s", p.Auth.APIKey)
	}
	if p.MaxTokens != 4096 {
		t.Errorf("expected max_tokens 4096, got %d", p.MaxTokens)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POKUS_PATH", "/tmp/pokus-home")
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Gateway.Port)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer 1024, got %d", cfg.Events.BufferSize)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Storage.Driver != "file" {
		t.Errorf("expected default storage driver 'file', got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.SQLitePath != "/tmp/pokus-home/pokus.db" {
		t.Errorf("unexpected sqlite path %q", cfg.Storage.SQLitePath)
	}
	if len(cfg.Tasks.Dirs) != 1 || cfg.Tasks.Dirs[0] != "/tmp/pokus-home/tasks" {
		t.Errorf("unexpected task dirs %v", cfg.Tasks.Dirs)
	}
	if !cfg.Tasks.BuiltinEnabled() {
		t.Error("builtin tasks should be enabled by default")
	}
}

func TestLoadDefaults_Router(t *testing.T) {
	cfg := Default()

	if cfg.Router.HistoryWindow != 6 {
		t.Errorf("expected history_window 6, got %d", cfg.Router.HistoryWindow)
	}
	if cfg.Router.SnippetChars != 200 {
		t.Errorf("expected snippet_chars 200, got %d", cfg.Router.SnippetChars)
	}
	if cfg.Router.FollowupMaxTokens != 6 {
		t.Errorf("expected followup_max_tokens 6, got %d", cfg.Router.FollowupMaxTokens)
	}
	if cfg.Router.Timeout.Duration() != 20*time.Second {
		t.Errorf("expected timeout 20s, got %s", cfg.Router.Timeout.Duration())
	}
	if !cfg.Router.KeywordFallbackEnabled() {
		t.Error("keyword fallback should default to on")
	}
	if cfg.Router.StickyFollowups {
		t.Error("sticky followups should default to off")
	}
}

func TestLoad_RouterOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"router": {
			"timeout": "5s",
			"history_window": 3,
			"sticky_followups": true,
			"keyword_fallback": false, // trailing comma below is fine in JSONC
		},
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Router.Timeout.Duration() != 5*time.Second {
		t.Errorf("expected timeout 5s, got %s", cfg.Router.Timeout.Duration())
	}
	if cfg.Router.HistoryWindow != 3 {
		t.Errorf("expected history_window 3, got %d", cfg.Router.HistoryWindow)
	}
	if !cfg.Router.StickyFollowups {
		t.Error("expected sticky_followups true")
	}
	if cfg.Router.KeywordFallbackEnabled() {
		t.Error("expected keyword fallback disabled")
	}
	// Untouched fields still get defaults.
	if cfg.Router.SnippetChars != 200 {
		t.Errorf("expected snippet_chars 200, got %d", cfg.Router.SnippetChars)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{"gateway": {"port": }`)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.jsonc")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
