package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// standardizes it to plain JSON, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes JSONC config bytes. Exposed for tests and embedded configs.
func Parse(data []byte) (*Config, error) {
	// Expand before standardizing, since templates live inside strings.
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 8000
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Router.Timeout == 0 {
		cfg.Router.Timeout = Duration(20 * time.Second)
	}
	if cfg.Router.HistoryWindow == 0 {
		cfg.Router.HistoryWindow = 6
	}
	if cfg.Router.SnippetChars == 0 {
		cfg.Router.SnippetChars = 200
	}
	if cfg.Router.FollowupMaxTokens == 0 {
		cfg.Router.FollowupMaxTokens = 6
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = PokusPath()
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(cfg.Storage.Dir, "pokus.db")
	}

	if len(cfg.Tasks.Dirs) == 0 {
		cfg.Tasks.Dirs = []string{filepath.Join(PokusPath(), "tasks")}
	}
	if cfg.Tasks.Pattern == "" {
		cfg.Tasks.Pattern = "**/*.yaml"
	}

	if cfg.WebSearch.Provider == "" {
		cfg.WebSearch.Provider = "duckduckgo"
	}
	if cfg.WebSearch.MaxResults == 0 {
		cfg.WebSearch.MaxResults = 5
	}

	if cfg.Turns.MaxConcurrent <= 0 {
		cfg.Turns.MaxConcurrent = 16
	}
	if cfg.Turns.Timeout == 0 {
		cfg.Turns.Timeout = Duration(2 * time.Minute)
	}

	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "@daily"
	}
	if cfg.Retention.MaxIdle == 0 {
		cfg.Retention.MaxIdle = Duration(30 * 24 * time.Hour)
	}
	// Auth resolution is deferred to models.ResolveAuth() at model init time.
}
