package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/pokus/internal/config"
)

// NewInitCommand returns the onboarding subcommand.
func NewInitCommand() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Initialize the pokus home directory (~/.pokus)",
		Action: runInit,
	}
}

func runInit(_ context.Context, _ *cli.Command) error {
	root := config.PokusPath()
	created := false

	for _, d := range []string{
		root,
		filepath.Join(root, "tasks"),
		filepath.Join(root, "sessions"),
		filepath.Join(root, "memory"),
	} {
		if _, err := os.Stat(d); err != nil {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", d, err)
			}
			fmt.Printf("  Created %s\n", d)
			created = true
		}
	}

	files := []struct {
		path    string
		content string
		mode    os.FileMode
	}{
		{config.ConfigPath(), defaultConfig, 0o644},
		{config.DotenvPath(), defaultDotenv, 0o600},
		{filepath.Join(root, "tasks", "example.yaml"), exampleCatalog, 0o644},
	}
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil {
			continue
		}
		if err := os.WriteFile(f.path, []byte(f.content), f.mode); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
		fmt.Printf("  Created %s\n", f.path)
		created = true
	}

	if !created {
		fmt.Printf("%s is already initialized. Nothing to do.\n", root)
		return nil
	}
	fmt.Printf("\nNext: put an API key in %s/.env, then run: pokus serve\n", root)
	return nil
}

const defaultConfig = `{
	"gateway": {
		"host": "127.0.0.1",
		"port": 8000
	},

	"models": {
		"default": "main",
		"providers": {
			"main": {
				"driver": "openai",
				"model": "gpt-4o-mini",
				"auth": { "api_key": "${{ .Env.OPENAI_API_KEY }}" },
				"max_tokens": 2048
			},

			// Local model via Ollama (no auth required)
			// "local": {
			// 	"driver": "ollama",
			// 	"model": "llama3.1:8b",
			// 	"base_url": "http://localhost:11434",
			// },
		},
	},

	"router": {
		// Provider used for classification; empty = models.default
		"model": "",
		"timeout": "20s",
		"sticky_followups": false,
	},

	"storage": {
		"driver": "file", // memory | file | sqlite
	},

	"web_search": {
		"provider": "duckduckgo", // duckduckgo | google | bing | none
	},

	"turns": {
		"max_concurrent": 16,
		"timeout": "2m",
	},

	"retention": {
		"enabled": false,
		"schedule": "@daily",
		"max_idle": "720h",
	},
}
`

const defaultDotenv = `# pokus environment variables
# This file is loaded automatically. Existing env vars are never overridden.

# OPENAI_API_KEY=sk-...
# ANTHROPIC_API_KEY=sk-ant-...
# GEMINI_API_KEY=...
`

const exampleCatalog = `# Task catalog. Every *.yaml file under this directory is loaded at startup
# and on SIGHUP.
tasks:
  - id: recipes
    name: Cook Something
    description: Suggest recipes from available ingredients and dietary preferences
    category: food
    icon: chef
    keywords: [recipe, cook, dinner, ingredients]
    tools: [web_search, remember_preference]
    system_prompt: |
      You help users decide what to cook. Respect any stored dietary preferences.
`
