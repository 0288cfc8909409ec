package models

import (
	"fmt"
	"os"
	"strings"

	"github.com/dohr-michael/pokus/internal/config"
)

// driverKeyEnv lists the environment variables consulted when no api_key is configured.
var driverKeyEnv = map[string][]string{
	"anthropic": {"ANTHROPIC_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"mistral":   {"MISTRAL_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// ResolveAPIKey resolves the API key for a provider.
// Resolution order: direct api_key (or ${VAR}) → driver default env vars.
func ResolveAPIKey(cfg config.ProviderConfig) (string, error) {
	if key := resolveValue(cfg.Auth.APIKey); key != "" {
		return key, nil
	}

	driver := strings.ToLower(cfg.Driver)
	envs, ok := driverKeyEnv[driver]
	if !ok {
		return "", fmt.Errorf("unknown driver %q: cannot resolve api key", cfg.Driver)
	}
	for _, name := range envs {
		if key := os.Getenv(name); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("%s not set", strings.Join(envs, " or "))
}

func resolveValue(v string) string {
	trimmed := strings.TrimSpace(v)
	if strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}") {
		return os.Getenv(trimmed[2 : len(trimmed)-1])
	}
	return trimmed
}
