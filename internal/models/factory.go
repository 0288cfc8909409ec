package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/pokus/internal/config"
)

const defaultRequestTimeout = 60 * time.Second

// CreateModel creates a model.ToolCallingChatModel from a provider config.
func CreateModel(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver == "ollama" {
		return NewOllama(ctx, cfg)
	}

	key, err := ResolveAPIKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve auth: %w", err)
	}

	switch driver {
	case "openai":
		return NewOpenAI(ctx, cfg, key)
	case "mistral":
		return NewMistral(ctx, cfg, key)
	case "anthropic":
		return NewClaude(ctx, cfg, key)
	case "gemini":
		return NewGemini(ctx, cfg, key)
	default:
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}
}

func timeoutOr(cfg config.ProviderConfig, def time.Duration) time.Duration {
	if d := cfg.Timeout.Duration(); d > 0 {
		return d
	}
	return def
}

func optFloat32(opts map[string]any, key string) *float32 {
	v, ok := opts[key].(float64)
	if !ok {
		return nil
	}
	f := float32(v)
	return &f
}
