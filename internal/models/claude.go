package models

import (
	"context"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/pokus/internal/config"
)

const (
	defaultClaudeModel     = "claude-sonnet-4-5"
	defaultClaudeMaxTokens = 4096
)

// NewClaude creates an Anthropic ChatModel.
func NewClaude(ctx context.Context, cfg config.ProviderConfig, apiKey string) (model.ToolCallingChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultClaudeModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultClaudeMaxTokens
	}

	claudeCfg := &claude.Config{
		APIKey:     apiKey,
		Model:      modelName,
		MaxTokens:  maxTokens,
		HTTPClient: newHTTPClient("anthropic", timeoutOr(cfg, defaultRequestTimeout)),
	}
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		claudeCfg.BaseURL = &baseURL
	}
	if cfg.Options != nil {
		claudeCfg.Temperature = optFloat32(cfg.Options, "temperature")
		claudeCfg.TopP = optFloat32(cfg.Options, "top_p")
	}

	return claude.NewChatModel(ctx, claudeCfg)
}
