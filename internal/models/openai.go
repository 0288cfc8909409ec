package models

import (
	"context"
	"strings"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/pokus/internal/config"
)

const (
	defaultMistralBaseURL = "https://api.mistral.ai/v1"
	defaultMistralModel   = "mistral-small-latest"
)

// NewOpenAI creates a new OpenAI ChatModel.
func NewOpenAI(ctx context.Context, cfg config.ProviderConfig, apiKey string) (model.ToolCallingChatModel, error) {
	return newOpenAICompatible(ctx, cfg, apiKey, cfg.BaseURL, cfg.Model, 60*time.Second)
}

// NewMistral creates a Mistral AI ChatModel via the OpenAI-compatible API.
func NewMistral(ctx context.Context, cfg config.ProviderConfig, apiKey string) (model.ToolCallingChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultMistralBaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultMistralModel
	}
	return newOpenAICompatible(ctx, cfg, apiKey, baseURL, modelName, 5*time.Minute)
}

func newOpenAICompatible(ctx context.Context, cfg config.ProviderConfig, apiKey, baseURL, modelName string, timeout time.Duration) (model.ToolCallingChatModel, error) {
	modelConfig := &einoopenai.ChatModelConfig{
		APIKey:  apiKey,
		Model:   modelName,
		BaseURL: baseURL,
	}
	modelConfig.HTTPClient = newHTTPClient(strings.ToLower(cfg.Driver), timeoutOr(cfg, timeout))

	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxCompletionTokens = &maxTokens
	}
	if cfg.Options != nil {
		modelConfig.Temperature = optFloat32(cfg.Options, "temperature")
		modelConfig.TopP = optFloat32(cfg.Options, "top_p")
	}

	return einoopenai.NewChatModel(ctx, modelConfig)
}
