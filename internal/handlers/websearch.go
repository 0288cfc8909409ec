package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/bingsearch"
	duckduckgo "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/pokus/internal/config"
)

// WebSearchToolName is the name every provider registers under.
const WebSearchToolName = "web_search"

const defaultSearchResults = 10

// NewWebSearchTool creates the web search tool for the configured provider.
// Supported: "duckduckgo" (default, no API key), "google", "bing". "none"
// returns a nil tool.
func NewWebSearchTool(ctx context.Context, cfg config.WebSearchConfig) (tool.InvokableTool, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "duckduckgo"
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultSearchResults
	}
	var timeout time.Duration
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("web_search: invalid timeout %q: %w", cfg.Timeout, err)
		}
		timeout = d
	}

	var (
		t   tool.InvokableTool
		err error
	)
	switch provider {
	case "none":
		return nil, nil
	case "duckduckgo":
		t, err = duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
			ToolName:   WebSearchToolName,
			ToolDesc:   "Search the web using DuckDuckGo. Returns titles, URLs, and summaries.",
			MaxResults: maxResults,
			Timeout:    timeout,
		})
	case "google":
		if cfg.GoogleAPIKey == "" || cfg.GoogleCX == "" {
			return nil, fmt.Errorf("web_search: google provider requires google_api_key and google_cx")
		}
		t, err = googlesearch.NewTool(ctx, &googlesearch.Config{
			APIKey:         cfg.GoogleAPIKey,
			SearchEngineID: cfg.GoogleCX,
			Num:            maxResults,
			ToolName:       WebSearchToolName,
			ToolDesc:       "Search the web using Google. Returns titles, URLs, and snippets.",
		})
	case "bing":
		if cfg.BingAPIKey == "" {
			return nil, fmt.Errorf("web_search: bing provider requires bing_api_key")
		}
		t, err = bingsearch.NewTool(ctx, &bingsearch.Config{
			APIKey:     cfg.BingAPIKey,
			MaxResults: maxResults,
			Timeout:    timeout,
			ToolName:   WebSearchToolName,
			ToolDesc:   "Search the web using Bing. Returns titles, URLs, and descriptions.",
		})
	default:
		return nil, fmt.Errorf("web_search: unknown provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("web_search: init %s: %w", provider, err)
	}

	slog.Info("web search enabled", "provider", provider, "max_results", maxResults)
	return t, nil
}
