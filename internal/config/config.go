// Package config loads the Pokus configuration file.
package config

import "time"

// Config is the root configuration for Pokus.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Models    ModelsConfig    `json:"models"`
	Router    RouterConfig    `json:"router"`
	Storage   StorageConfig   `json:"storage"`
	Memory    MemoryConfig    `json:"memory"`
	Tasks     TasksConfig     `json:"tasks"`
	WebSearch WebSearchConfig `json:"web_search"`
	Turns     TurnsConfig     `json:"turns"`
	Retention RetentionConfig `json:"retention"`
	Events    EventsConfig    `json:"events"`
	Log       LogConfig       `json:"log"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver"` // "openai", "anthropic", "gemini", "ollama", "mistral"
	Model     string         `json:"model"`
	BaseURL   string         `json:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // Direct API key or ${{ .Env.VAR }} template
}

// RouterConfig tunes the routing decision engine.
type RouterConfig struct {
	Model             string   `json:"model,omitempty"` // provider name; empty = models.default
	Timeout           Duration `json:"timeout,omitempty"`
	HistoryWindow     int      `json:"history_window,omitempty"`
	SnippetChars      int      `json:"snippet_chars,omitempty"`
	FollowupMaxTokens int      `json:"followup_max_tokens,omitempty"`
	StickyFollowups   bool     `json:"sticky_followups,omitempty"`
	KeywordFallback   *bool    `json:"keyword_fallback,omitempty"`
}

// KeywordFallbackEnabled reports whether the keyword fallback path is on (default true).
func (r RouterConfig) KeywordFallbackEnabled() bool {
	return r.KeywordFallback == nil || *r.KeywordFallback
}

// StorageConfig selects the checkpoint and memory backends.
type StorageConfig struct {
	Driver     string `json:"driver"` // "memory", "file", "sqlite"
	Dir        string `json:"dir,omitempty"`
	SQLitePath string `json:"sqlite_path,omitempty"`
}

// MemoryConfig configures the cross-session memory store.
type MemoryConfig struct {
	EncryptionKey string `json:"encryption_key,omitempty"` // AGE-SECRET-KEY-...; empty = plaintext
	KeyFile       string `json:"key_file,omitempty"`       // age identity file, used when encryption_key is empty
}

// TasksConfig configures the task catalog.
type TasksConfig struct {
	Dirs     []string `json:"dirs"`               // catalog directories (default: [$POKUS_PATH/tasks])
	Pattern  string   `json:"pattern,omitempty"`  // glob within each dir (default: **/*.yaml)
	Disabled []string `json:"disabled,omitempty"` // task ids registered but disabled
	Builtin  *bool    `json:"builtin,omitempty"`  // register built-in tasks (default true)
}

// BuiltinEnabled reports whether built-in tasks are registered (default true).
func (t TasksConfig) BuiltinEnabled() bool {
	return t.Builtin == nil || *t.Builtin
}

// WebSearchConfig configures the web search tool available to task handlers.
type WebSearchConfig struct {
	Provider     string `json:"provider,omitempty"` // "duckduckgo" (default), "google", "bing", "none"
	MaxResults   int    `json:"max_results,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
	GoogleAPIKey string `json:"google_api_key,omitempty"`
	GoogleCX     string `json:"google_cx,omitempty"`
	BingAPIKey   string `json:"bing_api_key,omitempty"`
}

// TurnsConfig bounds turn execution.
type TurnsConfig struct {
	MaxConcurrent int      `json:"max_concurrent,omitempty"`
	Timeout       Duration `json:"timeout,omitempty"`
}

// RetentionConfig configures checkpoint eviction.
type RetentionConfig struct {
	Enabled  bool     `json:"enabled"`
	Schedule string   `json:"schedule,omitempty"` // cron spec, default "@daily"
	MaxIdle  Duration `json:"max_idle,omitempty"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int  `json:"buffer_size"`
	Journal    bool `json:"journal,omitempty"` // append events to <storage.dir>/journal
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level,omitempty"` // "debug", "info", "warn", "error"
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
