package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/pokus/internal/memory"
	"github.com/dohr-michael/pokus/internal/tasks"
)

// PreferenceToolName is the tool through which handlers remember user preferences.
const PreferenceToolName = "remember_preference"

// Preferences is the payload stored in the preferences namespace.
type Preferences map[string]string

// LoadPreferences reads the user's preferences. A missing record yields an empty map.
func LoadPreferences(ctx context.Context, acc tasks.MemoryAccessor) (Preferences, error) {
	data, err := acc.Load(ctx, memory.PreferencesNamespace)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	prefs := Preferences{}
	if len(data) == 0 {
		return prefs, nil
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences replaces the user's preferences.
func SavePreferences(ctx context.Context, acc tasks.MemoryAccessor, prefs Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := acc.Save(ctx, memory.PreferencesNamespace, data); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// Note renders preferences as a system note, or "" when there are none.
func (p Preferences) Note() string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("## Known User Preferences\n\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %s\n", k, p[k])
	}
	return sb.String()
}

// PreferenceTool stores one preference for the current user.
// Read-modify-write is last-write-wins across concurrent sessions of the same user.
type PreferenceTool struct {
	memory tasks.MemoryAccessor
}

// NewPreferenceTool binds the tool to a per-user accessor.
func NewPreferenceTool(acc tasks.MemoryAccessor) *PreferenceTool {
	return &PreferenceTool{memory: acc}
}

type preferenceInput struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (t *PreferenceTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: PreferenceToolName,
		Desc: "Remember a user preference (seat, diet, allergy, budget, language...) for future conversations.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"key":   {Type: schema.String, Desc: "Short preference name, e.g. \"seat\"", Required: true},
			"value": {Type: schema.String, Desc: "Preference value; empty to forget it", Required: true},
		}),
	}, nil
}

func (t *PreferenceTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input preferenceInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("%s: parse input: %w", PreferenceToolName, err)
	}
	key := strings.ToLower(strings.TrimSpace(input.Key))
	if key == "" {
		return "", fmt.Errorf("%s: key is required", PreferenceToolName)
	}

	prefs, err := LoadPreferences(ctx, t.memory)
	if err != nil {
		return "", fmt.Errorf("%s: %w", PreferenceToolName, err)
	}
	status := "saved"
	if value := strings.TrimSpace(input.Value); value == "" {
		delete(prefs, key)
		status = "forgotten"
	} else {
		prefs[key] = value
	}
	if err := SavePreferences(ctx, t.memory, prefs); err != nil {
		return "", fmt.Errorf("%s: %w", PreferenceToolName, err)
	}

	result, _ := json.Marshal(map[string]string{"key": key, "status": status})
	return string(result), nil
}

var _ tool.InvokableTool = (*PreferenceTool)(nil)
