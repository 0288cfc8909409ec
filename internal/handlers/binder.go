package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/pokus/internal/tasks"
)

// ModelResolver returns the chat model for a provider name ("" = default).
type ModelResolver interface {
	Resolve(ctx context.Context, name string) (model.ToolCallingChatModel, error)
}

// Binder attaches agent handlers and tool sets to task definitions.
type Binder struct {
	models        ModelResolver
	tools         map[string]tool.BaseTool
	maxIterations int
}

// NewBinder indexes the shared tools by name.
func NewBinder(ctx context.Context, models ModelResolver, shared []tool.BaseTool, maxIterations int) (*Binder, error) {
	b := &Binder{
		models:        models,
		tools:         make(map[string]tool.BaseTool, len(shared)),
		maxIterations: maxIterations,
	}
	for _, t := range shared {
		if t == nil {
			continue
		}
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		b.tools[info.Name] = t
	}
	return b, nil
}

// Bind sets def.ToolSet and def.Handler. Unknown tool names are skipped.
func (b *Binder) Bind(ctx context.Context, def *tasks.TaskDefinition) error {
	m, err := b.models.Resolve(ctx, def.Model)
	if err != nil {
		return fmt.Errorf("bind task %s: %w", def.ID, err)
	}

	var (
		toolSet []tool.BaseTool
		prefs   bool
	)
	for _, name := range def.ToolNames {
		if name == PreferenceToolName {
			prefs = true
			continue
		}
		t, ok := b.tools[name]
		if !ok {
			slog.Warn("task references unavailable tool", "task", def.ID, "tool", name)
			continue
		}
		toolSet = append(toolSet, t)
	}

	instruction := def.SystemPrompt
	if instruction == "" {
		instruction = fmt.Sprintf("You are the %s assistant. %s", def.DisplayName, def.Description)
	}

	h, err := NewAgentHandler(AgentConfig{
		Name:          def.ID,
		Description:   def.Description,
		Instruction:   instruction,
		Model:         m,
		Tools:         toolSet,
		Preferences:   prefs,
		MaxIterations: b.maxIterations,
	})
	if err != nil {
		return fmt.Errorf("bind task %s: %w", def.ID, err)
	}
	def.ToolSet = toolSet
	def.Handler = h
	return nil
}

// BindAll binds every definition. A definition that cannot be bound is
// disabled and logged rather than failing the whole catalog.
func (b *Binder) BindAll(ctx context.Context, defs []*tasks.TaskDefinition) {
	for _, def := range defs {
		if err := b.Bind(ctx, def); err != nil {
			slog.Warn("task disabled", "task", def.ID, "error", err)
			def.Enabled = false
		}
	}
}
