package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/pokus/internal/tasks"
)

// DefaultDirectPrompt answers requests no specialized task claimed.
const DefaultDirectPrompt = `You are Pokus, a friendly general assistant.
Answer the user's latest message directly and concisely.
If the user greets you or asks what you can do, respond warmly and explain what you can help with.
If the request needs a specialist you do not have, say so instead of guessing.`

// Capabilities lists the tasks the assistant can currently hand work to.
// (*tasks.Registry).RoutingInfo satisfies it.
type Capabilities func() []tasks.RoutingInfo

// DirectHandler is the direct-response node: one model call, no tools.
type DirectHandler struct {
	model        model.BaseChatModel
	prompt       string
	capabilities Capabilities
}

// NewDirectHandler returns a direct-response handler. An empty prompt uses
// DefaultDirectPrompt. caps is read on every call so reloaded catalogs show
// up without rebuilding the handler; nil means no specialized tasks.
func NewDirectHandler(m model.BaseChatModel, prompt string, caps Capabilities) *DirectHandler {
	if prompt == "" {
		prompt = DefaultDirectPrompt
	}
	return &DirectHandler{model: m, prompt: prompt, capabilities: caps}
}

// systemPrompt renders the prompt followed by the enabled tasks.
func (h *DirectHandler) systemPrompt() string {
	var infos []tasks.RoutingInfo
	if h.capabilities != nil {
		infos = h.capabilities()
	}

	var b strings.Builder
	b.WriteString(h.prompt)
	if len(infos) == 0 {
		b.WriteString("\n\nNo specialized tasks are available right now; answer general questions yourself.")
		return b.String()
	}
	b.WriteString("\n\nYou can help with:")
	for i, info := range infos {
		name := info.DisplayName
		if name == "" {
			name = info.ID
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, name)
		if info.Description != "" {
			fmt.Fprintf(&b, ": %s", info.Description)
		}
	}
	return b.String()
}

// Execute answers the last message with the full history as context.
func (h *DirectHandler) Execute(ctx context.Context, req *tasks.Request) ([]*schema.Message, error) {
	system := h.systemPrompt()
	if req.Memory != nil {
		if prefs, err := LoadPreferences(ctx, req.Memory); err != nil {
			slog.Warn("preferences unavailable", "task", tasks.DirectResponseID, "error", err)
		} else if note := prefs.Note(); note != "" {
			system += "\n\n" + note
		}
	}

	in := make([]*schema.Message, 0, len(req.History)+1)
	in = append(in, schema.SystemMessage(system))
	in = append(in, req.History...)

	resp, err := h.model.Generate(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("direct response: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return nil, fmt.Errorf("direct response: %w", errEmptyAnswer)
	}

	out := make([]*schema.Message, len(req.History), len(req.History)+1)
	copy(out, req.History)
	return append(out, schema.AssistantMessage(resp.Content, nil)), nil
}

var _ tasks.Handler = (*DirectHandler)(nil)
