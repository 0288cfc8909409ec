// Package handlers implements the task handlers dispatched by the execution graph.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/pokus/internal/tasks"
)

var errEmptyAnswer = errors.New("agent produced no answer")

// AgentConfig configures an AgentHandler.
type AgentConfig struct {
	Name          string
	Description   string
	Instruction   string
	Model         model.ToolCallingChatModel
	Tools         []tool.BaseTool
	Preferences   bool // expose remember_preference and inject known preferences
	MaxIterations int  // 0 = ADK default
}

// AgentHandler runs a task as an ADK ChatModelAgent (ReAct loop over its tools).
// A fresh runner is built per request since the preference tool is bound to the
// requesting user.
type AgentHandler struct {
	cfg AgentConfig
}

// NewAgentHandler returns a handler for cfg.
func NewAgentHandler(cfg AgentConfig) (*AgentHandler, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent %s: model is required", cfg.Name)
	}
	if cfg.Name == "" {
		return nil, errors.New("agent: name is required")
	}
	return &AgentHandler{cfg: cfg}, nil
}

// Execute runs the agent on the request history and appends its final answer.
func (h *AgentHandler) Execute(ctx context.Context, req *tasks.Request) ([]*schema.Message, error) {
	instruction := h.cfg.Instruction
	tools := slices.Clone(h.cfg.Tools)

	if h.cfg.Preferences && req.Memory != nil {
		tools = append(tools, NewPreferenceTool(req.Memory))
		if prefs, err := LoadPreferences(ctx, req.Memory); err != nil {
			slog.Warn("preferences unavailable", "task", h.cfg.Name, "error", err)
		} else if note := prefs.Note(); note != "" {
			instruction = strings.TrimSpace(instruction + "\n\n" + note)
		}
	}

	runner, err := h.newRunner(ctx, instruction, tools)
	if err != nil {
		return nil, fmt.Errorf("create agent %s: %w", h.cfg.Name, err)
	}

	answer, err := collectAnswer(runner.Run(ctx, req.History))
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", h.cfg.Name, err)
	}

	out := make([]*schema.Message, len(req.History), len(req.History)+1)
	copy(out, req.History)
	return append(out, schema.AssistantMessage(answer, nil)), nil
}

func (h *AgentHandler) newRunner(ctx context.Context, instruction string, tools []tool.BaseTool) (*adk.Runner, error) {
	cfg := &adk.ChatModelAgentConfig{
		Name:          h.cfg.Name,
		Description:   h.cfg.Description,
		Instruction:   instruction,
		Model:         h.cfg.Model,
		MaxIterations: h.cfg.MaxIterations,
	}
	if len(tools) > 0 {
		cfg.ToolsConfig.Tools = tools
	}

	agent, err := adk.NewChatModelAgent(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return adk.NewRunner(ctx, adk.RunnerConfig{
		Agent:           agent,
		EnableStreaming: false,
	}), nil
}

// collectAnswer drains the iterator and returns the last assistant text.
// Tool results and tool-call-only steps are skipped.
func collectAnswer(iter *adk.AsyncIterator[*adk.AgentEvent]) (string, error) {
	var answer string
	for {
		event, ok := iter.Next()
		if !ok {
			break
		}
		if event.Err != nil {
			return "", event.Err
		}
		if event.Output == nil || event.Output.MessageOutput == nil {
			continue
		}

		mv := event.Output.MessageOutput
		if mv.Role == schema.Tool {
			if mv.IsStreaming && mv.MessageStream != nil {
				mv.MessageStream.Close()
			}
			continue
		}

		msg, err := mv.GetMessage()
		if err != nil {
			return "", err
		}
		if msg != nil && msg.Content != "" {
			answer = msg.Content
		}
	}

	if answer == "" {
		return "", errEmptyAnswer
	}
	return answer, nil
}

var _ tasks.Handler = (*AgentHandler)(nil)
