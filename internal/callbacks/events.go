// Package callbacks provides Eino callback handlers that bridge to the event bus.
package callbacks

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	ub "github.com/cloudwego/eino/utils/callbacks"

	"github.com/dohr-michael/pokus/internal/events"
)

const maxPayloadChars = 1000

// NewEventBusHandler creates a callback handler that publishes model and tool
// calls to the bus, tagged with the session found in ctx.
func NewEventBusHandler(bus *events.Bus) callbacks.Handler {
	publish := func(ctx context.Context, payload events.EventPayload) {
		if sid := events.SessionIDFromContext(ctx); sid != "" {
			bus.Publish(events.NewTypedEventWithSession(events.SourceHandler, payload, sid))
		} else {
			bus.Publish(events.NewTypedEvent(events.SourceHandler, payload))
		}
	}

	modelHandler := &ub.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *callbacks.RunInfo, input *model.CallbackInput) context.Context {
			p := events.ModelCallPayload{Phase: events.PhaseStart, TurnID: events.TurnIDFromContext(ctx), Model: info.Name}
			if input != nil {
				p.MessageCount = len(input.Messages)
			}
			publish(ctx, p)
			return ctx
		},
		OnEnd: func(ctx context.Context, info *callbacks.RunInfo, output *model.CallbackOutput) context.Context {
			p := events.ModelCallPayload{Phase: events.PhaseEnd, TurnID: events.TurnIDFromContext(ctx), Model: info.Name}
			if output != nil && output.Message != nil && output.Message.ResponseMeta != nil && output.Message.ResponseMeta.Usage != nil {
				p.TokensInput = output.Message.ResponseMeta.Usage.PromptTokens
				p.TokensOutput = output.Message.ResponseMeta.Usage.CompletionTokens
			}
			publish(ctx, p)
			return ctx
		},
		OnError: func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			publish(ctx, events.ModelCallPayload{Phase: events.PhaseError, TurnID: events.TurnIDFromContext(ctx), Model: info.Name, Error: err.Error()})
			return ctx
		},
	}

	toolHandler := &ub.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *callbacks.RunInfo, input *tool.CallbackInput) context.Context {
			p := events.ToolCallPayload{Phase: events.PhaseStart, TurnID: events.TurnIDFromContext(ctx), Name: info.Name}
			if input != nil {
				p.Arguments = truncatePayload(input.ArgumentsInJSON, maxPayloadChars)
			}
			publish(ctx, p)
			return ctx
		},
		OnEnd: func(ctx context.Context, info *callbacks.RunInfo, output *tool.CallbackOutput) context.Context {
			p := events.ToolCallPayload{Phase: events.PhaseEnd, TurnID: events.TurnIDFromContext(ctx), Name: info.Name}
			if output != nil {
				p.Result = truncatePayload(output.Response, maxPayloadChars)
			}
			publish(ctx, p)
			return ctx
		},
		OnError: func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			publish(ctx, events.ToolCallPayload{Phase: events.PhaseError, TurnID: events.TurnIDFromContext(ctx), Name: info.Name, Error: err.Error()})
			return ctx
		},
	}

	return ub.NewHandlerHelper().
		ChatModel(modelHandler).
		Tool(toolHandler).
		Handler()
}

// Install registers the bus handler globally so every model and tool call
// made through Eino components is reported.
func Install(bus *events.Bus) {
	callbacks.AppendGlobalHandlers(NewEventBusHandler(bus))
}

func truncatePayload(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
