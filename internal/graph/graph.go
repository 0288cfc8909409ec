// Package graph drives one conversation turn through a fixed topology:
// routing, then exactly one handler (or the direct response), then a
// checkpoint save.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/dohr-michael/pokus/internal/actors"
	"github.com/dohr-michael/pokus/internal/events"
	"github.com/dohr-michael/pokus/internal/memory"
	"github.com/dohr-michael/pokus/internal/router"
	"github.com/dohr-michael/pokus/internal/sessions"
	"github.com/dohr-michael/pokus/internal/tasks"
)

// DefaultApology is appended to the conversation when a handler fails.
const DefaultApology = "Sorry, I ran into a problem while handling that request. Please try again in a moment."

// Handler output markers stored in ConversationState.HandlerOutputs.
const (
	OutputCompleted = "completed"
	OutputFailed    = "failed"
)

// Config wires a Graph.
type Config struct {
	Registry    *tasks.Registry
	Router      *router.Engine
	Checkpoints sessions.Store
	Memory      memory.Store
	Direct      tasks.Handler // direct-response node

	Bus    *events.Bus       // optional
	Pool   *actors.ActorPool // optional; bounds concurrent turns
	Locker *sessions.Locker  // optional; created when nil

	TurnTimeout     time.Duration // 0 = no deadline
	KeywordFallback bool
	Apology         string
	Now             func() time.Time
}

// Graph executes turns. It is safe for concurrent use.
type Graph struct {
	registry    *tasks.Registry
	router      *router.Engine
	checkpoints sessions.Store
	memory      memory.Store
	direct      tasks.Handler
	bus         *events.Bus
	pool        *actors.ActorPool
	locker      *sessions.Locker

	turnTimeout     time.Duration
	keywordFallback bool
	apology         string
	now             func() time.Time
}

// New validates cfg and returns a Graph.
func New(cfg Config) (*Graph, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("graph: registry is required")
	case cfg.Router == nil:
		return nil, errors.New("graph: router is required")
	case cfg.Checkpoints == nil:
		return nil, errors.New("graph: checkpoint store is required")
	case cfg.Memory == nil:
		return nil, errors.New("graph: memory store is required")
	case cfg.Direct == nil:
		return nil, errors.New("graph: direct-response handler is required")
	}

	g := &Graph{
		registry:        cfg.Registry,
		router:          cfg.Router,
		checkpoints:     cfg.Checkpoints,
		memory:          cfg.Memory,
		direct:          cfg.Direct,
		bus:             cfg.Bus,
		pool:            cfg.Pool,
		locker:          cfg.Locker,
		turnTimeout:     cfg.TurnTimeout,
		keywordFallback: cfg.KeywordFallback,
		apology:         cfg.Apology,
		now:             cfg.Now,
	}
	if g.locker == nil {
		g.locker = sessions.NewLocker()
	}
	if g.apology == "" {
		g.apology = DefaultApology
	}
	if g.now == nil {
		g.now = func() time.Time { return time.Now().UTC() }
	}
	return g, nil
}

// TurnResult is the outcome of one submitted message.
type TurnResult struct {
	SessionID string             `json:"session_id"`
	TurnID    string             `json:"turn_id"`
	Decision  router.Decision    `json:"decision"`
	HandlerID string             `json:"handler_id"` // task actually dispatched
	Messages  []sessions.Message `json:"messages"`   // trailing assistant messages
	TurnCount int                `json:"turn_count"`
	Path      []Node             `json:"path"`
	Degraded  bool               `json:"degraded,omitempty"`

	// HandlerErr is set when the handler failed and an apology was returned.
	HandlerErr error `json:"-"`
}

// Submit runs one turn for sessionID. Handler and classification failures
// degrade to a conversational answer; only persistence failures and
// cancellation are returned as errors. A cancelled turn persists nothing.
func (g *Graph) Submit(ctx context.Context, sessionID, userID, content string) (*TurnResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("submit: %w", sessions.ErrInvalidID)
	}

	turnID := "turn_" + uuid.New().String()[:8]
	ctx = events.ContextWithSessionID(ctx, sessionID)
	ctx = events.ContextWithTurnID(ctx, turnID)

	if g.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.turnTimeout)
		defer cancel()
	}

	unlock, err := g.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if g.pool != nil {
		actor, err := g.pool.Acquire(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("acquire turn slot: %w", err)
		}
		defer g.pool.Release(actor)
	}

	start := time.Now()
	res, err := g.run(ctx, turnID, sessionID, userID, content)
	if err != nil {
		g.publish(sessionID, events.TurnFailedPayload{
			TurnID:    turnID,
			Error:     err.Error(),
			Cancelled: ctx.Err() != nil,
		})
		if ctx.Err() != nil {
			slog.Info("turn cancelled", "session_id", sessionID, "turn_id", turnID, "error", err)
		} else {
			slog.Error("turn failed", "session_id", sessionID, "turn_id", turnID, "error", err)
		}
		return nil, err
	}

	g.publish(sessionID, events.TurnCompletedPayload{
		TurnID:    turnID,
		TaskID:    res.HandlerID,
		TurnCount: res.TurnCount,
		Degraded:  res.Degraded,
		Duration:  time.Since(start),
	})
	slog.Info("turn completed",
		"session_id", sessionID,
		"turn_id", turnID,
		"handler", res.HandlerID,
		"turn_count", res.TurnCount,
		"degraded", res.Degraded,
	)
	return res, nil
}

// run executes the graph with the session lock held.
func (g *Graph) run(ctx context.Context, turnID, sessionID, userID, content string) (*TurnResult, error) {
	res := &TurnResult{SessionID: sessionID, TurnID: turnID, Path: []Node{NodeStart}}

	// START: load or initialize.
	cp, err := g.checkpoints.Load(ctx, sessionID)
	switch {
	case errors.Is(err, sessions.ErrNotFound):
		cp = sessions.NewCheckpoint(sessionID, g.now())
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &PersistenceError{Op: OpLoad, SessionID: sessionID, Err: err}
	}

	g.publish(sessionID, events.TurnStartedPayload{TurnID: turnID, UserID: userID, Content: content})

	// The user message is appended before routing; this is the state kept on handler failure.
	cp.State.Messages = append(cp.State.Messages, sessions.Message{
		Role:    sessions.RoleUser,
		Content: content,
		Ts:      g.now(),
	})
	inputLen := len(cp.State.Messages)

	// ROUTING
	res.Path = append(res.Path, NodeRouting)
	decision := g.router.Decide(ctx, cp.State.Messages, cp.Session.LastActiveHandler)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Decision = decision

	handlerID, handler := g.resolve(decision, content)
	res.HandlerID = handlerID
	cp.State.TurnIndex++
	cp.State.NextHandler = handlerID

	g.publish(sessionID, events.RouteDecidedPayload{
		TurnID:         turnID,
		TaskID:         decision.TaskID,
		ResolvedTaskID: resolvedIfDifferent(decision.TaskID, handlerID),
		Source:         decision.Source,
		FollowUp:       decision.FollowUp,
		Rationale:      decision.Rationale,
		FallbackReason: decision.FallbackReason,
	})

	// HANDLER[task_id] | DIRECT_RESPONSE
	res.Path = append(res.Path, HandlerNode(handlerID))
	acc := memory.ForUser(g.memory, userID)
	started := time.Now()
	added, herr := g.dispatch(ctx, handler, &tasks.Request{
		SessionID: sessionID,
		UserID:    userID,
		TaskID:    handlerID,
		History:   sessions.ToSchemaMessages(cp.State.Messages),
		Memory:    acc,
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := acc.Err(); err != nil {
		return nil, &PersistenceError{Op: OpMemory, SessionID: sessionID, Err: err}
	}

	if herr != nil {
		res.HandlerErr = &HandlerError{TaskID: handlerID, Err: herr}
		res.Degraded = true
		slog.Warn("handler failed", "session_id", sessionID, "handler", handlerID, "error", herr)
		g.publish(sessionID, events.HandlerFailedPayload{
			TurnID:   turnID,
			TaskID:   handlerID,
			Error:    herr.Error(),
			Duration: time.Since(started),
		})

		cp.State.Messages = append(cp.State.Messages, sessions.Message{
			Role:    sessions.RoleAssistant,
			Content: g.apology,
			Ts:      g.now(),
		})
		cp.State.HandlerOutputs[handlerID] = OutputFailed
	} else {
		g.publish(sessionID, events.HandlerCompletedPayload{
			TurnID:      turnID,
			TaskID:      handlerID,
			NewMessages: len(added),
			Duration:    time.Since(started),
		})
		cp.State.Messages = append(cp.State.Messages, added...)
		cp.State.HandlerOutputs[handlerID] = OutputCompleted
		cp.Session.LastActiveHandler = handlerID
	}

	cp.Session.TurnCount++
	cp.Session.UpdatedAt = g.now()
	res.TurnCount = cp.Session.TurnCount
	res.Messages = trailingAssistant(cp.State.Messages[inputLen:])

	// DONE: persist unless the turn was cancelled.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := g.checkpoints.Save(ctx, cp); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &PersistenceError{Op: OpSave, SessionID: sessionID, Err: err}
	}
	g.publish(sessionID, events.CheckpointSavedPayload{
		TurnCount:    cp.Session.TurnCount,
		MessageCount: len(cp.State.Messages),
	})

	res.Path = append(res.Path, NodeDone)
	return res, nil
}

// resolve maps a decision to the node that runs. A fallback decision may be
// rescued by the keyword index; an id without an enabled handler goes to the
// direct response.
func (g *Graph) resolve(d router.Decision, content string) (string, tasks.Handler) {
	id := d.TaskID
	if d.IsFallback() && g.keywordFallback {
		if def, err := g.registry.FindByKeyword(content); err == nil && def.Handler != nil {
			slog.Info("keyword fallback selected task", "task", def.ID)
			return def.ID, def.Handler
		}
	}
	if id == tasks.DirectResponseID {
		return id, g.direct
	}

	def, err := g.registry.Get(id)
	if err != nil || !def.Enabled || def.Handler == nil {
		slog.Warn("routed task cannot be dispatched, using direct response", "task", id, "error", err)
		return tasks.DirectResponseID, g.direct
	}
	return id, def.Handler
}

// dispatch runs a handler and returns the messages it added.
func (g *Graph) dispatch(ctx context.Context, h tasks.Handler, req *tasks.Request) (added []sessions.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			added = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	input := req.History
	out, err := h.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if !extends(out, input) {
		return nil, errNotExtension
	}

	now := g.now()
	for _, msg := range out[len(input):] {
		if msg == nil || msg.Role == schema.Tool {
			continue
		}
		// Intermediate tool-call steps carry no user-facing content.
		if msg.Role == schema.Assistant && msg.Content == "" && len(msg.ToolCalls) > 0 {
			continue
		}
		m, err := sessions.NewMessageFromSchema(msg, now)
		if err != nil {
			return nil, fmt.Errorf("convert handler output: %w", err)
		}
		added = append(added, m)
	}
	if len(trailingAssistant(added)) == 0 {
		return nil, errNoResponse
	}
	return added, nil
}

// extends reports whether out starts with every message of in, unchanged and in order.
func extends(out, in []*schema.Message) bool {
	if len(out) < len(in) {
		return false
	}
	for i, m := range in {
		o := out[i]
		if o == nil || o.Role != m.Role || o.Content != m.Content {
			return false
		}
	}
	return true
}

// trailingAssistant returns the assistant messages at the end of msgs.
func trailingAssistant(msgs []sessions.Message) []sessions.Message {
	i := len(msgs)
	for i > 0 && msgs[i-1].Role == sessions.RoleAssistant {
		i--
	}
	out := make([]sessions.Message, len(msgs)-i)
	copy(out, msgs[i:])
	return out
}

func resolvedIfDifferent(chosen, resolved string) string {
	if chosen == resolved {
		return ""
	}
	return resolved
}

func (g *Graph) publish(sessionID string, payload events.EventPayload) {
	g.bus.Publish(events.NewTypedEventWithSession(events.SourceGraph, payload, sessionID))
}
