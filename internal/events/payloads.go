package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// TURN EVENTS
// =============================================================================

type TurnStartedPayload struct {
	TurnID  string `json:"turn_id"`
	UserID  string `json:"user_id,omitempty"`
	Content string `json:"content"`
}

func (TurnStartedPayload) EventType() EventType { return EventTurnStarted }

type RouteDecidedPayload struct {
	TurnID         string `json:"turn_id"`
	TaskID         string `json:"task_id"`
	ResolvedTaskID string `json:"resolved_task_id,omitempty"` // set when the keyword fallback picked a task
	Source         string `json:"source"`
	FollowUp       bool   `json:"follow_up,omitempty"`
	Rationale      string `json:"rationale,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

func (RouteDecidedPayload) EventType() EventType { return EventRouteDecided }

type TurnCompletedPayload struct {
	TurnID    string        `json:"turn_id"`
	TaskID    string        `json:"task_id"`
	TurnCount int           `json:"turn_count"`
	Degraded  bool          `json:"degraded,omitempty"` // handler failed, apology returned
	Duration  time.Duration `json:"duration"`
}

func (TurnCompletedPayload) EventType() EventType { return EventTurnCompleted }

type TurnFailedPayload struct {
	TurnID    string `json:"turn_id"`
	Error     string `json:"error"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

func (TurnFailedPayload) EventType() EventType { return EventTurnFailed }

// =============================================================================
// HANDLER EVENTS
// =============================================================================

type HandlerCompletedPayload struct {
	TurnID      string        `json:"turn_id"`
	TaskID      string        `json:"task_id"`
	NewMessages int           `json:"new_messages"`
	Duration    time.Duration `json:"duration"`
}

func (HandlerCompletedPayload) EventType() EventType { return EventHandlerCompleted }

type HandlerFailedPayload struct {
	TurnID   string        `json:"turn_id"`
	TaskID   string        `json:"task_id"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (HandlerFailedPayload) EventType() EventType { return EventHandlerFailed }

// Call phases of ModelCallPayload and ToolCallPayload.
const (
	PhaseStart = "start"
	PhaseEnd   = "end"
	PhaseError = "error"
)

// ModelCallPayload reports one chat model call made by a handler or the router.
type ModelCallPayload struct {
	Phase        string `json:"phase"`
	TurnID       string `json:"turn_id,omitempty"`
	Model        string `json:"model"`
	MessageCount int    `json:"message_count,omitempty"`
	TokensInput  int    `json:"tokens_input,omitempty"`
	TokensOutput int    `json:"tokens_output,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (ModelCallPayload) EventType() EventType { return EventModelCall }

// ToolCallPayload reports one tool invocation inside a handler.
type ToolCallPayload struct {
	Phase     string `json:"phase"`
	TurnID    string `json:"turn_id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (ToolCallPayload) EventType() EventType { return EventToolCall }

// =============================================================================
// STORAGE / REGISTRY EVENTS
// =============================================================================

type CheckpointSavedPayload struct {
	TurnCount    int `json:"turn_count"`
	MessageCount int `json:"message_count"`
}

func (CheckpointSavedPayload) EventType() EventType { return EventCheckpointSaved }

type CheckpointEvictedPayload struct {
	IdleFor time.Duration `json:"idle_for"`
}

func (CheckpointEvictedPayload) EventType() EventType { return EventCheckpointEvicted }

type TasksReloadedPayload struct {
	Registered int `json:"registered"`
	Enabled    int `json:"enabled"`
}

func (TasksReloadedPayload) EventType() EventType { return EventTasksReloaded }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	e := NewTypedEvent(source, payload)
	e.SessionID = sessionID
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if e.Type != result.EventType() {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
