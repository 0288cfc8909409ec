// Package events provides an in-memory event bus for turn diagnostics.
package events

import (
	"fmt"
	"sync/atomic"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Turn lifecycle
	EventTurnStarted   EventType = "turn.started"
	EventRouteDecided  EventType = "route.decided"
	EventTurnCompleted EventType = "turn.completed"
	EventTurnFailed    EventType = "turn.failed"

	// Handlers
	EventHandlerCompleted EventType = "handler.completed"
	EventHandlerFailed    EventType = "handler.failed"
	EventModelCall        EventType = "model.call"
	EventToolCall         EventType = "tool.call"

	// Checkpoints
	EventCheckpointSaved   EventType = "checkpoint.saved"
	EventCheckpointEvicted EventType = "checkpoint.evicted"

	// Registry
	EventTasksReloaded EventType = "tasks.reloaded"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceGraph     EventSource = "graph"
	SourceGateway   EventSource = "gateway"
	SourceRetention EventSource = "retention"
	SourceHandler   EventSource = "handler"
)

// Event represents an event in the system.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

var eventSeq atomic.Uint64

// generateEventID returns an id that sorts by publication time within one process.
func generateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), eventSeq.Add(1))
}
