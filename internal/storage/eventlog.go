// Package storage holds persistence helpers shared by the stores.
package storage

import (
	"log/slog"

	"github.com/dohr-michael/pokus/internal/events"
	"github.com/dohr-michael/pokus/internal/storage/dirstore"
)

const (
	journalFile = "events.jsonl"
	// globalDir holds events without a session. dirstore.EncodeName never
	// yields it, so no session shares it.
	globalDir = "~global"
)

// EventLogger persists bus events to JSONL files organized by session.
type EventLogger struct {
	ds          *dirstore.DirStore
	unsubscribe func()
}

// NewEventLogger creates an EventLogger that subscribes to all bus events
// and appends them to dir/<encoded session id>/events.jsonl.
func NewEventLogger(dir string, bus *events.Bus) *EventLogger {
	el := &EventLogger{ds: dirstore.New(dir, "journal")}
	el.unsubscribe = bus.Subscribe(el.handleEvent)
	return el
}

// Close unsubscribes the logger from the event bus.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
}

func (el *EventLogger) handleEvent(e events.Event) {
	if err := el.ds.AppendJSONL(journalID(e.SessionID), journalFile, e); err != nil {
		slog.Warn("journal event", "session_id", e.SessionID, "type", e.Type, "error", err)
	}
}

// Events returns the journaled events of a session, oldest first.
// Events without a session are read with an empty id.
func (el *EventLogger) Events(sessionID string) ([]events.Event, error) {
	return dirstore.LoadJSONL[events.Event](el.ds, journalID(sessionID), journalFile)
}

// Remove deletes the journal of a session.
func (el *EventLogger) Remove(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return el.ds.RemoveDir(journalID(sessionID))
}

func journalID(sessionID string) string {
	if sessionID == "" {
		return globalDir
	}
	return dirstore.EncodeName(sessionID)
}
