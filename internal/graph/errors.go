package graph

import (
	"errors"
	"fmt"
)

// ErrPersistence marks a turn that could not be durably recorded.
var ErrPersistence = errors.New("persistence failure")

// Persistence operations reported by PersistenceError.
const (
	OpLoad   = "load"
	OpSave   = "save"
	OpMemory = "memory"
)

// PersistenceError is returned by Submit when the checkpoint or memory store fails.
// No response is produced for such a turn.
type PersistenceError struct {
	Op        string // OpLoad, OpSave or OpMemory
	SessionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	var what string
	switch e.Op {
	case OpLoad:
		what = "load checkpoint"
	case OpSave:
		what = "save checkpoint"
	case OpMemory:
		what = "access user memory"
	default:
		what = "persist " + e.Op
	}
	return fmt.Sprintf("%s for session %s: %v", what, e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// HandlerError describes a failed handler run. It is reported in TurnResult, never returned.
type HandlerError struct {
	TaskID string
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.TaskID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

var (
	errNotExtension = errors.New("output does not extend the input history")
	errNoResponse   = errors.New("no assistant response")
)
