package sessions

import (
	"context"
	"errors"
)

// Store persists checkpoints keyed by session id. Save replaces the previous
// snapshot atomically: a concurrent Load sees either the old or the new one.
type Store interface {
	Load(ctx context.Context, id string) (*Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// ErrInvalidID is returned for an empty session id.
var ErrInvalidID = errors.New("invalid session id")

func validateID(id string) error {
	if id == "" {
		return ErrInvalidID
	}
	return nil
}
