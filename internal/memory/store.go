// Package memory provides the cross-session, per-user memory store.
//
// Records are opaque payloads keyed by (user_id, namespace). Save fully
// replaces the previous payload (last write wins); Load of a missing record
// returns a nil payload and no error.
package memory

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks a memory store failure. Callers treat it as a
// persistence failure.
var ErrUnavailable = errors.New("memory store unavailable")

// ErrInvalidKey is returned for an empty user id or namespace.
var ErrInvalidKey = errors.New("invalid memory key")

// PreferencesNamespace is the namespace used by the preferences tool.
const PreferencesNamespace = "preferences"

// Store defines the interface for memory persistence.
type Store interface {
	Save(ctx context.Context, userID, namespace string, payload []byte) error
	Load(ctx context.Context, userID, namespace string) ([]byte, error)
	Namespaces(ctx context.Context, userID string) ([]string, error)
	Close() error
}

func validateKey(userID, namespace string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidKey)
	}
	if namespace == "" {
		return fmt.Errorf("%w: empty namespace", ErrInvalidKey)
	}
	return nil
}
