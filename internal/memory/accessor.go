package memory

import (
	"context"
	"errors"
	"sync"
)

// Accessor scopes a Store to one user for the duration of a handler run.
// It remembers the first store failure so the caller can fail the turn even
// if the handler swallowed the error.
type Accessor struct {
	store  Store
	userID string

	mu  sync.Mutex
	err error
}

// ForUser returns an accessor bound to userID.
func ForUser(store Store, userID string) *Accessor {
	return &Accessor{store: store, userID: userID}
}

// UserID returns the bound user.
func (a *Accessor) UserID() string { return a.userID }

// Load reads the payload of namespace for the bound user.
func (a *Accessor) Load(ctx context.Context, namespace string) ([]byte, error) {
	data, err := a.store.Load(ctx, a.userID, namespace)
	a.record(err)
	return data, err
}

// Save replaces the payload of namespace for the bound user.
func (a *Accessor) Save(ctx context.Context, namespace string, payload []byte) error {
	err := a.store.Save(ctx, a.userID, namespace, payload)
	a.record(err)
	return err
}

// Err returns the first store failure seen by this accessor, if any.
// Invalid keys and context errors are caller mistakes, not store failures.
func (a *Accessor) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Accessor) record(err error) {
	if err == nil || errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
	}
}
