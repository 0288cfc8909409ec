package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
)

type recordKey struct {
	userID    string
	namespace string
}

// MemStore is a process-local Store. It is constructed explicitly and never
// shared implicitly between instances.
type MemStore struct {
	mu      sync.RWMutex
	records map[recordKey][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[recordKey][]byte)}
}

func (s *MemStore) Save(ctx context.Context, userID, namespace string, payload []byte) error {
	if err := validateKey(userID, namespace); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{userID, namespace}] = slices.Clone(payload)
	return nil
}

func (s *MemStore) Load(ctx context.Context, userID, namespace string) ([]byte, error) {
	if err := validateKey(userID, namespace); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records[recordKey{userID, namespace}]), nil
}

func (s *MemStore) Namespaces(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []string
	for k := range s.records {
		if k.userID == userID {
			result = append(result, k.namespace)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (s *MemStore) Close() error { return nil }
