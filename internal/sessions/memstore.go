package sessions

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemStore keeps encoded checkpoints in memory. Snapshots are stored
// serialized so callers can never alias stored state.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore creates an empty in-memory checkpoint store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Load(ctx context.Context, id string) (*Checkpoint, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decodeCheckpoint(data)
}

func (s *MemStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := validateID(cp.Session.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[cp.Session.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Summary, 0, len(s.data))
	for _, data := range s.data {
		cp, err := decodeCheckpoint(data)
		if err != nil {
			continue
		}
		result = append(result, cp.Summarize())
	}
	sortSummaries(result)
	return result, nil
}

func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Close() error { return nil }

// sortSummaries orders by UpdatedAt descending, then id.
func sortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].UpdatedAt.After(s[j].UpdatedAt)
		}
		return s[i].ID < s[j].ID
	})
}
