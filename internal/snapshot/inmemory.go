package snapshot

import (
	"context"
	"sync"
)

// InMemoryStore keeps encoded snapshots in process for local/dev use.
// Values are stored encoded so callers never share slices with the store.
type InMemoryStore struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[string][]byte)}
}

func (s *InMemoryStore) Load(_ context.Context, userID string) (Snapshot, bool, error) {
	s.mu.Lock()
	raw, ok := s.items[userID]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, false, nil
	}
	snap, err := decode(raw)
	if err != nil {
		return Snapshot{}, true, err
	}
	return snap, true, nil
}

func (s *InMemoryStore) Save(_ context.Context, snap Snapshot) error {
	raw, err := encode(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[snap.UserID] = raw
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, userID string, fn func(*Snapshot)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.items[userID]
	if !ok {
		return false, nil
	}
	snap, err := decode(raw)
	if err != nil {
		return true, err
	}
	fn(&snap)
	next, err := encode(snap)
	if err != nil {
		return true, err
	}
	s.items[userID] = next
	return true, nil
}

func (s *InMemoryStore) Close() error { return nil }
