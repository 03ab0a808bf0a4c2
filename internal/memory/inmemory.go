package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a simple in-process memory store for local/dev use.
type InMemoryStore struct {
	mu            sync.RWMutex
	nextID        int64
	turns         map[string][]Turn
	conversations map[string]Conversation
	now           func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns:         make(map[string][]Turn),
		conversations: make(map[string]Conversation),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, turn Turn) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	turn.ID = s.nextID
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}
	s.turns[turn.UserID] = append(s.turns[turn.UserID], turn)
	return turn, nil
}

func (s *InMemoryStore) TurnsAfter(_ context.Context, userID string, afterID int64) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[userID]
	// Turns are appended in ID order, so the tail past afterID is contiguous.
	i := sort.Search(len(arr), func(i int) bool { return arr[i].ID > afterID })
	out := make([]Turn, len(arr)-i)
	copy(out, arr[i:])
	return out, nil
}

func (s *InMemoryStore) RecentVisible(_ context.Context, userID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[userID]
	if limit <= 0 {
		limit = len(arr)
	}
	out := make([]Turn, 0, limit)
	for i := len(arr) - 1; i >= 0 && len(out) < limit; i-- {
		if arr[i].DeletedAt == nil {
			out = append(out, arr[i])
		}
	}
	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *InMemoryStore) SoftDeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	arr := s.turns[userID]
	for i := range arr {
		if arr[i].DeletedAt == nil {
			ts := now
			arr[i].DeletedAt = &ts
		}
	}
	return nil
}

func (s *InMemoryStore) GetConversation(_ context.Context, userID string) (Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[userID]
	return conv, ok, nil
}

func (s *InMemoryStore) CreateConversation(_ context.Context, conv Conversation) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[conv.UserID]; ok {
		return existing, nil
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = s.now()
	}
	s.conversations[conv.UserID] = conv
	return conv, nil
}

func (s *InMemoryStore) AdvanceMemory(_ context.Context, next Conversation, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.conversations[next.UserID]
	if !ok {
		current = Conversation{UserID: next.UserID}
	}
	if current.Watermark != expected {
		return ErrStaleWatermark
	}
	if next.Watermark < current.Watermark {
		return fmt.Errorf("memory: watermark cannot move backwards (%d < %d)", next.Watermark, current.Watermark)
	}
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = s.now()
	}
	s.conversations[next.UserID] = next
	return nil
}

func (s *InMemoryStore) UsersWithPendingTurns(_ context.Context, minPending int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []string
	for userID, arr := range s.turns {
		watermark := s.conversations[userID].Watermark
		pending := 0
		for _, t := range arr {
			if t.ID > watermark {
				pending++
			}
		}
		if pending >= minPending && pending > 0 {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (s *InMemoryStore) Close() error { return nil }
