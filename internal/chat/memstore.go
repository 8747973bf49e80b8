package chat

import (
	"context"
	"sync"
)

// MemoryStore keeps per-event message history in process. Positions are the
// slice index, so the sequence starts at 0 and has no gaps by construction.
type MemoryStore struct {
	mu      sync.RWMutex
	byEvent map[string][]Message
}

// NewMemoryStore creates an empty message store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEvent: make(map[string][]Message)}
}

func (s *MemoryStore) Append(ctx context.Context, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.Position = uint64(len(s.byEvent[msg.EventID]))
	s.byEvent[msg.EventID] = append(s.byEvent[msg.EventID], msg)
	return msg, nil
}

func (s *MemoryStore) ByEvent(ctx context.Context, eventID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.byEvent[eventID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Purge(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byEvent, eventID)
	return nil
}
