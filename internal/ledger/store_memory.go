package ledger

import (
	"context"
	"sync"
)

// InMemoryStore keeps receipts in insertion order. Used by tests and by
// deployments that only need the in-process query surface.
type InMemoryStore struct {
	mu       sync.RWMutex
	receipts []Receipt
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, receipt Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, receipt)
	return nil
}

func (s *InMemoryStore) Replay(_ context.Context, fn func(Receipt) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, receipt := range s.receipts {
		if err := fn(receipt); err != nil {
			return err
		}
	}
	return nil
}
