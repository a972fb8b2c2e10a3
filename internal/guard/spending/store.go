package spending

import (
	"context"
	"sync"
	"time"
)

// Record is one unit of real spend by an actor through a tool.
type Record struct {
	Actor     string
	Tool      string
	CostCents int64
	Timestamp time.Time
}

// Store persists spending records. Append-only.
type Store interface {
	Append(ctx context.Context, record Record) error

	// SumSince returns the total cents spent by (actor, tool) with
	// timestamp >= since.
	SumSince(ctx context.Context, actor, tool string, since time.Time) (int64, error)

	// SumToolSince returns the total cents spent through the tool by any
	// actor with timestamp >= since.
	SumToolSince(ctx context.Context, tool string, since time.Time) (int64, error)
}

// InMemoryStore keeps spending records in memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryStore) SumSince(_ context.Context, actor, tool string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, record := range s.records {
		if record.Actor == actor && record.Tool == tool && !record.Timestamp.Before(since) {
			sum += record.CostCents
		}
	}
	return sum, nil
}

func (s *InMemoryStore) SumToolSince(_ context.Context, tool string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, record := range s.records {
		if record.Tool == tool && !record.Timestamp.Before(since) {
			sum += record.CostCents
		}
	}
	return sum, nil
}
