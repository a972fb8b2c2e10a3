package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Send(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestEmitNonBlocking(t *testing.T) {
	pub := NewPublisher(1, nil)

	pub.Emit(Event{Category: CategoryDecision, Actor: "agent-1", Action: "reports.monthly.v1"})
	// Inbox is full now; this emit must drop rather than block.
	done := make(chan struct{})
	go func() {
		pub.Emit(Event{Category: CategoryDecision, Actor: "agent-1", Action: "reports.monthly.v1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full inbox")
	}

	assert.Len(t, pub.inbox, 1)
}

func TestEmitStampsTimestamp(t *testing.T) {
	pub := NewPublisher(1, nil)
	pub.Emit(Event{Category: CategoryGate, Actor: "agent-1"})

	event := <-pub.Inbox()
	assert.False(t, event.Timestamp.IsZero())
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, time.Minute)
}

func TestEmitNilPublisher(t *testing.T) {
	var pub *Publisher
	// Audit is optional wiring; a nil publisher must be a no-op.
	pub.Emit(Event{Category: CategoryDecision})
}

func TestWorkerPersistsAndFansOut(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(8, nil)
	sink := &recordingSink{}
	worker := NewWorker(store, pub.Inbox(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- worker.Run(ctx) }()

	pub.Emit(Event{Category: CategoryDecision, Actor: "agent-1", Action: "payments.charge.v1", Decision: "ALLOW", Code: "ALLOW"})
	pub.Emit(Event{Category: CategoryLedger, Actor: "agent-2", Action: "users.delete.v1", Decision: "DENY", Code: "DESTRUCTIVE_OP"})

	require.Eventually(t, func() bool {
		return len(store.All()) == 2 && len(sink.all()) == 2
	}, time.Second, 10*time.Millisecond)

	byActor, err := store.ListByActor("agent-1")
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "payments.charge.v1", byActor[0].Action)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestWorkerSinkFailureIsNonFatal(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(8, nil)
	sink := &recordingSink{err: errors.New("broker unavailable")}
	worker := NewWorker(store, pub.Inbox(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	pub.Emit(Event{Category: CategoryGate, Actor: "agent-1", Action: "payments.charge.v1"})

	// The event still lands in the store even though the sink errors.
	require.Eventually(t, func() bool {
		return len(store.All()) == 1
	}, time.Second, 10*time.Millisecond)
}
