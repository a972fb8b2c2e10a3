// Package idempotency blocks duplicate execution of non-idempotent effects
// under retry. The claim step is a single atomic check-and-set; two callers
// racing on the same operation id see exactly one winner.
package idempotency

import (
	"context"
	"sync"

	pkgerrors "govern/pkg/errors"
)

// ErrDuplicate is returned when an operation id was already executed or is
// currently executing.
var ErrDuplicate = pkgerrors.New(pkgerrors.CodeConflict, "operation already executed")

// Store is the atomic claim state for operation ids. Claim must be a single
// atomic check-and-set. Release undoes a claim whose effect failed, so the
// operation stays retryable; a completed claim is permanent.
type Store interface {
	Claim(ctx context.Context, operationID string) (won bool, err error)
	Complete(ctx context.Context, operationID string) error
	Release(ctx context.Context, operationID string) error
}

// InMemoryStore tracks claims in process memory.
type InMemoryStore struct {
	mu     sync.Mutex
	states map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]struct{})}
}

func (s *InMemoryStore) Claim(_ context.Context, operationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.states[operationID]; taken {
		return false, nil
	}
	s.states[operationID] = struct{}{}
	return true, nil
}

func (s *InMemoryStore) Complete(_ context.Context, operationID string) error {
	return nil
}

func (s *InMemoryStore) Release(_ context.Context, operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, operationID)
	return nil
}

// Guard wraps effects with exactly-once semantics per operation id.
type Guard struct {
	store Store
}

func NewGuard(store Store) (*Guard, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "idempotency store is required")
	}
	return &Guard{store: store}, nil
}

// Check reports whether the operation id is still executable. Purely
// advisory; Run is the authoritative path.
func (g *Guard) Check(ctx context.Context, operationID string) (executable bool, err error) {
	won, err := g.store.Claim(ctx, operationID)
	if err != nil {
		return false, err
	}
	if won {
		// Undo the probe claim; Check must not consume the operation.
		if err := g.store.Release(ctx, operationID); err != nil {
			return false, err
		}
	}
	return won, nil
}

// Run executes fn at most once for the operation id. A duplicate invocation
// returns ErrDuplicate without running fn. If fn fails, the claim is
// released so a retry can run it again; once fn succeeds, the operation is
// permanently blocked.
func (g *Guard) Run(ctx context.Context, operationID string, fn func(context.Context) error) error {
	if operationID == "" {
		return pkgerrors.New(pkgerrors.CodeBadRequest, "operation id is required")
	}

	won, err := g.store.Claim(ctx, operationID)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "claim operation")
	}
	if !won {
		return ErrDuplicate
	}

	if err := fn(ctx); err != nil {
		if releaseErr := g.store.Release(ctx, operationID); releaseErr != nil {
			return pkgerrors.Wrap(releaseErr, pkgerrors.CodePersistence, "release failed operation claim")
		}
		return err
	}

	return pkgerrors.Wrap(g.store.Complete(ctx, operationID), pkgerrors.CodePersistence, "complete operation claim")
}
