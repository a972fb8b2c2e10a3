// Package approval records human approvals for governed action instances.
// The decision engine consults these records: an action whose registry
// entries declare approval codes evaluates to APPROVAL_REQUIRED until an
// approval exists for that instance.
package approval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"govern/internal/platform/secrets"
	pkgerrors "govern/pkg/errors"
)

// Record is one granted approval. An action instance is identified by
// (action, callID).
type Record struct {
	Action    string
	CallID    string
	Approver  string
	Code      string
	GrantedAt time.Time
}

// Store persists approval records.
type Store interface {
	Put(ctx context.Context, record Record) error
	Get(ctx context.Context, action, callID string) (Record, bool, error)
}

// InMemoryStore keeps approvals in memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

func key(action, callID string) string { return action + "\x00" + callID }

func (s *InMemoryStore) Put(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key(record.Action, record.CallID)] = record
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, action, callID string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key(action, callID)]
	return record, ok, nil
}

// Service grants and checks approvals.
type Service struct {
	store      Store
	secretHash string
	clock      func() time.Time
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithApproverSecret requires grant callers to present a token matching the
// given bcrypt hash.
func WithApproverSecret(bcryptHash string) Option {
	return func(s *Service) { s.secretHash = bcryptHash }
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "approval store is required")
	}
	svc := &Service{
		store:  store,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// VerifyApprover checks the presented approver token against the configured
// hash. With no hash configured every token is accepted.
func (s *Service) VerifyApprover(token string) error {
	if s.secretHash == "" {
		return nil
	}
	return secrets.Verify(token, s.secretHash)
}

// Grant records an approval for one action instance.
func (s *Service) Grant(ctx context.Context, action, callID, approver, code string) error {
	if action == "" || callID == "" {
		return pkgerrors.New(pkgerrors.CodeBadRequest, "action and callId are required")
	}
	record := Record{
		Action:    action,
		CallID:    callID,
		Approver:  approver,
		Code:      code,
		GrantedAt: s.clock().UTC(),
	}
	if err := s.store.Put(ctx, record); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "store approval")
	}
	s.logger.Info("approval granted", "action", action, "call_id", callID, "approver", approver)
	return nil
}

// Granted reports whether an approval exists for the action instance.
func (s *Service) Granted(ctx context.Context, action, callID string) (bool, error) {
	_, ok, err := s.store.Get(ctx, action, callID)
	if err != nil {
		return false, pkgerrors.Wrap(err, pkgerrors.CodePersistence, "lookup approval")
	}
	return ok, nil
}
