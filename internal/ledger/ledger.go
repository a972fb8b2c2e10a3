package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"govern/internal/ledger/metrics"
	pkgerrors "govern/pkg/errors"
)

// Signer signs receipt hashes when the optional signing tier is enabled.
type Signer interface {
	SignBase64(data []byte) string
}

// ActionRecord is the caller-supplied part of a receipt.
type ActionRecord struct {
	ActionRef string
	Actor     string
	CallID    string
	Result    string
}

// Ledger records receipts and answers queries over them. The chain cursor is
// the one piece of shared mutable state: RecordAction holds the write lock
// across cursor read, hash computation, persistence, and cursor advance, so
// two receipts can never observe the same previousHash.
type Ledger struct {
	store    Store
	chaining bool
	signer   Signer
	clock    func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	cursor   string
	nextSeq  uint64
	receipts []Receipt

	byActor  map[string][]int
	byAction map[string][]int
	byCallID map[string][]int
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithSigner enables the signing tier: each receipt carries a detached
// signature over its hash.
func WithSigner(signer Signer) Option {
	return func(l *Ledger) { l.signer = signer }
}

// WithoutChaining disables hash linking; receipts still carry their own
// hash but no previousHash.
func WithoutChaining() Option {
	return func(l *Ledger) { l.chaining = false }
}

// WithClock overrides the timestamp source for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// New opens a ledger over the given store. If the store can replay persisted
// receipts, the in-memory index and chain cursor are rebuilt from it, making
// the cursor durable across restarts for durable stores. With a
// non-replayable store the cursor is deliberately scoped to the process
// lifetime.
func New(store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "receipt store is required")
	}

	l := &Ledger{
		store:    store,
		chaining: true,
		clock:    time.Now,
		logger:   slog.Default(),
		byActor:  make(map[string][]int),
		byAction: make(map[string][]int),
		byCallID: make(map[string][]int),
	}
	for _, opt := range opts {
		opt(l)
	}

	if replayer, ok := store.(Replayer); ok {
		err := replayer.Replay(context.Background(), func(receipt Receipt) error {
			l.index(receipt)
			l.cursor = receipt.Hash
			l.nextSeq = receipt.Seq + 1
			return nil
		})
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodePersistence, "replay receipt store")
		}
	}

	return l, nil
}

// RecordAction creates, chains, persists, and indexes one receipt.
// Persistence failures propagate; the cursor is only advanced after the
// store accepted the receipt, so a failed write never poisons the chain.
func (l *Ledger) RecordAction(ctx context.Context, record ActionRecord) (Receipt, error) {
	if record.ActionRef == "" || record.Actor == "" {
		return Receipt{}, pkgerrors.New(pkgerrors.CodeBadRequest, "actionRef and actor are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	receipt := Receipt{
		ID:        uuid.NewString(),
		ActionRef: record.ActionRef,
		Actor:     record.Actor,
		CallID:    record.CallID,
		Timestamp: l.clock().UTC(),
		Result:    record.Result,
		Seq:       l.nextSeq,
	}
	if l.chaining {
		receipt.PrevHash = l.cursor
	}

	hash, err := ComputeHash(receipt)
	if err != nil {
		return Receipt{}, err
	}
	receipt.Hash = hash

	if l.signer != nil {
		receipt.Signature = l.signer.SignBase64([]byte(receipt.Hash))
	}

	if err := l.store.Append(ctx, receipt); err != nil {
		l.metrics.IncrementPersistFailure()
		return Receipt{}, pkgerrors.Wrap(err, pkgerrors.CodePersistence, "persist receipt")
	}

	if l.chaining {
		l.cursor = receipt.Hash
	}
	l.nextSeq++
	l.index(receipt)
	l.metrics.IncrementRecorded(record.ActionRef)

	l.logger.Debug("receipt recorded",
		"receipt_id", receipt.ID,
		"action", receipt.ActionRef,
		"actor", receipt.Actor,
		"result", receipt.Result,
	)
	return receipt, nil
}

func (l *Ledger) index(receipt Receipt) {
	idx := len(l.receipts)
	l.receipts = append(l.receipts, receipt)
	l.byActor[receipt.Actor] = append(l.byActor[receipt.Actor], idx)
	l.byAction[receipt.ActionRef] = append(l.byAction[receipt.ActionRef], idx)
	if receipt.CallID != "" {
		l.byCallID[receipt.CallID] = append(l.byCallID[receipt.CallID], idx)
	}
}

// ByActor returns receipts recorded for the given actor, in insertion order.
func (l *Ledger) ByActor(actor string) []Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collect(l.byActor[actor])
}

// ByAction returns receipts recorded for the given action ref.
func (l *Ledger) ByAction(actionRef string) []Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collect(l.byAction[actionRef])
}

// ByCallID returns receipts recorded for the originating call id.
func (l *Ledger) ByCallID(callID string) []Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collect(l.byCallID[callID])
}

// ByTimeRange returns receipts with from <= timestamp < to.
func (l *Ledger) ByTimeRange(from, to time.Time) []Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Receipt
	for _, receipt := range l.receipts {
		if !receipt.Timestamp.Before(from) && receipt.Timestamp.Before(to) {
			out = append(out, receipt)
		}
	}
	return out
}

// ByID returns the receipt with the given id.
func (l *Ledger) ByID(id string) (Receipt, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, receipt := range l.receipts {
		if receipt.ID == id {
			return receipt, true
		}
	}
	return Receipt{}, false
}

func (l *Ledger) collect(indexes []int) []Receipt {
	out := make([]Receipt, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, l.receipts[idx])
	}
	return out
}

// VerifyChain replays every receipt in insertion order from the zero-value
// seed, recomputing each link. Any hash mismatch or broken link fails
// closed.
func (l *Ledger) VerifyChain() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return verifyChain(l.receipts)
}

func verifyChain(receipts []Receipt) (bool, error) {
	cursor := ""
	for _, receipt := range receipts {
		if receipt.PrevHash != cursor {
			return false, nil
		}
		ok, err := VerifyReceipt(receipt)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		cursor = receipt.Hash
	}
	return true, nil
}

// AuditReport is the export surface consumed by external auditors.
type AuditReport struct {
	Count            int       `json:"count"`
	Receipts         []Receipt `json:"receipts"`
	ChainValid       bool      `json:"chainValid"`
	AllReceiptsValid bool      `json:"allReceiptsValid"`
}

// ExportAuditReport verifies the full chain and each receipt in the range.
// Chain validity is a property of the whole ledger, not of the range.
func (l *Ledger) ExportAuditReport(from, to time.Time) (AuditReport, error) {
	chainValid, err := l.VerifyChain()
	if err != nil {
		return AuditReport{}, err
	}

	receipts := l.ByTimeRange(from, to)
	allValid := true
	for _, receipt := range receipts {
		ok, err := VerifyReceipt(receipt)
		if err != nil {
			return AuditReport{}, err
		}
		if !ok {
			allValid = false
			l.metrics.IncrementVerifyFailure()
		}
	}

	return AuditReport{
		Count:            len(receipts),
		Receipts:         receipts,
		ChainValid:       chainValid,
		AllReceiptsValid: allValid,
	}, nil
}
