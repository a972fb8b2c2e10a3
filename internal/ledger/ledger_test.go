package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	pkgerrors "govern/pkg/errors"
)

type failingStore struct {
	inner *InMemoryStore
	fail  bool
}

func (s *failingStore) Append(ctx context.Context, receipt Receipt) error {
	if s.fail {
		return fmt.Errorf("disk full")
	}
	return s.inner.Append(ctx, receipt)
}

type LedgerSuite struct {
	suite.Suite
	ctx    context.Context
	ledger *Ledger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	var err error
	s.ledger, err = New(NewInMemoryStore())
	s.Require().NoError(err)
}

func (s *LedgerSuite) record(action, actor string) Receipt {
	receipt, err := s.ledger.RecordAction(s.ctx, ActionRecord{
		ActionRef: action,
		Actor:     actor,
		Result:    "ALLOW/ALLOW",
	})
	s.Require().NoError(err)
	return receipt
}

func (s *LedgerSuite) TestRecordAction() {
	s.Run("fresh receipt verifies", func() {
		receipt := s.record("payments.charge.v1", "svc-billing")
		s.NotEmpty(receipt.ID)
		s.NotEmpty(receipt.Hash)

		ok, err := VerifyReceipt(receipt)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("missing actionRef is rejected", func() {
		_, err := s.ledger.RecordAction(s.ctx, ActionRecord{Actor: "svc"})
		s.Require().Error(err)
		s.Equal(pkgerrors.CodeBadRequest, pkgerrors.CodeOf(err))
	})

	s.Run("receipts link through previousHash", func() {
		first := s.record("a.v1", "svc")
		second := s.record("b.v1", "svc")
		s.Equal(first.Hash, second.PrevHash)
	})
}

func (s *LedgerSuite) TestTamperDetection() {
	receipt := s.record("payments.charge.v1", "svc-billing")

	tampered := receipt
	tampered.Result = "DENY/SANCTIONED_PARTY"

	ok, err := VerifyReceipt(tampered)
	s.Require().NoError(err)
	s.False(ok, "mutating any hashed field must invalidate the receipt")

	tampered = receipt
	tampered.Actor = "someone-else"
	ok, err = VerifyReceipt(tampered)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *LedgerSuite) TestVerifyChain() {
	s.Run("untouched ledger verifies", func() {
		for i := 0; i < 5; i++ {
			s.record(fmt.Sprintf("action.%d.v1", i), "svc")
		}
		ok, err := s.ledger.VerifyChain()
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("deleting a receipt breaks the chain", func() {
		for i := 0; i < 4; i++ {
			s.record(fmt.Sprintf("del.%d.v1", i), "svc")
		}

		all := append([]Receipt(nil), s.ledger.receipts...)
		truncated := append(append([]Receipt(nil), all[:2]...), all[3:]...)
		ok, err := verifyChain(truncated)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("reordering receipts breaks the chain", func() {
		all := append([]Receipt(nil), s.ledger.receipts...)
		s.Require().GreaterOrEqual(len(all), 2)
		all[0], all[1] = all[1], all[0]
		ok, err := verifyChain(all)
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *LedgerSuite) TestPersistenceFailure() {
	store := &failingStore{inner: NewInMemoryStore()}
	l, err := New(store)
	s.Require().NoError(err)

	first, err := l.RecordAction(s.ctx, ActionRecord{ActionRef: "a.v1", Actor: "svc", Result: "ALLOW/ALLOW"})
	s.Require().NoError(err)

	store.fail = true
	_, err = l.RecordAction(s.ctx, ActionRecord{ActionRef: "b.v1", Actor: "svc", Result: "ALLOW/ALLOW"})
	s.Require().Error(err, "persistence failures must propagate")
	s.Equal(pkgerrors.CodePersistence, pkgerrors.CodeOf(err))

	// A failed write never advances the cursor: the next successful receipt
	// still links to the last persisted one.
	store.fail = false
	next, err := l.RecordAction(s.ctx, ActionRecord{ActionRef: "c.v1", Actor: "svc", Result: "ALLOW/ALLOW"})
	s.Require().NoError(err)
	s.Equal(first.Hash, next.PrevHash)

	ok, err := l.VerifyChain()
	s.Require().NoError(err)
	s.True(ok)
}

func (s *LedgerSuite) TestQueries() {
	s.record("payments.charge.v1", "svc-billing")
	s.record("reports.read.v1", "svc-reporter")
	withCall, err := s.ledger.RecordAction(s.ctx, ActionRecord{
		ActionRef: "payments.charge.v1",
		Actor:     "svc-billing",
		CallID:    "call-7",
		Result:    "APPROVAL_REQUIRED/HIGH_VALUE_CHARGE",
	})
	s.Require().NoError(err)

	s.Run("by actor", func() {
		s.Len(s.ledger.ByActor("svc-billing"), 2)
		s.Len(s.ledger.ByActor("nobody"), 0)
	})

	s.Run("by action", func() {
		s.Len(s.ledger.ByAction("payments.charge.v1"), 2)
	})

	s.Run("by call id", func() {
		got := s.ledger.ByCallID("call-7")
		s.Require().Len(got, 1)
		s.Equal(withCall.ID, got[0].ID)
	})

	s.Run("by id", func() {
		got, ok := s.ledger.ByID(withCall.ID)
		s.Require().True(ok)
		s.Equal(withCall.Hash, got.Hash)

		_, ok = s.ledger.ByID("missing")
		s.False(ok)
	})

	s.Run("by time range", func() {
		now := time.Now().UTC()
		s.NotEmpty(s.ledger.ByTimeRange(now.Add(-time.Hour), now.Add(time.Hour)))
		s.Empty(s.ledger.ByTimeRange(now.Add(time.Hour), now.Add(2*time.Hour)))
	})
}

func (s *LedgerSuite) TestReplayRebuildsCursor() {
	store := NewInMemoryStore()
	l, err := New(store)
	s.Require().NoError(err)

	var last Receipt
	for i := 0; i < 3; i++ {
		last, err = l.RecordAction(s.ctx, ActionRecord{
			ActionRef: fmt.Sprintf("replay.%d.v1", i),
			Actor:     "svc",
			Result:    "ALLOW/ALLOW",
		})
		s.Require().NoError(err)
	}

	// Reopen over the same store: the chain continues where it left off.
	reopened, err := New(store)
	s.Require().NoError(err)

	next, err := reopened.RecordAction(s.ctx, ActionRecord{
		ActionRef: "replay.next.v1",
		Actor:     "svc",
		Result:    "ALLOW/ALLOW",
	})
	s.Require().NoError(err)
	s.Equal(last.Hash, next.PrevHash)
	s.Equal(last.Seq+1, next.Seq)

	ok, err := reopened.VerifyChain()
	s.Require().NoError(err)
	s.True(ok)
}

func (s *LedgerSuite) TestWithoutChaining() {
	l, err := New(NewInMemoryStore(), WithoutChaining())
	s.Require().NoError(err)

	a, err := l.RecordAction(s.ctx, ActionRecord{ActionRef: "a.v1", Actor: "svc", Result: "ALLOW/ALLOW"})
	s.Require().NoError(err)
	b, err := l.RecordAction(s.ctx, ActionRecord{ActionRef: "b.v1", Actor: "svc", Result: "ALLOW/ALLOW"})
	s.Require().NoError(err)

	s.Empty(a.PrevHash)
	s.Empty(b.PrevHash)

	ok, err := VerifyReceipt(b)
	s.Require().NoError(err)
	s.True(ok, "unchained receipts still carry their own hash")
}

func (s *LedgerSuite) TestExportAuditReport() {
	for i := 0; i < 3; i++ {
		s.record(fmt.Sprintf("export.%d.v1", i), "svc")
	}

	now := time.Now().UTC()
	report, err := s.ledger.ExportAuditReport(now.Add(-time.Hour), now.Add(time.Hour))
	s.Require().NoError(err)

	s.Equal(3, report.Count)
	s.True(report.ChainValid)
	s.True(report.AllReceiptsValid)
	s.Len(report.Receipts, 3)
}

func (s *LedgerSuite) TestConcurrentRecording() {
	const writers = 8
	const perWriter = 25

	done := make(chan error, writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			for i := 0; i < perWriter; i++ {
				_, err := s.ledger.RecordAction(s.ctx, ActionRecord{
					ActionRef: fmt.Sprintf("conc.%d.v1", w),
					Actor:     "svc",
					Result:    "ALLOW/ALLOW",
				})
				if err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(w)
	}
	for w := 0; w < writers; w++ {
		s.Require().NoError(<-done)
	}

	ok, err := s.ledger.VerifyChain()
	s.Require().NoError(err)
	s.True(ok, "concurrent writers must never corrupt the chain")
}
