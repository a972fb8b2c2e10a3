package ledger

import "context"

// Store persists receipt bodies. Implementations must treat receipts as
// append-only: a stored receipt is never updated or deleted. The ledger
// serializes Append calls, so stores do not need their own write locking
// beyond what their medium requires.
type Store interface {
	Append(ctx context.Context, receipt Receipt) error
}

// Replayer is implemented by stores that can stream previously persisted
// receipts back in insertion order. The ledger uses it at open to rebuild
// its in-memory index and chain cursor, which makes the cursor durable
// across restarts for durable stores.
type Replayer interface {
	Replay(ctx context.Context, fn func(Receipt) error) error
}
