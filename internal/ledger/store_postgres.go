package ledger

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	pkgerrors "govern/pkg/errors"
)

// PostgresStore persists receipts in a single append-only table. Queries
// still run against the ledger's in-memory index; the table exists for
// durability and for external audit tooling.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const receiptsSchema = `
CREATE TABLE IF NOT EXISTS receipts (
	id         TEXT PRIMARY KEY,
	action_ref TEXT NOT NULL,
	actor      TEXT NOT NULL,
	call_id    TEXT NOT NULL DEFAULT '',
	ts         TIMESTAMPTZ NOT NULL,
	result     TEXT NOT NULL,
	seq        BIGINT NOT NULL UNIQUE,
	hash       TEXT NOT NULL,
	prev_hash  TEXT NOT NULL DEFAULT '',
	signature  TEXT NOT NULL DEFAULT ''
)`

// NewPostgresStore ensures the receipts table exists and returns the store.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, receiptsSchema); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodePersistence, "create receipts table")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Append(ctx context.Context, receipt Receipt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO receipts (id, action_ref, actor, call_id, ts, result, seq, hash, prev_hash, signature)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		receipt.ID, receipt.ActionRef, receipt.Actor, receipt.CallID,
		receipt.Timestamp.UTC(), receipt.Result, receipt.Seq,
		receipt.Hash, receipt.PrevHash, receipt.Signature,
	)
	return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "insert receipt")
}

func (s *PostgresStore) Replay(ctx context.Context, fn func(Receipt) error) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id, action_ref, actor, call_id, ts, result, seq, hash, prev_hash, signature
		 FROM receipts ORDER BY seq`)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "select receipts")
	}
	defer rows.Close()

	for rows.Next() {
		var receipt Receipt
		if err := rows.Scan(
			&receipt.ID, &receipt.ActionRef, &receipt.Actor, &receipt.CallID,
			&receipt.Timestamp, &receipt.Result, &receipt.Seq,
			&receipt.Hash, &receipt.PrevHash, &receipt.Signature,
		); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "scan receipt")
		}
		if err := fn(receipt); err != nil {
			return err
		}
	}
	return pkgerrors.Wrap(rows.Err(), pkgerrors.CodePersistence, "iterate receipts")
}
