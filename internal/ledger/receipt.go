// Package ledger persists every decision and execution as an immutable,
// hash-chained, queryable receipt. Receipts are never updated or deleted;
// tampering with any persisted field is detectable by recomputing the hash,
// and removing or reordering a receipt breaks the chain from that point on.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"govern/pkg/canonical"
	pkgerrors "govern/pkg/errors"
)

// Receipt is one immutable record of a decided or executed action.
type Receipt struct {
	ID        string    `json:"id"`
	ActionRef string    `json:"actionRef"`
	Actor     string    `json:"actor"`
	CallID    string    `json:"callId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Result    string    `json:"result"`

	// Seq is the insertion position within the ledger's stream. It is not
	// part of the hash; it exists so persisted receipts can be replayed in
	// insertion order when rebuilding the chain cursor.
	Seq uint64 `json:"seq"`

	Hash     string `json:"hash"`
	PrevHash string `json:"previousHash,omitempty"`

	// Signature is the optional base64 detached signature over the hash.
	Signature string `json:"signature,omitempty"`
}

// ComputeHash recomputes the receipt hash from its hashed fields: the
// canonical JSON of id, actionRef, actor, timestamp, result, and
// previousHash. Everything else (seq, signature) is excluded so that adding
// a signature later does not invalidate the hash.
func ComputeHash(r Receipt) (string, error) {
	body := map[string]any{
		"id":        r.ID,
		"actionRef": r.ActionRef,
		"actor":     r.Actor,
		"timestamp": r.Timestamp.UTC().Format(time.RFC3339Nano),
		"result":    r.Result,
	}
	if r.PrevHash != "" {
		body["previousHash"] = r.PrevHash
	}
	encoded, err := canonical.Marshal(body)
	if err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.CodeIntegrity, "canonicalize receipt")
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyReceipt recomputes the hash and compares it to the stored one.
func VerifyReceipt(r Receipt) (bool, error) {
	expected, err := ComputeHash(r)
	if err != nil {
		return false, err
	}
	return expected == r.Hash, nil
}
