package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"govern/internal/ledger/hashchain"
	pkgerrors "govern/pkg/errors"
)

// FileStore persists receipts under a UTC-date-partitioned layout:
//
//	root/YYYY/MM/DD/<id>.json    receipt body
//	root/YYYY/MM/DD/<id>.sha256  hex digest of the body file
//
// The digest sidecar lets external tooling spot bit rot without parsing
// receipts. Write failures are persistence errors and propagate to the
// caller; an audit trail that silently drops receipts is broken.
type FileStore struct {
	root string

	recorder    *hashchain.Recorder
	executionID string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodePersistence, "create receipt root")
	}
	return &FileStore{root: root}, nil
}

// WithRunLedger chains every persisted receipt file into the per-execution
// run ledger.
func (s *FileStore) WithRunLedger(recorder *hashchain.Recorder, executionID string) *FileStore {
	s.recorder = recorder
	s.executionID = executionID
	return s
}

func (s *FileStore) Append(_ context.Context, receipt Receipt) error {
	ts := receipt.Timestamp.UTC()
	dir := filepath.Join(s.root, fmt.Sprintf("%04d", ts.Year()), fmt.Sprintf("%02d", ts.Month()), fmt.Sprintf("%02d", ts.Day()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "create receipt partition")
	}

	body, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "encode receipt")
	}

	path := filepath.Join(dir, receipt.ID+".json")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "write receipt body")
	}

	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:]) + "\n"
	if err := os.WriteFile(filepath.Join(dir, receipt.ID+".sha256"), []byte(digest), 0o644); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "write receipt digest sidecar")
	}

	if s.recorder.Enabled() {
		if _, err := s.recorder.AppendArtifact(s.executionID, path); err != nil {
			return err
		}
	}
	return nil
}

// Replay streams persisted receipts in insertion (seq) order.
func (s *FileStore) Replay(_ context.Context, fn func(Receipt) error) error {
	var receipts []Receipt
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "walk receipt root")
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "read receipt "+path)
		}
		var receipt Receipt
		if err := json.Unmarshal(raw, &receipt); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeIntegrity, "parse receipt "+path)
		}
		receipts = append(receipts, receipt)
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(receipts, func(i, j int) bool { return receipts[i].Seq < receipts[j].Seq })
	for _, receipt := range receipts {
		if err := fn(receipt); err != nil {
			return err
		}
	}
	return nil
}

// Root returns the store's base directory, for signature passes over the
// receipt tree.
func (s *FileStore) Root() string { return s.root }
