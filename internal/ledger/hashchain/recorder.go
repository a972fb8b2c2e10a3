// Package hashchain chains run artifacts into per-execution append-only
// ledger files. It is the general primitive behind the receipt ledger's
// linking, reused by run pipelines that want tamper evidence over emitted
// files. Recording is opt-in and disabled by default.
package hashchain

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "govern/pkg/errors"
)

// RecordKind tags hash-chain records in the run ledger, which may carry
// other record kinds from the surrounding pipeline.
const RecordKind = "hash_chain"

// Record is one line of the per-execution ledger file.
type Record struct {
	TS       string `json:"ts"`
	Kind     string `json:"kind"`
	Artifact string `json:"artifact"`
	SHA      string `json:"sha"`
	Prev     string `json:"prev,omitempty"`
	Chain    string `json:"chain"`
}

// Recorder appends artifact records to per-execution ledger files. The chain
// cursor is kept per execution id, not per recorder instance, so multiple
// executions can interleave safely. Cursors live for the process lifetime;
// each execution's ledger file is the durable record.
type Recorder struct {
	enabled bool
	dir     string
	base    string

	mu   sync.Mutex
	prev map[string]string
}

// New creates a recorder writing under dir. Artifact paths in records are
// made relative to base when possible. A disabled recorder records nothing.
func New(dir, base string, enabled bool) *Recorder {
	return &Recorder{
		enabled: enabled,
		dir:     dir,
		base:    base,
		prev:    make(map[string]string),
	}
}

// Enabled reports whether the recorder is active.
func (r *Recorder) Enabled() bool { return r != nil && r.enabled }

// LedgerPath names the append-only ledger file for an execution.
func (r *Recorder) LedgerPath(executionID string) string {
	return filepath.Join(r.dir, executionID+".jsonl")
}

// AppendArtifact hashes the artifact, links it to the execution's previous
// chain hash, and appends the record. No-op when disabled.
func (r *Recorder) AppendArtifact(executionID, path string) (Record, error) {
	if !r.Enabled() {
		return Record{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, pkgerrors.Wrap(err, pkgerrors.CodePersistence, "read artifact")
	}
	artifactSum := sha256.Sum256(data)
	artifactSha := hex.EncodeToString(artifactSum[:])

	rel := path
	if r.base != "" {
		if relPath, relErr := filepath.Rel(r.base, path); relErr == nil && !strings.HasPrefix(relPath, "..") {
			rel = filepath.ToSlash(relPath)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.prev[executionID]
	record := Record{
		TS:       time.Now().UTC().Format(time.RFC3339Nano),
		Kind:     RecordKind,
		Artifact: rel,
		SHA:      artifactSha,
		Prev:     prev,
		Chain:    chainHash(prev, rel, artifactSha),
	}

	if err := r.append(executionID, record); err != nil {
		return Record{}, err
	}
	r.prev[executionID] = record.Chain
	return record, nil
}

func chainHash(prev, relPath, artifactSha string) string {
	sum := sha256.Sum256([]byte(prev + relPath + artifactSha))
	return hex.EncodeToString(sum[:])
}

func (r *Recorder) append(executionID string, record Record) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "create run ledger dir")
	}
	f, err := os.OpenFile(r.LedgerPath(executionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "open run ledger")
	}
	defer f.Close()

	line, err := json.Marshal(record)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "encode run ledger record")
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "append run ledger record")
	}
	return nil
}

// VerifyFile replays one execution ledger, recomputing each link. Records of
// other kinds are skipped. Any mismatch fails closed.
func VerifyFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "open run ledger")
	}
	defer f.Close()

	cursor := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return false, pkgerrors.Wrap(err, pkgerrors.CodeIntegrity, "parse run ledger record")
		}
		if record.Kind != RecordKind {
			continue
		}
		if record.Prev != cursor {
			return false, nil
		}
		if record.Chain != chainHash(record.Prev, record.Artifact, record.SHA) {
			return false, nil
		}
		cursor = record.Chain
	}
	if err := scanner.Err(); err != nil {
		return false, pkgerrors.Wrap(err, pkgerrors.CodeIntegrity, "scan run ledger")
	}
	return true, nil
}
