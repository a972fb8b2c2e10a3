package hashchain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRecorder(t *testing.T) {
	t.Run("disabled recorder records nothing", func(t *testing.T) {
		dir := t.TempDir()
		recorder := New(dir, "", false)
		assert.False(t, recorder.Enabled())

		record, err := recorder.AppendArtifact("exec-1", filepath.Join(dir, "missing.json"))
		require.NoError(t, err)
		assert.Empty(t, record.Chain)
		assert.NoFileExists(t, recorder.LedgerPath("exec-1"))
	})

	t.Run("appends linked records per execution", func(t *testing.T) {
		artifacts := t.TempDir()
		ledgerDir := t.TempDir()
		recorder := New(ledgerDir, artifacts, true)

		a := writeArtifact(t, artifacts, "a.json", `{"x":1}`)
		b := writeArtifact(t, artifacts, "b.json", `{"x":2}`)

		first, err := recorder.AppendArtifact("exec-1", a)
		require.NoError(t, err)
		second, err := recorder.AppendArtifact("exec-1", b)
		require.NoError(t, err)

		assert.Empty(t, first.Prev)
		assert.Equal(t, first.Chain, second.Prev)
		assert.Equal(t, "a.json", first.Artifact, "paths are relative to base")

		ok, err := VerifyFile(recorder.LedgerPath("exec-1"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("executions chain independently", func(t *testing.T) {
		artifacts := t.TempDir()
		recorder := New(t.TempDir(), artifacts, true)

		a := writeArtifact(t, artifacts, "a.json", "one")
		b := writeArtifact(t, artifacts, "b.json", "two")

		first, err := recorder.AppendArtifact("exec-a", a)
		require.NoError(t, err)
		other, err := recorder.AppendArtifact("exec-b", b)
		require.NoError(t, err)

		assert.Empty(t, first.Prev)
		assert.Empty(t, other.Prev, "a new execution starts its own chain")
	})

	t.Run("missing artifact is an error", func(t *testing.T) {
		recorder := New(t.TempDir(), "", true)
		_, err := recorder.AppendArtifact("exec-1", "/nonexistent/file.json")
		require.Error(t, err)
	})
}

func TestVerifyFile(t *testing.T) {
	artifacts := t.TempDir()
	ledgerDir := t.TempDir()
	recorder := New(ledgerDir, artifacts, true)

	for _, name := range []string{"a.json", "b.json", "c.json"} {
		path := writeArtifact(t, artifacts, name, name+" content")
		_, err := recorder.AppendArtifact("exec-1", path)
		require.NoError(t, err)
	}
	ledgerPath := recorder.LedgerPath("exec-1")

	t.Run("untouched ledger verifies", func(t *testing.T) {
		ok, err := VerifyFile(ledgerPath)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("deleting a record breaks the chain", func(t *testing.T) {
		raw, err := os.ReadFile(ledgerPath)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
		require.Len(t, lines, 3)

		truncated := lines[0] + "\n" + lines[2] + "\n"
		broken := filepath.Join(t.TempDir(), "broken.jsonl")
		require.NoError(t, os.WriteFile(broken, []byte(truncated), 0o644))

		ok, err := VerifyFile(broken)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("tampering with a sha breaks the chain", func(t *testing.T) {
		raw, err := os.ReadFile(ledgerPath)
		require.NoError(t, err)
		tampered := strings.Replace(string(raw), `"sha":"`, `"sha":"00`, 1)

		path := filepath.Join(t.TempDir(), "tampered.jsonl")
		require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

		ok, err := VerifyFile(path)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("foreign record kinds are skipped", func(t *testing.T) {
		raw, err := os.ReadFile(ledgerPath)
		require.NoError(t, err)
		mixed := `{"ts":"2026-01-01T00:00:00Z","kind":"note","artifact":"","sha":"","chain":""}` + "\n" + string(raw)

		path := filepath.Join(t.TempDir(), "mixed.jsonl")
		require.NoError(t, os.WriteFile(path, []byte(mixed), 0o644))

		ok, err := VerifyFile(path)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
