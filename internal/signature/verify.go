package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "govern/pkg/errors"
)

// BadSignature names one artifact whose sidecar failed to verify.
type BadSignature struct {
	Artifact string
	Reason   string
}

// VerifyResult is the structured outcome of a signature pass.
type VerifyResult struct {
	Checked int
	Bad     []BadSignature
}

func (r VerifyResult) OK() bool { return len(r.Bad) == 0 }

func (r VerifyResult) Report() string {
	if r.OK() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "signature verification failed: %d of %d signed artifacts invalid\n", len(r.Bad), r.Checked)
	for _, bad := range r.Bad {
		fmt.Fprintf(&b, "  %s: %s\n", bad.Artifact, bad.Reason)
	}
	return b.String()
}

// Verify checks a detached signature over artifact bytes.
func Verify(publicKey ed25519.PublicKey, data, sig []byte) bool {
	return ed25519.Verify(publicKey, data, sig)
}

// VerifyTree walks root and verifies every artifact that has a `.sig`
// sidecar against the fixed public key. A present-but-invalid signature is
// fatal to the pass. If no signatures exist anywhere under root, the pass
// succeeds: signing is an optional tier, not mandatory for base receipts.
func VerifyTree(root string, publicKey ed25519.PublicKey) (VerifyResult, error) {
	var result VerifyResult
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "walk signature tree")
		}
		if d.IsDir() || !strings.HasSuffix(path, SidecarSuffix) {
			return nil
		}

		artifact := strings.TrimSuffix(path, SidecarSuffix)
		rel, relErr := filepath.Rel(root, artifact)
		if relErr != nil {
			rel = artifact
		}
		result.Checked++

		ok, reason := verifySidecar(artifact, path, publicKey)
		if !ok {
			result.Bad = append(result.Bad, BadSignature{Artifact: filepath.ToSlash(rel), Reason: reason})
		}
		return nil
	})
	if err != nil {
		return VerifyResult{}, err
	}
	return result, nil
}

func verifySidecar(artifact, sidecar string, publicKey ed25519.PublicKey) (bool, string) {
	data, err := os.ReadFile(artifact)
	if err != nil {
		return false, "artifact unreadable: " + err.Error()
	}
	encoded, err := os.ReadFile(sidecar)
	if err != nil {
		return false, "sidecar unreadable: " + err.Error()
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return false, "sidecar is not base64: " + err.Error()
	}
	if !Verify(publicKey, data, sig) {
		return false, "signature does not verify"
	}
	return true, ""
}
