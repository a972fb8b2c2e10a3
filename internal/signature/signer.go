package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"

	pkgerrors "govern/pkg/errors"
)

// SidecarSuffix is appended to an artifact path to name its detached
// signature file.
const SidecarSuffix = ".sig"

// Signer produces detached signatures over artifact bytes.
type Signer struct {
	key ed25519.PrivateKey
}

func NewSigner(key ed25519.PrivateKey) *Signer {
	return &Signer{key: key}
}

// Sign returns the detached signature over data.
func (s *Signer) Sign(data []byte) []byte {
	return ed25519.Sign(s.key, data)
}

// SignBase64 returns the signature in sidecar (base64) encoding.
func (s *Signer) SignBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(s.Sign(data))
}

// WriteSidecar signs the artifact at path and writes `<path>.sig`.
func (s *Signer) WriteSidecar(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "read artifact for signing")
	}
	if err := os.WriteFile(path+SidecarSuffix, []byte(s.SignBase64(data)), 0o644); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "write signature sidecar")
	}
	return nil
}

// PublicKey returns the signer's verification key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}
