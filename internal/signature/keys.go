// Package signature signs and verifies ledger artifacts with Ed25519
// detached signatures. Signing is an optional higher assurance tier: base
// receipts are valid unsigned, but any signature that is present must verify.
package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"

	pkgerrors "govern/pkg/errors"
)

// LoadPublicKey reads an Ed25519 public key file. Raw 32-byte, hex, and
// base64 encodings are accepted, with optional "hex:"/"base64:" prefixes.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "read public key file")
	}
	data, err := decodeKeyBytes(raw, ed25519.PublicKeySize)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "decode public key file")
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, pkgerrors.Newf(pkgerrors.CodeConfiguration, "public key is %d bytes, want %d", len(data), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(data), nil
}

// LoadPrivateKey reads an Ed25519 private key file. Raw 64-byte keys, raw
// 32-byte seeds, and hex/base64 encodings of either are accepted.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "read private key file")
	}
	data, err := decodeKeyBytes(raw, ed25519.PrivateKeySize, ed25519.SeedSize)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "decode private key file")
	}

	switch len(data) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(data), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(data), nil
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeConfiguration, "unsupported private key length %d", len(data))
	}
}

func decodeKeyBytes(raw []byte, rawSizes ...int) ([]byte, error) {
	for _, size := range rawSizes {
		if len(raw) == size {
			return raw, nil
		}
	}

	trim := strings.TrimSpace(string(raw))
	if trim == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "empty key file")
	}
	if rest, ok := strings.CutPrefix(trim, "hex:"); ok {
		return hex.DecodeString(rest)
	}
	if rest, ok := strings.CutPrefix(trim, "base64:"); ok {
		return base64.StdEncoding.DecodeString(rest)
	}
	if out, err := hex.DecodeString(trim); err == nil {
		return out, nil
	}
	if out, err := base64.StdEncoding.DecodeString(trim); err == nil {
		return out, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "unrecognized key encoding")
}
