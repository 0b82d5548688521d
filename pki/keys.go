package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"

	"github.com/quaypoint/certmill/internal/util"
)

// DefaultKeyBits is the RSA modulus size used when no override is
// configured. Leaf and CA keys use the same size.
const DefaultKeyBits = 4096

// GenerateKeyPair creates a fresh RSA private key. A nil entropy source
// selects crypto/rand.Reader; bits <= 0 selects DefaultKeyBits. Keys are
// never reused across entities, so every call produces new material.
func GenerateKeyPair(entropy io.Reader, bits int) (*rsa.PrivateKey, error) {
	if entropy == nil {
		entropy = rand.Reader
	}
	if bits <= 0 {
		bits = DefaultKeyBits
	}
	key, err := rsa.GenerateKey(entropy, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: generating RSA-%d key: %v", ErrCryptoBackend, bits, err)
	}
	return key, nil
}

// VerifyBackend probes the entropy source before any artifact is
// generated or written. A nil entropy source selects crypto/rand.Reader.
// Failure means no usable crypto backend and is reported as
// ErrBackendUnavailable.
func VerifyBackend(entropy io.Reader) error {
	if entropy == nil {
		entropy = rand.Reader
	}
	probe := make([]byte, 32)
	if _, err := io.ReadFull(entropy, probe); err != nil {
		return fmt.Errorf("%w: reading entropy source: %v", ErrBackendUnavailable, err)
	}
	util.WipeBytes(probe)
	return nil
}
