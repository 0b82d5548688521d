package pki

import (
	"crypto"
	"crypto/x509"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/quaypoint/certmill/internal/util"
)

// Bundle pairs an issued certificate with its private key. The PKCS#8
// PEM of the key is sealed in a memguard Enclave so it is encrypted at
// rest in memory between generation and the moment it is written to
// disk. Call Destroy() when done to drop sensitive key material.
type Bundle struct {
	// Cert is the parsed issued certificate.
	Cert *x509.Certificate

	// CertPEM is the PEM encoding of Cert, ready for disk.
	CertPEM []byte

	// CACertPEM is the issuing CA's certificate PEM. It is set on leaf
	// bundles so downstream consumers can build a trust chain; on the
	// CA's own bundle it is nil.
	CACertPEM []byte

	signer    crypto.Signer
	keyPEM    *memguard.Enclave
	destroyed bool
}

// newBundle seals keyPEM into an enclave. memguard.NewEnclave wipes the
// slice it is given, so callers must hand over their only copy.
func newBundle(cert *x509.Certificate, certPEM, keyPEM []byte, signer crypto.Signer) *Bundle {
	return &Bundle{
		Cert:    cert,
		CertPEM: certPEM,
		signer:  signer,
		keyPEM:  memguard.NewEnclave(keyPEM),
	}
}

// LoadBundle reconstructs a bundle from PEM-encoded certificate and
// private key, for callers reopening artifacts from disk. The keyPEM
// slice is copied into an enclave and the copy wiped; the caller still
// owns (and should wipe) the original.
func LoadBundle(certPEM, keyPEM []byte) (*Bundle, error) {
	cert, err := DecodeCertPEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("bundle certificate: %w", err)
	}
	key, err := DecodeKeyPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("bundle private key: %w", err)
	}
	return newBundle(cert, util.CopyBytes(certPEM), util.CopyBytes(keyPEM), key), nil
}

// Signer returns the bundle's private key for signing operations.
func (b *Bundle) Signer() (crypto.Signer, error) {
	if b == nil || b.destroyed || b.signer == nil {
		return nil, ErrBundleDestroyed
	}
	return b.signer, nil
}

// KeyPEM opens the sealed private-key PEM. The caller must Destroy the
// returned buffer as soon as the bytes have been consumed.
func (b *Bundle) KeyPEM() (*memguard.LockedBuffer, error) {
	if b == nil || b.destroyed || b.keyPEM == nil {
		return nil, ErrBundleDestroyed
	}
	buf, err := b.keyPEM.Open()
	if err != nil {
		return nil, fmt.Errorf("opening key enclave: %w", err)
	}
	return buf, nil
}

// Destroy drops the bundle's private key material. The certificate
// fields stay readable; Signer and KeyPEM fail afterwards.
func (b *Bundle) Destroy() {
	if b == nil || b.destroyed {
		return
	}
	b.signer = nil
	b.keyPEM = nil
	b.destroyed = true
}
