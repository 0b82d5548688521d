// Package pki implements the certificate operations behind the certmill
// pipeline: bootstrapping a self-signed root authority, issuing server
// and client leaf certificates under an extension policy, and verifying
// the resulting chain. All operations work on in-memory material;
// persistence belongs to the store.
package pki

import (
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"io"
	"math/big"
	"time"
)

// Default validity windows, in days.
const (
	DefaultCAValidityDays   = 3650
	DefaultLeafValidityDays = 365
)

// caSerial is the serial number of the self-signed root certificate.
// Leaf serials are drawn from the store counter, which starts above it.
const caSerial = 1

// AuthorityConfig controls Bootstrap.
type AuthorityConfig struct {
	// DN is the authority's subject. Its CommonName is replaced by
	// AuthorityName, or by "<Organization> Cache CA" when AuthorityName
	// is empty and an organization is set.
	DN DistinguishedName

	// AuthorityName overrides the common name of the CA certificate.
	AuthorityName string

	// ValidityDays is the CA certificate lifetime. Defaults to
	// DefaultCAValidityDays.
	ValidityDays int

	// KeyBits is the RSA modulus size. Defaults to DefaultKeyBits.
	KeyBits int

	// Rand is the entropy source. Defaults to crypto/rand.Reader.
	Rand io.Reader

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

func (cfg AuthorityConfig) subject() DistinguishedName {
	dn := cfg.DN
	switch {
	case cfg.AuthorityName != "":
		dn = dn.WithCommonName(cfg.AuthorityName)
	case dn.Organization != "":
		dn = dn.WithCommonName(dn.Organization + " Cache CA")
	}
	return dn
}

// Bootstrap creates a self-signed root certificate authority: a fresh
// RSA keypair and a SHA-256-signed certificate with subject == issuer,
// serial 1, and certificate-signing key usage. It has no side effects
// beyond producing in-memory material; writing the bundle to disk is
// the caller's responsibility.
func Bootstrap(cfg AuthorityConfig) (*Bundle, error) {
	dn := cfg.subject()
	if dn.CommonName == "" {
		return nil, fmt.Errorf("%w: authority common name is empty", ErrInvalidSubject)
	}

	entropy := cfg.Rand
	if entropy == nil {
		entropy = rand.Reader
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	validityDays := cfg.ValidityDays
	if validityDays <= 0 {
		validityDays = DefaultCAValidityDays
	}

	key, err := GenerateKeyPair(entropy, cfg.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("CA keypair: %w", err)
	}

	notBefore := now().UTC()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(caSerial),
		Subject:               dn.Name(),
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(0, 0, validityDays),
		SignatureAlgorithm:    x509.SHA256WithRSA,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	// Self-sign.
	derBytes, err := x509.CreateCertificate(entropy, template, template, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("%w: creating CA certificate: %v", ErrCryptoBackend, err)
	}
	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing CA certificate: %v", ErrCryptoBackend, err)
	}

	keyPEM, err := EncodeKeyPEM(key)
	if err != nil {
		return nil, fmt.Errorf("CA private key: %w", err)
	}

	return newBundle(cert, EncodeCertPEM(derBytes), keyPEM, key), nil
}
