package pki

import (
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/quaypoint/certmill/internal/util"
)

// SerialSource produces unique serial numbers for issued leaves. The
// store implements it over a persisted monotonic counter so serials
// never collide across issuances from the same authority.
type SerialSource interface {
	Next() (int64, error)
}

// Issuer produces leaf certificates signed by a certificate authority.
// The zero value is not usable: a SerialSource is required.
type Issuer struct {
	// Serials supplies leaf serial numbers.
	Serials SerialSource

	// KeyBits is the RSA modulus size for leaf keys. Defaults to
	// DefaultKeyBits.
	KeyBits int

	// Rand is the entropy source. Defaults to crypto/rand.Reader.
	Rand io.Reader

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Issue creates a leaf certificate under ca: a fresh keypair, an
// in-memory signing request binding the key to dn, extensions resolved
// from the profile's policy, and a SHA-256 signature by the CA key. The
// signing request and resolved policy are scope-bound values discarded
// on return; nothing intermediate survives issuance.
func (i *Issuer) Issue(ca *Bundle, profile Profile, dn DistinguishedName, validityDays int, alt AltNames) (*Bundle, error) {
	if dn.CommonName == "" {
		return nil, fmt.Errorf("%w: leaf common name is empty", ErrInvalidSubject)
	}
	if !profile.valid() {
		return nil, fmt.Errorf("%w: unknown profile %q", ErrInvalidSubject, profile)
	}
	if i.Serials == nil {
		return nil, fmt.Errorf("%w: issuer has no serial source", ErrSerialSource)
	}
	caSigner, err := ca.Signer()
	if err != nil {
		return nil, fmt.Errorf("CA signer: %w", err)
	}

	entropy := i.Rand
	if entropy == nil {
		entropy = rand.Reader
	}
	now := time.Now
	if i.Now != nil {
		now = i.Now
	}
	if validityDays <= 0 {
		validityDays = DefaultLeafValidityDays
	}

	// Fresh keypair per leaf; never the CA's key, never another leaf's.
	key, err := GenerateKeyPair(entropy, i.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("leaf keypair: %w", err)
	}

	// Build and self-check the signing request. It exists only in this
	// scope; the template below is derived from its parsed form.
	csrDER, err := x509.CreateCertificateRequest(entropy, &x509.CertificateRequest{
		Subject:            dn.Name(),
		SignatureAlgorithm: x509.SHA256WithRSA,
	}, key)
	if err != nil {
		return nil, fmt.Errorf("%w: creating signing request: %v", ErrCryptoBackend, err)
	}
	csr, err := x509.ParseCertificateRequest(csrDER)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing signing request: %v", ErrCryptoBackend, err)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("%w: signing request self-check: %v", ErrCryptoBackend, err)
	}
	util.WipeBytes(csrDER)

	serial, err := i.Serials.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialSource, err)
	}

	policy := PolicyFor(profile, alt)
	notBefore := now().UTC()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               csr.Subject,
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(0, 0, validityDays),
		SignatureAlgorithm:    x509.SHA256WithRSA,
		KeyUsage:              policy.KeyUsage,
		ExtKeyUsage:           policy.ExtKeyUsage,
		BasicConstraintsValid: true,
		IsCA:                  false,
		DNSNames:              policy.DNSNames,
		IPAddresses:           policy.IPAddresses,
	}

	derBytes, err := x509.CreateCertificate(entropy, template, ca.Cert, csr.PublicKey, caSigner)
	if err != nil {
		return nil, fmt.Errorf("%w: signing %s leaf: %v", ErrCryptoBackend, profile, err)
	}
	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s leaf: %v", ErrCryptoBackend, profile, err)
	}

	keyPEM, err := EncodeKeyPEM(key)
	if err != nil {
		return nil, fmt.Errorf("leaf private key: %w", err)
	}

	bundle := newBundle(cert, EncodeCertPEM(derBytes), keyPEM, key)
	bundle.CACertPEM = util.CopyBytes(ca.CertPEM)
	return bundle, nil
}
