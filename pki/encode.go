package pki

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net"
	"time"
)

// PEM block types written and accepted by this package.
const (
	pemTypeCertificate = "CERTIFICATE"
	pemTypePrivateKey  = "PRIVATE KEY"
)

// Certificate status values reported by Summarize.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

// EncodeCertPEM encodes a DER certificate into a PEM block.
func EncodeCertPEM(derBytes []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificate, Bytes: derBytes})
}

// EncodeKeyPEM encodes a private key as a PKCS#8 "PRIVATE KEY" PEM block.
func EncodeKeyPEM(key crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling private key: %v", ErrCryptoBackend, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePrivateKey, Bytes: der}), nil
}

// DecodeCertPEM parses the first CERTIFICATE block in certPEM.
func DecodeCertPEM(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != pemTypeCertificate {
		return nil, fmt.Errorf("certificate: %w", ErrInvalidPEM)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}
	return cert, nil
}

// DecodeKeyPEM parses a PKCS#8 RSA private key PEM block.
func DecodeKeyPEM(keyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil || block.Type != pemTypePrivateKey {
		return nil, fmt.Errorf("private key: %w", ErrInvalidPEM)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPEM)
	}
	return rsaKey, nil
}

// Fingerprint returns the hex-encoded SHA-256 digest of the
// certificate's DER bytes.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// Summary holds the display metadata extracted from an issued
// certificate.
type Summary struct {
	Subject           string
	Issuer            string
	SerialNumber      string
	NotBefore         time.Time
	NotAfter          time.Time
	DNSNames          []string
	IPAddresses       []net.IP
	IsCA              bool
	FingerprintSHA256 string
	KeyAlgorithm      string
	Status            string
}

// Summarize extracts display metadata from a parsed certificate.
func Summarize(cert *x509.Certificate) Summary {
	return Summary{
		Subject:           SubjectString(cert.Subject),
		Issuer:            SubjectString(cert.Issuer),
		SerialNumber:      hex.EncodeToString(cert.SerialNumber.Bytes()),
		NotBefore:         cert.NotBefore.UTC(),
		NotAfter:          cert.NotAfter.UTC(),
		DNSNames:          cert.DNSNames,
		IPAddresses:       cert.IPAddresses,
		IsCA:              cert.IsCA,
		FingerprintSHA256: Fingerprint(cert),
		KeyAlgorithm:      keyAlgorithmString(cert),
		Status:            certStatus(cert),
	}
}

// SummarizePEM decodes a PEM certificate and extracts its display
// metadata.
func SummarizePEM(certPEM []byte) (Summary, error) {
	cert, err := DecodeCertPEM(certPEM)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(cert), nil
}

// certStatus returns "active" or "expired" based on the certificate's validity window.
func certStatus(cert *x509.Certificate) string {
	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return StatusExpired
	}
	return StatusActive
}

// keyAlgorithmString returns a human-readable key algorithm description.
func keyAlgorithmString(cert *x509.Certificate) string {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA %d", pub.N.BitLen())
	default:
		return cert.PublicKeyAlgorithm.String()
	}
}
