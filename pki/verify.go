package pki

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"time"
)

// VerifyReason identifies the first chain check a certificate failed.
type VerifyReason string

const (
	ReasonSignatureMismatch VerifyReason = "signature mismatch"
	ReasonIssuerMismatch    VerifyReason = "issuer mismatch"
	ReasonNotYetValid       VerifyReason = "not yet valid"
	ReasonExpired           VerifyReason = "expired"
	ReasonUnexpectedCA      VerifyReason = "leaf marked as CA"
)

// VerifyError reports an expected chain-validation failure. It is a
// result, not a fault: the pipeline turns it into a failure report
// rather than aborting mid-stage.
type VerifyError struct {
	Reason VerifyReason
	Detail string
}

func (e *VerifyError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("certificate verification failed: %s", e.Reason)
	}
	return fmt.Sprintf("certificate verification failed: %s: %s", e.Reason, e.Detail)
}

// Verify checks leaf against the certificate authority that is supposed
// to have issued it. It returns nil when the chain is valid and a
// *VerifyError naming the first violated check otherwise. Checks run in
// order: signature, issuer identity, validity window, CA flag. Passing
// the same certificate as both arguments is the legitimate
// self-verification of a root and skips the CA-flag check.
func Verify(leaf, ca *x509.Certificate) error {
	return verifyAt(leaf, ca, time.Now())
}

func verifyAt(leaf, ca *x509.Certificate, at time.Time) error {
	if err := leaf.CheckSignatureFrom(ca); err != nil {
		return &VerifyError{Reason: ReasonSignatureMismatch, Detail: err.Error()}
	}
	if !bytes.Equal(leaf.RawIssuer, ca.RawSubject) {
		return &VerifyError{
			Reason: ReasonIssuerMismatch,
			Detail: fmt.Sprintf("issuer %q, authority subject %q", SubjectString(leaf.Issuer), SubjectString(ca.Subject)),
		}
	}
	if at.Before(leaf.NotBefore) {
		return &VerifyError{
			Reason: ReasonNotYetValid,
			Detail: fmt.Sprintf("not valid before %s", leaf.NotBefore.UTC().Format(time.RFC3339)),
		}
	}
	if at.After(leaf.NotAfter) {
		return &VerifyError{
			Reason: ReasonExpired,
			Detail: fmt.Sprintf("not valid after %s", leaf.NotAfter.UTC().Format(time.RFC3339)),
		}
	}
	// A root validating itself carries the CA flag by construction.
	if leaf.IsCA && !bytes.Equal(leaf.Raw, ca.Raw) {
		return &VerifyError{Reason: ReasonUnexpectedCA}
	}
	return nil
}

// VerifyPEM decodes both certificates and delegates to Verify. An
// undecodable certificate is a backend fault, not a verification
// result.
func VerifyPEM(leafPEM, caPEM []byte) error {
	leaf, err := DecodeCertPEM(leafPEM)
	if err != nil {
		return fmt.Errorf("%w: decoding leaf certificate: %v", ErrCryptoBackend, err)
	}
	ca, err := DecodeCertPEM(caPEM)
	if err != nil {
		return fmt.Errorf("%w: decoding CA certificate: %v", ErrCryptoBackend, err)
	}
	return Verify(leaf, ca)
}
