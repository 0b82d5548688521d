package pki

import "errors"

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// ErrBackendUnavailable is returned by the pre-flight check when the
	// system entropy source cannot be read at all. Nothing has been
	// generated or written when this is reported.
	ErrBackendUnavailable = errors.New("crypto backend unavailable")

	// ErrCryptoBackend is returned when a key-generation or signing
	// primitive fails mid-operation.
	ErrCryptoBackend = errors.New("crypto backend error")

	// ErrInvalidSubject is returned when a distinguished name is missing
	// required attributes, most importantly the common name.
	ErrInvalidSubject = errors.New("invalid certificate subject")

	// ErrInvalidPEM is returned when PEM data cannot be decoded or parsed.
	ErrInvalidPEM = errors.New("invalid PEM data")

	// ErrSerialSource is returned when the persistent serial counter
	// cannot produce the next serial number.
	ErrSerialSource = errors.New("serial source error")

	// ErrBundleDestroyed is returned when key material is requested
	// from a bundle after Destroy.
	ErrBundleDestroyed = errors.New("bundle key material destroyed")
)
