// Package store manages the on-disk side of a certificate store: file
// placement, the permission policy for keys versus certificates,
// presence checks, bulk cleanup, and the persistent issuance state.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names inside a store directory.
const (
	FileCAKey      = "ca.key"
	FileCACert     = "ca.crt"
	FileServerKey  = "server.key"
	FileServerCert = "server.crt"
	FileClientKey  = "client.key"
	FileClientCert = "client.crt"
	FileDHParams   = "dhparams.pem"
	FileState      = "state.db"
)

// Permission classes: private keys and issuance state are owner-only,
// certificates and DH parameters are world-readable.
const (
	permKey  os.FileMode = 0o600
	permCert os.FileMode = 0o644
	permDir  os.FileMode = 0o755
)

var (
	// ErrStateLocked is returned when another process holds the state
	// database lock, i.e. a concurrent run against the same store.
	ErrStateLocked = errors.New("store state is locked by another process")
)

// permissionClasses maps every artifact to its permission class, in the
// order Harden applies them.
var permissionClasses = []struct {
	name string
	mode os.FileMode
}{
	{FileCAKey, permKey},
	{FileServerKey, permKey},
	{FileClientKey, permKey},
	{FileState, permKey},
	{FileCACert, permCert},
	{FileServerCert, permCert},
	{FileClientCert, permCert},
	{FileDHParams, permCert},
}

// Store is a filesystem location holding the generated artifacts of one
// certificate authority and its leaves.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory is created on first
// write, not here.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the path of the named artifact inside the store.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, permDir); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	return nil
}

// WriteKeyPEM writes a private-key artifact with owner-only permission.
func (s *Store) WriteKeyPEM(name string, pemBytes []byte) error {
	return s.write(name, pemBytes, permKey)
}

// WriteCertPEM writes a world-readable certificate artifact.
func (s *Store) WriteCertPEM(name string, pemBytes []byte) error {
	return s.write(name, pemBytes, permCert)
}

// WriteDHParams writes the world-readable DH parameter artifact.
func (s *Store) WriteDHParams(pemBytes []byte) error {
	return s.write(FileDHParams, pemBytes, permCert)
}

func (s *Store) write(name string, data []byte, mode os.FileMode) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := os.WriteFile(s.Path(name), data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// ReadPEM reads back one PEM artifact.
func (s *Store) ReadPEM(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// Presence reports which artifacts currently exist in the store.
type Presence struct {
	CAKey      bool
	CACert     bool
	ServerKey  bool
	ServerCert bool
	ClientKey  bool
	ClientCert bool
	DHParams   bool
	State      bool
}

// Full reports whether the complete bundle is present: both halves of
// all three pairs plus the DH parameters. The issuance state is not
// required, it only matters when generating.
func (p Presence) Full() bool {
	return p.CAKey && p.CACert &&
		p.ServerKey && p.ServerCert &&
		p.ClientKey && p.ClientCert &&
		p.DHParams
}

// Any reports whether anything at all is present.
func (p Presence) Any() bool {
	return p.CAKey || p.CACert ||
		p.ServerKey || p.ServerCert ||
		p.ClientKey || p.ClientCert ||
		p.DHParams || p.State
}

// Partial reports an incomplete bundle: something present, but not
// everything a consumer needs.
func (p Presence) Partial() bool {
	return p.Any() && !p.Full()
}

// Presence checks which artifacts exist on disk.
func (s *Store) Presence() (Presence, error) {
	var p Presence
	for _, probe := range []struct {
		name string
		flag *bool
	}{
		{FileCAKey, &p.CAKey},
		{FileCACert, &p.CACert},
		{FileServerKey, &p.ServerKey},
		{FileServerCert, &p.ServerCert},
		{FileClientKey, &p.ClientKey},
		{FileClientCert, &p.ClientCert},
		{FileDHParams, &p.DHParams},
		{FileState, &p.State},
	} {
		_, err := os.Stat(s.Path(probe.name))
		switch {
		case err == nil:
			*probe.flag = true
		case errors.Is(err, os.ErrNotExist):
		default:
			return Presence{}, fmt.Errorf("checking %s: %w", probe.name, err)
		}
	}
	return p, nil
}

// Harden re-asserts the permission class of every present artifact.
// Missing artifacts are skipped.
func (s *Store) Harden() error {
	for _, class := range permissionClasses {
		err := os.Chmod(s.Path(class.name), class.mode)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("hardening %s: %w", class.name, err)
		}
	}
	return nil
}

// Cleanup removes every generated artifact, the issuance state
// included. Missing files are not errors; the store directory itself is
// left in place.
func (s *Store) Cleanup() error {
	for _, class := range permissionClasses {
		if err := os.Remove(s.Path(class.name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", class.name, err)
		}
	}
	return nil
}
