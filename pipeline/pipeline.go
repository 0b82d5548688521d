// Package pipeline drives the end-to-end bootstrap sequence: check the
// target directory, bootstrap a certificate authority, issue the server
// and client leaves, generate Diffie-Hellman parameters, harden file
// permissions, verify both chains and report the result.
//
// A run is all-or-nothing from the caller's point of view. If a full
// artifact set is already present the run leaves it untouched and says
// so; with Force set, or when the set is incomplete, everything is
// regenerated from scratch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/quaypoint/certmill/dhparam"
	"github.com/quaypoint/certmill/pki"
	"github.com/quaypoint/certmill/store"
)

// Defaults applied by Config.WithDefaults.
const (
	DefaultDir          = "tls"
	DefaultService      = "cache"
	DefaultDomain       = "internal"
	DefaultOrganization = "CertMill"
)

// Config holds everything a run needs. The zero value is not usable
// directly; pass it through WithDefaults (New does this for you).
type Config struct {
	// Dir is the directory all artifacts are written to. It is created
	// on demand.
	Dir string

	// Force regenerates the full artifact set even when one is already
	// present.
	Force bool

	// DN is the subject template shared by the authority and both
	// leaves. The common name is derived per certificate and any value
	// set here is ignored.
	DN pki.DistinguishedName

	// AuthorityName overrides the derived authority common name.
	AuthorityName string

	// Service and Domain name the workload: the server leaf gets the
	// common name "<service>.<domain>" and the client leaf
	// "<service>-client".
	Service string
	Domain  string

	// Alt overrides the default subject alternative names of the
	// server leaf. Nil means the defaults for Service and Domain.
	Alt *pki.AltNames

	CAValidityDays   int
	LeafValidityDays int
	KeyBits          int
	DHBits           int

	// Rand is the entropy source, nil means crypto/rand. Now supplies
	// the clock. Both exist for tests.
	Rand io.Reader
	Now  func() time.Time
}

// WithDefaults fills unset fields and returns the result.
func (c Config) WithDefaults() Config {
	if c.Dir == "" {
		c.Dir = DefaultDir
	}
	if c.Service == "" {
		c.Service = DefaultService
	}
	if c.Domain == "" {
		c.Domain = DefaultDomain
	}
	if c.DN.Organization == "" {
		c.DN.Organization = DefaultOrganization
	}
	if c.CAValidityDays <= 0 {
		c.CAValidityDays = pki.DefaultCAValidityDays
	}
	if c.LeafValidityDays <= 0 {
		c.LeafValidityDays = pki.DefaultLeafValidityDays
	}
	if c.KeyBits <= 0 {
		c.KeyBits = pki.DefaultKeyBits
	}
	if c.DHBits <= 0 {
		c.DHBits = dhparam.DefaultBits
	}
	return c
}

func (c Config) serverName() string {
	return c.Service + "." + c.Domain
}

func (c Config) clientName() string {
	return c.Service + "-client"
}

func (c Config) altNames() pki.AltNames {
	if c.Alt != nil {
		return *c.Alt
	}
	return pki.DefaultAltNames(c.Service, c.Domain)
}

// Pipeline runs the bootstrap sequence against one store directory.
type Pipeline struct {
	cfg Config
	log zerolog.Logger
}

// New builds a pipeline from cfg with defaults applied.
func New(cfg Config, log zerolog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg.WithDefaults(), log: log}
}

// Run executes the sequence and returns a report describing what
// happened. On verification failure the report is returned alongside a
// non-nil error so callers can both display the details and exit
// non-zero. Fatal errors earlier in the sequence return a nil report.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	// Nothing is touched unless the entropy source works.
	if err := pki.VerifyBackend(p.cfg.Rand); err != nil {
		return nil, err
	}

	st := store.New(p.cfg.Dir)

	presence, err := st.Presence()
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", st.Dir(), err)
	}

	switch {
	case p.cfg.Force:
		p.log.Info().Str("dir", st.Dir()).Msg("forced regeneration, removing existing artifacts")
		if err := st.Cleanup(); err != nil {
			return nil, fmt.Errorf("cleaning %s: %w", st.Dir(), err)
		}
	case presence.Full():
		p.log.Info().Str("dir", st.Dir()).Msg("full artifact set already present, leaving it untouched")
		return p.reportExisting(st)
	case presence.Partial():
		p.log.Warn().Str("dir", st.Dir()).Msg("incomplete artifact set, regenerating from scratch")
		if err := st.Cleanup(); err != nil {
			return nil, fmt.Errorf("cleaning %s: %w", st.Dir(), err)
		}
	}

	return p.generate(ctx, st)
}

func (p *Pipeline) generate(ctx context.Context, st *store.Store) (*Report, error) {
	state, err := st.OpenState()
	if err != nil {
		return nil, fmt.Errorf("opening state: %w", err)
	}
	defer state.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.log.Info().Int("bits", p.cfg.KeyBits).Int("days", p.cfg.CAValidityDays).
		Msg("bootstrapping certificate authority")
	ca, err := pki.Bootstrap(pki.AuthorityConfig{
		DN:            p.cfg.DN,
		AuthorityName: p.cfg.AuthorityName,
		ValidityDays:  p.cfg.CAValidityDays,
		KeyBits:       p.cfg.KeyBits,
		Rand:          p.cfg.Rand,
		Now:           p.cfg.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrapping authority: %w", err)
	}
	defer ca.Destroy()
	if err := p.persist(st, ca, store.FileCAKey, store.FileCACert); err != nil {
		return nil, err
	}

	issuer := &pki.Issuer{
		Serials: state,
		KeyBits: p.cfg.KeyBits,
		Rand:    p.cfg.Rand,
		Now:     p.cfg.Now,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	serverDN := p.cfg.DN.WithCommonName(p.cfg.serverName())
	p.log.Info().Str("subject", serverDN.String()).Msg("issuing server certificate")
	server, err := issuer.Issue(ca, pki.ProfileServer, serverDN, p.cfg.LeafValidityDays, p.cfg.altNames())
	if err != nil {
		return nil, fmt.Errorf("issuing server certificate: %w", err)
	}
	defer server.Destroy()
	if err := p.persist(st, server, store.FileServerKey, store.FileServerCert); err != nil {
		return nil, err
	}
	if err := recordLeaf(state, pki.ProfileServer, server); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clientDN := p.cfg.DN.WithCommonName(p.cfg.clientName())
	p.log.Info().Str("subject", clientDN.String()).Msg("issuing client certificate")
	client, err := issuer.Issue(ca, pki.ProfileClient, clientDN, p.cfg.LeafValidityDays, pki.AltNames{})
	if err != nil {
		return nil, fmt.Errorf("issuing client certificate: %w", err)
	}
	defer client.Destroy()
	if err := p.persist(st, client, store.FileClientKey, store.FileClientCert); err != nil {
		return nil, err
	}
	if err := recordLeaf(state, pki.ProfileClient, client); err != nil {
		return nil, err
	}

	p.log.Info().Int("bits", p.cfg.DHBits).Msg("generating DH parameters, this can take a while")
	params, err := dhparam.Generate(ctx, p.cfg.Rand, p.cfg.DHBits)
	if err != nil {
		return nil, fmt.Errorf("generating DH parameters: %w", err)
	}
	dhPEM, err := params.EncodePEM()
	if err != nil {
		return nil, fmt.Errorf("encoding DH parameters: %w", err)
	}
	if err := st.WriteDHParams(dhPEM); err != nil {
		return nil, fmt.Errorf("writing %s: %w", st.Path(store.FileDHParams), err)
	}

	p.log.Debug().Str("dir", st.Dir()).Msg("hardening file permissions")
	if err := st.Harden(); err != nil {
		return nil, fmt.Errorf("hardening permissions: %w", err)
	}

	report := &Report{
		Outcome:   OutcomeSuccess,
		StoreDir:  st.Dir(),
		Artifacts: artifactList(st),
		CA:        summaryOf(ca),
		Server:    summaryOf(server),
		Client:    summaryOf(client),
		DHBits:    params.BitLen(),
	}

	for _, leaf := range []struct {
		name   string
		bundle *pki.Bundle
	}{
		{"server", server},
		{"client", client},
	} {
		if err := pki.Verify(leaf.bundle.Cert, ca.Cert); err != nil {
			reason, detail := failureDetails(err)
			p.log.Error().Str("leaf", leaf.name).Str("reason", string(reason)).
				Msg("chain verification failed")
			report.Failures = append(report.Failures, Failure{
				Leaf:   leaf.name,
				Reason: reason,
				Detail: detail,
			})
			continue
		}
		p.log.Info().Str("leaf", leaf.name).Msg("chain verified")
	}

	if len(report.Failures) > 0 {
		report.Outcome = OutcomeFailure
		return report, fmt.Errorf("%d of 2 issued certificates failed chain verification", len(report.Failures))
	}
	return report, nil
}

// reportExisting builds the report for an untouched full artifact set.
// Unreadable artifacts are an error here; the caller can force a
// regeneration to replace them.
func (p *Pipeline) reportExisting(st *store.Store) (*Report, error) {
	report := &Report{
		Outcome:   OutcomeExistingUnchanged,
		StoreDir:  st.Dir(),
		Artifacts: artifactList(st),
	}
	for _, c := range []struct {
		file string
		dst  **pki.Summary
	}{
		{store.FileCACert, &report.CA},
		{store.FileServerCert, &report.Server},
		{store.FileClientCert, &report.Client},
	} {
		pem, err := st.ReadPEM(c.file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", st.Path(c.file), err)
		}
		sum, err := pki.SummarizePEM(pem)
		if err != nil {
			return nil, fmt.Errorf("parsing %s (use force to regenerate): %w", st.Path(c.file), err)
		}
		*c.dst = sum
	}
	pem, err := st.ReadPEM(store.FileDHParams)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", st.Path(store.FileDHParams), err)
	}
	params, err := dhparam.ParsePEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parsing %s (use force to regenerate): %w", st.Path(store.FileDHParams), err)
	}
	report.DHBits = params.BitLen()
	return report, nil
}

func (p *Pipeline) persist(st *store.Store, b *pki.Bundle, keyFile, certFile string) error {
	key, err := b.KeyPEM()
	if err != nil {
		return err
	}
	defer key.Destroy()
	if err := st.WriteKeyPEM(keyFile, key.Bytes()); err != nil {
		return fmt.Errorf("writing %s: %w", st.Path(keyFile), err)
	}
	if err := st.WriteCertPEM(certFile, b.CertPEM); err != nil {
		return fmt.Errorf("writing %s: %w", st.Path(certFile), err)
	}
	return nil
}

func recordLeaf(state *store.State, profile pki.Profile, b *pki.Bundle) error {
	sum := pki.Summarize(b.Cert)
	if _, err := state.RecordIssuance(store.Record{
		Profile:           string(profile),
		CommonName:        b.Cert.Subject.CommonName,
		SerialNumber:      sum.SerialNumber,
		FingerprintSHA256: sum.FingerprintSHA256,
		NotBefore:         sum.NotBefore,
		NotAfter:          sum.NotAfter,
	}); err != nil {
		return fmt.Errorf("recording issuance of %q: %w", b.Cert.Subject.CommonName, err)
	}
	return nil
}

func summaryOf(b *pki.Bundle) *pki.Summary {
	sum := pki.Summarize(b.Cert)
	return &sum
}

func failureDetails(err error) (pki.VerifyReason, string) {
	var verr *pki.VerifyError
	if errors.As(err, &verr) {
		return verr.Reason, verr.Detail
	}
	return "error", err.Error()
}
