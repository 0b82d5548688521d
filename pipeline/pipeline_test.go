package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaypoint/certmill/dhparam"
	"github.com/quaypoint/certmill/pipeline"
	"github.com/quaypoint/certmill/pki"
	"github.com/quaypoint/certmill/store"
)

// Small parameters keep the tests fast. Runs exercise the same code
// paths as production-sized keys.
const (
	testKeyBits = 1024
	testDHBits  = 128
)

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy pool sealed")
}

func testConfig(dir string) pipeline.Config {
	return pipeline.Config{
		Dir:     dir,
		DN:      pki.DistinguishedName{Country: "US", Organization: "QuayPoint"},
		Service: "cache",
		Domain:  "internal",
		KeyBits: testKeyBits,
		DHBits:  testDHBits,
	}
}

func run(t *testing.T, cfg pipeline.Config) (*pipeline.Report, error) {
	t.Helper()
	p := pipeline.New(cfg, zerolog.Nop())
	return p.Run(t.Context())
}

func TestRun_FreshDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")

	report, err := run(t, testConfig(dir))
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, pipeline.OutcomeSuccess, report.Outcome)
	assert.Equal(t, dir, report.StoreDir)
	assert.Empty(t, report.Failures)
	assert.Len(t, report.Artifacts, 7)

	for _, a := range report.Artifacts {
		info, err := os.Stat(a.Path)
		require.NoError(t, err, a.Role)
		assert.Zero(t, info.Mode().Perm()&0o077, "%s is group or world accessible", a.Role)
	}

	require.NotNil(t, report.CA)
	require.NotNil(t, report.Server)
	require.NotNil(t, report.Client)
	assert.Equal(t, "01", report.CA.SerialNumber)
	assert.Equal(t, "02", report.Server.SerialNumber)
	assert.Equal(t, "03", report.Client.SerialNumber)
	assert.True(t, report.CA.IsCA)
	assert.False(t, report.Server.IsCA)
	assert.Contains(t, report.Server.Subject, "CN=cache.internal")
	assert.Contains(t, report.Client.Subject, "CN=cache-client")
	assert.Contains(t, report.Server.DNSNames, "cache.internal")
	assert.Contains(t, report.Server.DNSNames, "localhost")
	assert.Equal(t, testDHBits, report.DHBits)
}

func TestRun_ArtifactPermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")

	_, err := run(t, testConfig(dir))
	require.NoError(t, err)

	keyInfo, err := os.Stat(filepath.Join(dir, store.FileCAKey))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), keyInfo.Mode().Perm())

	certInfo, err := os.Stat(filepath.Join(dir, store.FileCACert))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), certInfo.Mode().Perm())
}

func TestRun_ChainVerifiable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")

	_, err := run(t, testConfig(dir))
	require.NoError(t, err)

	st := store.New(dir)
	caPEM, err := st.ReadPEM(store.FileCACert)
	require.NoError(t, err)
	serverPEM, err := st.ReadPEM(store.FileServerCert)
	require.NoError(t, err)
	clientPEM, err := st.ReadPEM(store.FileClientCert)
	require.NoError(t, err)

	assert.NoError(t, pki.VerifyPEM(serverPEM, caPEM))
	assert.NoError(t, pki.VerifyPEM(clientPEM, caPEM))
}

func TestRun_IssuanceIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")

	report, err := run(t, testConfig(dir))
	require.NoError(t, err)

	state, err := store.New(dir).OpenState()
	require.NoError(t, err)
	defer state.Close()

	records, err := state.Issuances()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, string(pki.ProfileServer), records[0].Profile)
	assert.Equal(t, "cache.internal", records[0].CommonName)
	assert.Equal(t, report.Server.FingerprintSHA256, records[0].FingerprintSHA256)
	assert.Equal(t, string(pki.ProfileClient), records[1].Profile)
	assert.Equal(t, "cache-client", records[1].CommonName)
}

func TestRun_SecondRunLeavesArtifactsUntouched(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	cfg := testConfig(dir)

	first, err := run(t, cfg)
	require.NoError(t, err)
	require.Equal(t, pipeline.OutcomeSuccess, first.Outcome)

	before, err := os.ReadFile(filepath.Join(dir, store.FileServerCert))
	require.NoError(t, err)

	second, err := run(t, cfg)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, pipeline.OutcomeExistingUnchanged, second.Outcome)

	after, err := os.ReadFile(filepath.Join(dir, store.FileServerCert))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// The untouched report still carries the summaries of what is on
	// disk.
	require.NotNil(t, second.CA)
	assert.Equal(t, first.CA.FingerprintSHA256, second.CA.FingerprintSHA256)
	assert.Equal(t, first.Server.FingerprintSHA256, second.Server.FingerprintSHA256)
	assert.Equal(t, testDHBits, second.DHBits)
}

func TestRun_ForceRegenerates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	cfg := testConfig(dir)

	first, err := run(t, cfg)
	require.NoError(t, err)

	cfg.Force = true
	second, err := run(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, pipeline.OutcomeSuccess, second.Outcome)
	assert.NotEqual(t, first.CA.FingerprintSHA256, second.CA.FingerprintSHA256)
	assert.NotEqual(t, first.Server.FingerprintSHA256, second.Server.FingerprintSHA256)
	assert.NotEqual(t, first.Client.FingerprintSHA256, second.Client.FingerprintSHA256)

	// Cleanup wiped the serial state along with the old authority, so
	// numbering starts over under the new one.
	assert.Equal(t, "02", second.Server.SerialNumber)
}

func TestRun_PartialSetRegenerated(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.FileCACert), []byte("stale"), 0o644))

	report, err := run(t, testConfig(dir))
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeSuccess, report.Outcome)

	// The stale file was replaced by a real certificate.
	caPEM, err := os.ReadFile(filepath.Join(dir, store.FileCACert))
	require.NoError(t, err)
	sum, err := pki.SummarizePEM(caPEM)
	require.NoError(t, err)
	assert.True(t, sum.IsCA)
}

func TestRun_ExistingUnreadable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{
		store.FileCAKey, store.FileCACert,
		store.FileServerKey, store.FileServerCert,
		store.FileClientKey, store.FileClientCert,
		store.FileDHParams,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("garbage"), 0o600))
	}

	report, err := run(t, testConfig(dir))
	require.Error(t, err)
	assert.Nil(t, report)

	// Nothing was overwritten; the caller decides whether to force.
	data, err := os.ReadFile(filepath.Join(dir, store.FileServerCert))
	require.NoError(t, err)
	assert.Equal(t, []byte("garbage"), data)
}

func TestRun_BrokenEntropy(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	cfg := testConfig(dir)
	cfg.Rand = brokenReader{}

	report, err := run(t, cfg)
	require.ErrorIs(t, err, pki.ErrBackendUnavailable)
	assert.Nil(t, report)

	// Failing the pre-flight leaves no trace on disk.
	_, statErr := os.Stat(dir)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRun_CanceledContext(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	p := pipeline.New(testConfig(dir), zerolog.Nop())
	report, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
}

func TestRun_ExpiredAtVerification(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	cfg := testConfig(dir)
	cfg.LeafValidityDays = 365
	// Issue far enough in the past that both leaves are already
	// expired when the final verification looks at them.
	cfg.Now = func() time.Time { return time.Now().AddDate(-2, 0, 0) }

	report, err := run(t, cfg)
	require.Error(t, err)
	require.NotNil(t, report)

	assert.Equal(t, pipeline.OutcomeFailure, report.Outcome)
	require.Len(t, report.Failures, 2)
	for _, f := range report.Failures {
		assert.Equal(t, pki.ReasonExpired, f.Reason)
	}
}

func TestRun_AltNameOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	cfg := testConfig(dir)
	cfg.Alt = &pki.AltNames{DNS: []string{"edge.test"}}

	report, err := run(t, cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"edge.test"}, report.Server.DNSNames)
	assert.Empty(t, report.Client.DNSNames)
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := pipeline.Config{}.WithDefaults()

	assert.Equal(t, pipeline.DefaultDir, cfg.Dir)
	assert.Equal(t, pipeline.DefaultService, cfg.Service)
	assert.Equal(t, pipeline.DefaultDomain, cfg.Domain)
	assert.Equal(t, pipeline.DefaultOrganization, cfg.DN.Organization)
	assert.Equal(t, pki.DefaultCAValidityDays, cfg.CAValidityDays)
	assert.Equal(t, pki.DefaultLeafValidityDays, cfg.LeafValidityDays)
	assert.Equal(t, pki.DefaultKeyBits, cfg.KeyBits)
	assert.Equal(t, dhparam.DefaultBits, cfg.DHBits)

	set := pipeline.Config{Dir: "/srv/tls", Service: "registry", KeyBits: 2048}.WithDefaults()
	assert.Equal(t, "/srv/tls", set.Dir)
	assert.Equal(t, "registry", set.Service)
	assert.Equal(t, 2048, set.KeyBits)
}
