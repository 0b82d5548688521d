package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaypoint/certmill/pipeline"
	"github.com/quaypoint/certmill/pki"
	"github.com/quaypoint/certmill/store"
)

func sampleSummary(subject, serial string) *pki.Summary {
	return &pki.Summary{
		Subject:           subject,
		Issuer:            "CN=QuayPoint Cache CA, O=QuayPoint",
		SerialNumber:      serial,
		NotBefore:         time.Now().Add(-time.Hour),
		NotAfter:          time.Now().AddDate(1, 0, 0),
		FingerprintSHA256: "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899",
		KeyAlgorithm:      "RSA 4096",
		Status:            pki.StatusActive,
	}
}

func sampleReport(outcome pipeline.Outcome) *pipeline.Report {
	return &pipeline.Report{
		Outcome:  outcome,
		StoreDir: "/srv/tls",
		Artifacts: []pipeline.Artifact{
			{Role: "CA certificate", Path: "/srv/tls/ca.crt"},
			{Role: "server private key", Path: "/srv/tls/server.key"},
		},
		CA:     sampleSummary("CN=QuayPoint Cache CA, O=QuayPoint", "01"),
		Server: sampleSummary("CN=cache.internal, O=QuayPoint", "02"),
		Client: sampleSummary("CN=cache-client, O=QuayPoint", "03"),
		DHBits: 2048,
	}
}

func TestRenderReport_Success(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, sampleReport(pipeline.OutcomeSuccess))

	out := buf.String()
	assert.Contains(t, out, "Certificate set written to /srv/tls")
	assert.Contains(t, out, "CN=cache.internal, O=QuayPoint")
	assert.Contains(t, out, "CN=cache-client, O=QuayPoint")
	assert.Contains(t, out, "DH parameters: 2048 bits")
	assert.Contains(t, out, "/srv/tls/server.key")
	assert.Contains(t, out, "aabbccddeeff0011")
	assert.NotContains(t, out, "FAILED")
}

func TestRenderReport_ExistingUnchanged(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, sampleReport(pipeline.OutcomeExistingUnchanged))

	out := buf.String()
	assert.Contains(t, out, "left untouched")
	assert.Contains(t, out, "--force")
}

func TestRenderReport_Failure(t *testing.T) {
	report := sampleReport(pipeline.OutcomeFailure)
	report.Failures = []pipeline.Failure{
		{Leaf: "server", Reason: pki.ReasonExpired, Detail: "not after 2024-01-01"},
	}

	var buf bytes.Buffer
	renderReport(&buf, report)

	out := buf.String()
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "server certificate")
	assert.Contains(t, out, string(pki.ReasonExpired))
	assert.Contains(t, out, "not after 2024-01-01")
}

func TestRenderStatus_EmptyDir(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderStatus(&buf, t.TempDir()))
	assert.Contains(t, buf.String(), "No artifacts")
}

func TestRenderStatus_FullStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	p := pipeline.New(pipeline.Config{
		Dir:     dir,
		DN:      pki.DistinguishedName{Organization: "QuayPoint"},
		KeyBits: 1024,
		DHBits:  128,
	}, zerolog.Nop())
	_, err := p.Run(t.Context())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, renderStatus(&buf, dir))

	out := buf.String()
	assert.Contains(t, out, store.FileCACert)
	assert.Contains(t, out, store.FileServerCert)
	assert.Contains(t, out, store.FileClientCert)
	assert.Contains(t, out, "CN=cache.internal")
	assert.Contains(t, out, "active")
	assert.Contains(t, out, "DH parameters: 128 bits")
	assert.Contains(t, out, "Issuance history")
	assert.Contains(t, out, "cache-client")
}

func TestRenderStatus_MissingArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	p := pipeline.New(pipeline.Config{
		Dir:     dir,
		DN:      pki.DistinguishedName{Organization: "QuayPoint"},
		KeyBits: 1024,
		DHBits:  128,
	}, zerolog.Nop())
	_, err := p.Run(t.Context())
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, store.FileClientCert)))

	var buf bytes.Buffer
	require.NoError(t, renderStatus(&buf, dir))

	assert.Contains(t, buf.String(), "missing")
}

func TestRenderStatus_UnreadableCertificate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.FileCACert), []byte("junk"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, renderStatus(&buf, dir))

	assert.Contains(t, buf.String(), "unreadable")
}

func TestShortFingerprint(t *testing.T) {
	assert.Equal(t, "aabbccddeeff0011", shortFingerprint("aabbccddeeff00112233445566778899"))
	assert.Equal(t, "abcd", shortFingerprint("abcd"))
}
