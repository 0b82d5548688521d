package pipeline

import (
	"github.com/quaypoint/certmill/pki"
	"github.com/quaypoint/certmill/store"
)

// Outcome is the terminal state of a pipeline run.
type Outcome string

const (
	// OutcomeSuccess: everything generated, hardened and verified.
	OutcomeSuccess Outcome = "success"

	// OutcomeExistingUnchanged: a full bundle was already present and
	// force was not requested; nothing was touched.
	OutcomeExistingUnchanged Outcome = "existing-unchanged"

	// OutcomeFailure: artifacts were generated but chain verification
	// failed; the output must not be trusted.
	OutcomeFailure Outcome = "failure"
)

// Artifact names one file the run produced or found.
type Artifact struct {
	Role string
	Path string
}

// Failure names a leaf that failed chain verification and why.
type Failure struct {
	Leaf   string
	Reason pki.VerifyReason
	Detail string
}

// Report is what a finished run tells the caller: the terminal outcome,
// where the artifacts live, and the certificate metadata a consumer
// needs to trust (or distrust) them.
type Report struct {
	Outcome   Outcome
	StoreDir  string
	Artifacts []Artifact
	CA        *pki.Summary
	Server    *pki.Summary
	Client    *pki.Summary
	DHBits    int
	Failures  []Failure
}

func artifactList(st *store.Store) []Artifact {
	return []Artifact{
		{Role: "CA private key", Path: st.Path(store.FileCAKey)},
		{Role: "CA certificate", Path: st.Path(store.FileCACert)},
		{Role: "server private key", Path: st.Path(store.FileServerKey)},
		{Role: "server certificate", Path: st.Path(store.FileServerCert)},
		{Role: "client private key", Path: st.Path(store.FileClientKey)},
		{Role: "client certificate", Path: st.Path(store.FileClientCert)},
		{Role: "DH parameters", Path: st.Path(store.FileDHParams)},
	}
}
