package pki

import (
	"crypto/x509"
	"net"
)

// Profile selects the extension policy applied to an issued leaf.
// Server and client usages are deliberately disjoint: a compromised
// server certificate cannot authenticate as a client and vice versa.
type Profile string

const (
	// ProfileServer marks a leaf presented by the TLS-terminating
	// service.
	ProfileServer Profile = "server"

	// ProfileClient marks a leaf presented by a connecting client for
	// mutual authentication.
	ProfileClient Profile = "client"
)

func (p Profile) valid() bool {
	return p == ProfileServer || p == ProfileClient
}

// AltNames lists the subject-alternative-name entries applied to a
// server leaf. Client leaves carry none.
type AltNames struct {
	DNS []string
	IPs []net.IP
}

// Policy is the resolved extension set for one leaf profile. Leaves are
// never certificate authorities, so there is no basic-constraints knob.
type Policy struct {
	KeyUsage    x509.KeyUsage
	ExtKeyUsage []x509.ExtKeyUsage
	DNSNames    []string
	IPAddresses []net.IP
}

// PolicyFor resolves the extension policy for a leaf profile. It is a
// pure function of its inputs: server leaves get serverAuth plus the
// supplied alternative names, client leaves get clientAuth and no
// alternative names. Unknown profiles resolve to an empty policy and
// are rejected by Issue.
func PolicyFor(profile Profile, alt AltNames) Policy {
	policy := Policy{}
	switch profile {
	case ProfileServer:
		policy.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
		policy.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		policy.DNSNames = append([]string(nil), alt.DNS...)
		policy.IPAddresses = append([]net.IP(nil), alt.IPs...)
	case ProfileClient:
		policy.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
		policy.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}
	return policy
}

// DefaultAltNames builds the reference alternative-name set for a
// service reachable as <service> inside <domain>: localhost, the short
// name, the fully-qualified name, a wildcard subdomain, and both
// loopback addresses.
func DefaultAltNames(service, domain string) AltNames {
	fqdn := service + "." + domain
	return AltNames{
		DNS: []string{"localhost", service, fqdn, "*." + fqdn},
		IPs: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
}
