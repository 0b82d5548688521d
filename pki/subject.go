package pki

import (
	"crypto/x509/pkix"
	"strings"
)

// DistinguishedName is the subject identity placed in an issued
// certificate. All fields except CommonName are optional; a name with an
// empty CommonName is rejected by Bootstrap and Issue.
type DistinguishedName struct {
	Country            string
	Province           string
	Locality           string
	Organization       string
	OrganizationalUnit string
	CommonName         string
}

// Name converts the distinguished name into the pkix form used by x509
// templates. Empty attributes are omitted entirely rather than encoded
// as empty strings.
func (dn DistinguishedName) Name() pkix.Name {
	name := pkix.Name{CommonName: dn.CommonName}
	if dn.Country != "" {
		name.Country = []string{dn.Country}
	}
	if dn.Province != "" {
		name.Province = []string{dn.Province}
	}
	if dn.Locality != "" {
		name.Locality = []string{dn.Locality}
	}
	if dn.Organization != "" {
		name.Organization = []string{dn.Organization}
	}
	if dn.OrganizationalUnit != "" {
		name.OrganizationalUnit = []string{dn.OrganizationalUnit}
	}
	return name
}

// WithCommonName returns a copy of the distinguished name with the
// common name replaced.
func (dn DistinguishedName) WithCommonName(cn string) DistinguishedName {
	dn.CommonName = cn
	return dn
}

// String formats the distinguished name as a readable DN string.
func (dn DistinguishedName) String() string {
	return SubjectString(dn.Name())
}

// SubjectString formats a pkix.Name as a readable DN string.
func SubjectString(name pkix.Name) string {
	var parts []string
	if name.CommonName != "" {
		parts = append(parts, "CN="+name.CommonName)
	}
	for _, ou := range name.OrganizationalUnit {
		parts = append(parts, "OU="+ou)
	}
	for _, o := range name.Organization {
		parts = append(parts, "O="+o)
	}
	for _, l := range name.Locality {
		parts = append(parts, "L="+l)
	}
	for _, p := range name.Province {
		parts = append(parts, "ST="+p)
	}
	for _, c := range name.Country {
		parts = append(parts, "C="+c)
	}
	return strings.Join(parts, ", ")
}
