// Package dhparam generates and encodes Diffie-Hellman group parameters
// (PKCS#3) for forward-secrecy cipher negotiation. The groups use a safe
// prime with generator 2, the same shape produced by classic TLS
// tooling, and are written as "DH PARAMETERS" PEM blocks.
package dhparam

import (
	"context"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/quaypoint/certmill/pki"
)

// DefaultBits is the modulus size used when no override is configured.
const DefaultBits = 2048

// MinBits bounds the modulus size from below. Groups smaller than this
// are refused outright.
const MinBits = 128

const pemType = "DH PARAMETERS"

var (
	one        = big.NewInt(1)
	twentyFour = big.NewInt(24)
)

// Params holds a Diffie-Hellman group: prime modulus P and generator G.
type Params struct {
	P *big.Int
	G *big.Int
}

// Generate derives a fresh safe-prime group of the given bit size with
// generator 2. The search loop is CPU-bound and can run for a while at
// production sizes; it honors ctx cancellation between candidates. A
// nil entropy source selects crypto/rand.Reader and bits <= 0 selects
// DefaultBits.
func Generate(ctx context.Context, entropy io.Reader, bits int) (*Params, error) {
	if entropy == nil {
		entropy = rand.Reader
	}
	if bits <= 0 {
		bits = DefaultBits
	}
	if bits < MinBits {
		return nil, fmt.Errorf("dh parameters: bit size %d below minimum %d", bits, MinBits)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q, err := rand.Prime(entropy, bits-1)
		if err != nil {
			return nil, fmt.Errorf("%w: generating prime candidate: %v", pki.ErrCryptoBackend, err)
		}
		// p = 2q+1; g = 2 generates the order-q subgroup only when
		// p ≡ 11 (mod 24).
		p := new(big.Int).Lsh(q, 1)
		p.Add(p, one)
		if p.BitLen() != bits {
			continue
		}
		if new(big.Int).Mod(p, twentyFour).Int64() != 11 {
			continue
		}
		if !p.ProbablyPrime(20) {
			continue
		}
		return &Params{P: p, G: big.NewInt(2)}, nil
	}
}

// BitLen returns the modulus size in bits.
func (p *Params) BitLen() int {
	if p == nil || p.P == nil {
		return 0
	}
	return p.P.BitLen()
}

// Check verifies the group shape: p an odd safe prime, g = 2, and
// p ≡ 11 (mod 24) so that 2 generates the prime-order subgroup.
func (p *Params) Check() error {
	if p == nil || p.P == nil || p.G == nil {
		return fmt.Errorf("dh parameters: missing prime or generator")
	}
	if p.G.Cmp(big.NewInt(2)) != 0 {
		return fmt.Errorf("dh parameters: generator %v, expected 2", p.G)
	}
	if !p.P.ProbablyPrime(20) {
		return fmt.Errorf("dh parameters: modulus is not prime")
	}
	q := new(big.Int).Rsh(p.P, 1)
	if !q.ProbablyPrime(20) {
		return fmt.Errorf("dh parameters: modulus is not a safe prime")
	}
	if new(big.Int).Mod(p.P, twentyFour).Int64() != 11 {
		return fmt.Errorf("dh parameters: modulus incompatible with generator 2")
	}
	return nil
}

// EncodePEM serializes the group as a PKCS#3 DER SEQUENCE wrapped in a
// "DH PARAMETERS" PEM block.
func (p *Params) EncodePEM() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(p.P)
		b.AddASN1BigInt(p.G)
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: encoding DH parameters: %v", pki.ErrCryptoBackend, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: der}), nil
}

// ParsePEM decodes a "DH PARAMETERS" PEM block into its group. A
// trailing PKCS#3 privateValueLength field, if present, is ignored.
func ParsePEM(data []byte) (*Params, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemType {
		return nil, fmt.Errorf("dh parameters: %w", pki.ErrInvalidPEM)
	}

	var inner cryptobyte.String
	input := cryptobyte.String(block.Bytes)
	p, g := new(big.Int), new(big.Int)
	if !input.ReadASN1(&inner, cryptobyte_asn1.SEQUENCE) ||
		!inner.ReadASN1Integer(p) ||
		!inner.ReadASN1Integer(g) {
		return nil, fmt.Errorf("%w: malformed PKCS#3 structure", pki.ErrInvalidPEM)
	}
	return &Params{P: p, G: g}, nil
}
