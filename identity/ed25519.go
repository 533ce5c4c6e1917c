package identity

import (
	"bytes"
	stded25519 "crypto/ed25519"
	"crypto/rand"
	encasn1 "encoding/asn1"
	"fmt"
	"io"

	"github.com/colorfulnotion/icagent/common"
	"github.com/colorfulnotion/icagent/principal"
	"github.com/colorfulnotion/icagent/requestid"
	consensus "github.com/hdevalence/ed25519consensus"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const (
	SeedSize      = stded25519.SeedSize
	PublicKeySize = stded25519.PublicKeySize
	SignatureSize = stded25519.SignatureSize
)

var oidEd25519 = encasn1.ObjectIdentifier{1, 3, 101, 112}

// Ed25519Identity signs requests with an Ed25519 key.
type Ed25519Identity struct {
	priv stded25519.PrivateKey
	der  []byte
}

// NewEd25519Identity derives the key pair from a 32-byte seed.
func NewEd25519Identity(seed []byte) (*Ed25519Identity, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	priv := stded25519.NewKeyFromSeed(seed)
	der, err := DEREncodeEd25519(priv.Public().(stded25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Ed25519Identity{priv: priv, der: der}, nil
}

// GenerateEd25519Identity draws a fresh seed from r, or crypto/rand when r
// is nil.
func GenerateEd25519Identity(r io.Reader) (*Ed25519Identity, error) {
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, err
	}
	return NewEd25519Identity(seed)
}

func (id *Ed25519Identity) PublicKey() []byte {
	return bytes.Clone(id.der)
}

func (id *Ed25519Identity) Sender() principal.Principal {
	return principal.SelfAuthenticating(id.der)
}

func (id *Ed25519Identity) Sign(reqID requestid.RequestID) ([]byte, error) {
	return stded25519.Sign(id.priv, signingMessage(reqID)), nil
}

// DEREncodeEd25519 wraps a raw key as SubjectPublicKeyInfo.
func DEREncodeEd25519(pub []byte) ([]byte, error) {
	if len(pub) != PublicKeySize {
		return nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", PublicKeySize, len(pub))
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidEd25519)
		})
		b.AddASN1BitString(pub)
	})
	return b.Bytes()
}

// DERDecodeEd25519 extracts the raw key from SubjectPublicKeyInfo.
func DERDecodeEd25519(der []byte) ([]byte, error) {
	input := cryptobyte.String(der)
	var spki, algo cryptobyte.String
	var oid encasn1.ObjectIdentifier
	var key []byte
	if !input.ReadASN1(&spki, asn1.SEQUENCE) || !input.Empty() ||
		!spki.ReadASN1(&algo, asn1.SEQUENCE) ||
		!algo.ReadASN1ObjectIdentifier(&oid) || !algo.Empty() ||
		!spki.ReadASN1BitStringAsBytes(&key) || !spki.Empty() {
		return nil, fmt.Errorf("malformed ed25519 DER key")
	}
	if !oid.Equal(oidEd25519) {
		return nil, fmt.Errorf("unexpected key algorithm %s", oid)
	}
	if len(key) != PublicKeySize {
		return nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", PublicKeySize, len(key))
	}
	return key, nil
}

// VerifyEd25519 checks a request signature against a DER public key using
// the ZIP-215 rules.
func VerifyEd25519(derKey []byte, reqID requestid.RequestID, sig []byte) bool {
	pub, err := DERDecodeEd25519(derKey)
	if err != nil {
		return false
	}
	return consensus.Verify(stded25519.PublicKey(pub), signingMessage(reqID), sig)
}

func signingMessage(reqID requestid.RequestID) []byte {
	return append(common.DomainSeparator("ic-request"), reqID.Bytes()...)
}
