package identity

import (
	"bytes"
	"crypto/ecdsa"
	encasn1 "encoding/asn1"
	"fmt"

	"github.com/colorfulnotion/icagent/common"
	"github.com/colorfulnotion/icagent/principal"
	"github.com/colorfulnotion/icagent/requestid"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidECPublicKey = encasn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = encasn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

// Secp256k1Identity signs requests with ECDSA over secp256k1. Signatures are
// the 64-byte r||s form of SHA-256 over the domain separated request id.
type Secp256k1Identity struct {
	priv *ecdsa.PrivateKey
	der  []byte
}

// NewSecp256k1Identity loads a private key from hex.
func NewSecp256k1Identity(privateKeyHex string) (*Secp256k1Identity, error) {
	priv, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("error converting private key: %w", err)
	}
	return newSecp256k1Identity(priv)
}

func GenerateSecp256k1Identity() (*Secp256k1Identity, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return newSecp256k1Identity(priv)
}

func newSecp256k1Identity(priv *ecdsa.PrivateKey) (*Secp256k1Identity, error) {
	der, err := DEREncodeSecp256k1(crypto.FromECDSAPub(&priv.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Secp256k1Identity{priv: priv, der: der}, nil
}

func (id *Secp256k1Identity) PublicKey() []byte {
	return bytes.Clone(id.der)
}

func (id *Secp256k1Identity) Sender() principal.Principal {
	return principal.SelfAuthenticating(id.der)
}

func (id *Secp256k1Identity) Sign(reqID requestid.RequestID) ([]byte, error) {
	digest := common.Sha256(signingMessage(reqID))
	sig, err := crypto.Sign(digest.Bytes(), id.priv)
	if err != nil {
		return nil, fmt.Errorf("error signing the hash: %w", err)
	}
	// drop the recovery id
	return sig[:64], nil
}

// DEREncodeSecp256k1 wraps an uncompressed 65-byte point as
// SubjectPublicKeyInfo.
func DEREncodeSecp256k1(pub []byte) ([]byte, error) {
	if len(pub) != 65 || pub[0] != 0x04 {
		return nil, fmt.Errorf("secp256k1 public key must be 65 uncompressed bytes")
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidECPublicKey)
			b.AddASN1ObjectIdentifier(oidSecp256k1)
		})
		b.AddASN1BitString(pub)
	})
	return b.Bytes()
}

func DERDecodeSecp256k1(der []byte) ([]byte, error) {
	input := cryptobyte.String(der)
	var spki, algo cryptobyte.String
	var alg, curve encasn1.ObjectIdentifier
	var key []byte
	if !input.ReadASN1(&spki, asn1.SEQUENCE) || !input.Empty() ||
		!spki.ReadASN1(&algo, asn1.SEQUENCE) ||
		!algo.ReadASN1ObjectIdentifier(&alg) || !algo.ReadASN1ObjectIdentifier(&curve) || !algo.Empty() ||
		!spki.ReadASN1BitStringAsBytes(&key) || !spki.Empty() {
		return nil, fmt.Errorf("malformed secp256k1 DER key")
	}
	if !alg.Equal(oidECPublicKey) || !curve.Equal(oidSecp256k1) {
		return nil, fmt.Errorf("unexpected key algorithm %s/%s", alg, curve)
	}
	if len(key) != 65 {
		return nil, fmt.Errorf("secp256k1 public key must be 65 bytes, got %d", len(key))
	}
	return key, nil
}

// VerifySecp256k1 checks a 64-byte request signature against a DER public key.
func VerifySecp256k1(derKey []byte, reqID requestid.RequestID, sig []byte) bool {
	pub, err := DERDecodeSecp256k1(derKey)
	if err != nil || len(sig) != 64 {
		return false
	}
	digest := common.Sha256(signingMessage(reqID))
	return crypto.VerifySignature(pub, digest.Bytes(), sig)
}
