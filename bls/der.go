package bls

import (
	"bytes"
	encasn1 "encoding/asn1"
	"fmt"

	"github.com/colorfulnotion/icagent/agenterrors"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

var (
	// oidBLS12381 and oidMinSig identify the algorithm and curve of an IC
	// BLS public key in SubjectPublicKeyInfo form.
	oidBLS12381 = encasn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 44668, 5, 3, 1, 2, 1}
	oidMinSig   = encasn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 44668, 5, 3, 2, 1}

	// DERPrefix is every byte of a DER key before the raw G2 point.
	DERPrefix = mustPrefix()
)

// DERKeyLen is the exact length of a DER encoded public key.
var DERKeyLen = len(DERPrefix) + G2Len

func mustPrefix() []byte {
	der, err := buildDER(make([]byte, G2Len))
	if err != nil {
		panic(err)
	}
	return der[:len(der)-G2Len]
}

func buildDER(key []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidBLS12381)
			b.AddASN1ObjectIdentifier(oidMinSig)
		})
		b.AddASN1BitString(key)
	})
	return b.Bytes()
}

// WrapDER encodes a raw public key as SubjectPublicKeyInfo.
func WrapDER(pk G2PublicKey) []byte {
	out := make([]byte, 0, DERKeyLen)
	out = append(out, DERPrefix...)
	return append(out, pk[:]...)
}

// UnwrapDER extracts the raw key. The input must be exactly the fixed prefix
// followed by 96 key bytes.
func UnwrapDER(der []byte) (G2PublicKey, error) {
	var pk G2PublicKey
	if len(der) != DERKeyLen {
		return pk, fmt.Errorf("%w: expected %d bytes, got %d", agenterrors.ErrVMalformedDERKey, DERKeyLen, len(der))
	}
	if !bytes.Equal(der[:len(DERPrefix)], DERPrefix) {
		return pk, fmt.Errorf("%w: unexpected prefix", agenterrors.ErrVMalformedDERKey)
	}
	copy(pk[:], der[len(DERPrefix):])
	return pk, nil
}
