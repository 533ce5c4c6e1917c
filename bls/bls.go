// Package bls implements BLS12-381 signatures in the min-sig variant:
// signatures in G1 (48 bytes compressed), public keys in G2 (96 bytes).
package bls

import (
	"errors"
	"math/big"
	"sync"

	"github.com/colorfulnotion/icagent/common"
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

type G2PublicKey [G2Len]byte

func (g2 *G2PublicKey) Bytes() []byte {
	return g2[:]
}

type SecretKey [SecretKeyLen]byte

func (sk *SecretKey) Bytes() []byte {
	return sk[:]
}

type Signature [SigLen]byte

func (s *Signature) Bytes() []byte {
	return s[:]
}

// GetSecretKey derives a secret scalar from seed: SHA-256(seed) reduced
// modulo the group order.
func GetSecretKey(seed []byte) (SecretKey, error) {
	var e fr.Element
	h := common.Sha256(seed)
	e.SetBytes(h[:])
	if e.IsZero() {
		return SecretKey{}, errors.New("seed maps to the zero scalar")
	}
	return SecretKey(e.Bytes()), nil
}

// GetPublicKey_G2 returns the G2 public key of the secret derived from seed.
func GetPublicKey_G2(seed []byte) (G2PublicKey, error) {
	secret, err := GetSecretKey(seed)
	if err != nil {
		return G2PublicKey{}, err
	}
	return secret.PublicKey(), nil
}

func (secret *SecretKey) scalar() *big.Int {
	return new(big.Int).SetBytes(secret[:])
}

// PublicKey returns sk·G2.
func (secret *SecretKey) PublicKey() G2PublicKey {
	var pk bls12381.G2Affine
	pk.ScalarMultiplicationBase(secret.scalar())
	return G2PublicKey(pk.Bytes())
}

// Sign returns sk·H(msg) with H the hash to G1 under DST.
func (secret *SecretKey) Sign(msg []byte) (Signature, error) {
	h, err := bls12381.HashToG1(msg, []byte(DST))
	if err != nil {
		return Signature{}, err
	}
	var sig bls12381.G1Affine
	sig.ScalarMultiplication(&h, secret.scalar())
	return Signature(sig.Bytes()), nil
}

// Verify checks sig over msg with the process-wide verifier.
func (pub *G2PublicKey) Verify(msg []byte, sig Signature) bool {
	return DefaultVerifier().Verify(pub[:], msg, sig[:])
}

// Verifier holds the precomputed negated G2 generator used by every pairing
// check. It is immutable and safe for concurrent use.
type Verifier struct {
	negG2 bls12381.G2Affine
	dst   []byte
}

func NewVerifier() *Verifier {
	_, _, _, g2 := bls12381.Generators()
	v := &Verifier{dst: []byte(DST)}
	v.negG2.Neg(&g2)
	return v
}

// DefaultVerifier returns the shared verifier, created on first use.
var DefaultVerifier = sync.OnceValue(NewVerifier)

// Verify reports whether sig is a valid signature of msg under the raw
// 96-byte public key pk. Malformed inputs and primitive failures all report
// false.
func (v *Verifier) Verify(pk, msg, sig []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if len(pk) != G2Len || len(sig) != SigLen {
		return false
	}
	var s bls12381.G1Affine
	if _, err := s.SetBytes(sig); err != nil || s.IsInfinity() {
		return false
	}
	var p bls12381.G2Affine
	if _, err := p.SetBytes(pk); err != nil || p.IsInfinity() {
		return false
	}
	h, err := bls12381.HashToG1(msg, v.dst)
	if err != nil {
		return false
	}
	// e(sig, -g2) · e(H(m), pk) == 1
	ok, err = bls12381.PairingCheck([]bls12381.G1Affine{s, h}, []bls12381.G2Affine{v.negG2, p})
	return err == nil && ok
}
