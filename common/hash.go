package common

import (
	"crypto/sha256"

	sha256simd "github.com/minio/sha256-simd"
)

// Sha256 computes the SHA-256 digest of the concatenation of the given chunks.
func Sha256(chunks ...[]byte) Hash {
	h := sha256simd.New()
	for _, c := range chunks {
		h.Write(c)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Sha224 is only used for self-authenticating principals.
func Sha224(data []byte) [sha256.Size224]byte {
	return sha256.Sum224(data)
}

// DomainSeparator returns the length-prefixed form of a domain separation tag.
func DomainSeparator(tag string) []byte {
	out := make([]byte, 0, len(tag)+1)
	out = append(out, byte(len(tag)))
	return append(out, tag...)
}
