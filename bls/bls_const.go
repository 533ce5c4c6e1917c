package bls

const (
	G1Len        = 48
	G2Len        = 96
	SecretKeyLen = 32
	SigLen       = 48

	// DST is the hash-to-curve domain separation tag of the min-sig scheme.
	DST = "BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_"
)
