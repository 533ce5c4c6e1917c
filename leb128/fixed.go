package leb128

import (
	"fmt"
	"io"
	"math/big"

	"github.com/colorfulnotion/icagent/agenterrors"
	"golang.org/x/exp/constraints"
)

// AppendLE appends the size-byte little-endian form of v to dst.
func AppendLE[T constraints.Integer](dst []byte, v T, size int) []byte {
	u := uint64(v)
	for i := 0; i < size; i++ {
		dst = append(dst, byte(u))
		u >>= 8
	}
	return dst
}

// ReadLE reads size little-endian bytes into T. Signed T is sign-extended by the conversion.
func ReadLE[T constraints.Integer](r io.Reader, size int) (T, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, fmt.Errorf("%w: want %d bytes", agenterrors.ErrCUnexpectedEnd, size)
	}
	var u uint64
	for i := size - 1; i >= 0; i-- {
		u = u<<8 | uint64(buf[i])
	}
	if size < 8 {
		var zero T
		if zero-1 < 0 && buf[size-1]&0x80 != 0 {
			u |= ^uint64(0) << (8 * size)
		}
	}
	return T(u), nil
}

// FitsUnsigned reports whether x is representable in bits unsigned bits.
func FitsUnsigned(x *big.Int, bits int) bool {
	return x.Sign() >= 0 && x.BitLen() <= bits
}

// FitsSigned reports whether x is representable in bits two's-complement bits.
func FitsSigned(x *big.Int, bits int) bool {
	lo := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), uint(bits-1)))
	hi := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bits-1)), big.NewInt(1))
	return x.Cmp(lo) >= 0 && x.Cmp(hi) <= 0
}

// EncodeFixed bound-checks x against the width and returns its little-endian bytes.
func EncodeFixed(x *big.Int, bits int, signed bool) ([]byte, error) {
	if signed && !FitsSigned(x, bits) || !signed && !FitsUnsigned(x, bits) {
		return nil, fmt.Errorf("%w: %s does not fit in %d bits", agenterrors.ErrCOutOfRange, x, bits)
	}
	if signed {
		return AppendLE(nil, x.Int64(), bits/8), nil
	}
	return AppendLE(nil, x.Uint64(), bits/8), nil
}
