package leb128

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/colorfulnotion/icagent/agenterrors"
)

var (
	big0    = big.NewInt(0)
	bigM1   = big.NewInt(-1)
	big7f   = big.NewInt(0x7f)
	maxU64  = new(big.Int).SetUint64(^uint64(0))
)

// EncodeUnsigned encodes a non-negative integer as unsigned LEB128.
func EncodeUnsigned(x *big.Int) ([]byte, error) {
	if x.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", agenterrors.ErrCNegativeUnsigned, x)
	}
	if x.IsUint64() {
		return EncodeUint64(x.Uint64()), nil
	}
	v := new(big.Int).Set(x)
	low := new(big.Int)
	out := []byte{}
	for {
		b := byte(low.And(v, big7f).Uint64())
		v.Rsh(v, 7)
		if v.Sign() == 0 {
			out = append(out, b)
			return out, nil
		}
		out = append(out, b|0x80)
	}
}

// EncodeUint64 is the machine-word fast path of EncodeUnsigned.
func EncodeUint64(x uint64) []byte {
	out := make([]byte, 0, 10)
	for {
		b := byte(x & 0x7f)
		x >>= 7
		if x == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// DecodeUnsigned reads one unsigned LEB128 value.
func DecodeUnsigned(r io.ByteReader) (*big.Int, error) {
	groups, err := readGroups(r)
	if err != nil {
		return nil, err
	}
	return fromGroups(groups), nil
}

// readGroups collects the 7-bit payloads up to and including the final byte.
func readGroups(r io.ByteReader) ([]byte, error) {
	groups := make([]byte, 0, 10)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, truncated(err)
		}
		groups = append(groups, b&0x7f)
		if b&0x80 == 0 {
			return groups, nil
		}
	}
}

// fromGroups packs little-endian 7-bit groups into an integer in one pass.
func fromGroups(groups []byte) *big.Int {
	if len(groups) <= 9 {
		var v uint64
		for i, g := range groups {
			v |= uint64(g) << (7 * uint(i))
		}
		return new(big.Int).SetUint64(v)
	}
	le := make([]byte, (7*len(groups)+7)/8)
	bit := 0
	for _, g := range groups {
		idx, off := bit/8, uint(bit%8)
		le[idx] |= g << off
		if off > 1 && idx+1 < len(le) {
			le[idx+1] |= g >> (8 - off)
		}
		bit += 7
	}
	for i, j := 0, len(le)-1; i < j; i, j = i+1, j-1 {
		le[i], le[j] = le[j], le[i]
	}
	return new(big.Int).SetBytes(le)
}

// DecodeUint64 reads an unsigned LEB128 value that must fit in 64 bits.
func DecodeUint64(r io.ByteReader) (uint64, error) {
	v, err := DecodeUnsigned(r)
	if err != nil {
		return 0, err
	}
	if v.Cmp(maxU64) > 0 {
		return 0, fmt.Errorf("%w: %s", agenterrors.ErrCLEBOverflow, v)
	}
	return v.Uint64(), nil
}

// EncodeSigned encodes an integer as signed LEB128 (two's complement groups).
func EncodeSigned(x *big.Int) []byte {
	v := new(big.Int).Set(x)
	low := new(big.Int)
	out := []byte{}
	for {
		b := byte(low.And(v, big7f).Uint64())
		v.Rsh(v, 7)
		if (v.Cmp(big0) == 0 && b&0x40 == 0) || (v.Cmp(bigM1) == 0 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// EncodeInt64 is the machine-word fast path of EncodeSigned.
func EncodeInt64(x int64) []byte {
	out := make([]byte, 0, 10)
	for {
		b := byte(x & 0x7f)
		x >>= 7
		if (x == 0 && b&0x40 == 0) || (x == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// DecodeSigned reads one signed LEB128 value.
func DecodeSigned(r io.ByteReader) (*big.Int, error) {
	groups, err := readGroups(r)
	if err != nil {
		return nil, err
	}
	result := fromGroups(groups)
	if groups[len(groups)-1]&0x40 != 0 {
		result.Sub(result, new(big.Int).Lsh(big.NewInt(1), 7*uint(len(groups))))
	}
	return result, nil
}

// DecodeInt64 reads a signed LEB128 value that must fit in 64 bits.
func DecodeInt64(r io.ByteReader) (int64, error) {
	v, err := DecodeSigned(r)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("%w: %s", agenterrors.ErrCLEBOverflow, v)
	}
	return v.Int64(), nil
}

// Decode is a convenience wrapper over DecodeUnsigned for a complete buffer.
func Decode(b []byte) (*big.Int, error) {
	return DecodeUnsigned(bytes.NewReader(b))
}

// DecodeSignedBytes is a convenience wrapper over DecodeSigned for a complete buffer.
func DecodeSignedBytes(b []byte) (*big.Int, error) {
	return DecodeSigned(bytes.NewReader(b))
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return agenterrors.ErrCTruncatedLEB
	}
	return err
}
