package leb128

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsignedVectors(t *testing.T) {
	testCases := []struct {
		value    uint64
		expected []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
		{^uint64(0), []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}},
	}
	for _, tc := range testCases {
		enc, err := EncodeUnsigned(new(big.Int).SetUint64(tc.value))
		require.NoError(t, err)
		assert.Equal(t, tc.expected, enc)
		assert.Equal(t, tc.expected, EncodeUint64(tc.value))

		dec, err := Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, tc.value, dec.Uint64())
	}
}

func TestSignedVectors(t *testing.T) {
	testCases := []struct {
		value    int64
		expected []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7f}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{-64, []byte{0x40}},
		{-65, []byte{0xbf, 0x7f}},
		{-123456, []byte{0xc0, 0xbb, 0x78}},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, EncodeSigned(big.NewInt(tc.value)), "value %d", tc.value)
		assert.Equal(t, tc.expected, EncodeInt64(tc.value), "value %d", tc.value)

		dec, err := DecodeSignedBytes(tc.expected)
		require.NoError(t, err)
		assert.Equal(t, tc.value, dec.Int64())
	}
}

func TestRoundTripBig(t *testing.T) {
	n, ok := new(big.Int).SetString("123456789", 10)
	require.True(t, ok)
	enc, err := EncodeUnsigned(n)
	require.NoError(t, err)
	dec, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, 0, n.Cmp(dec))

	huge, _ := new(big.Int).SetString("340282366920938463463374607431768211457", 10)
	enc, err = EncodeUnsigned(huge)
	require.NoError(t, err)
	dec, err = Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, 0, huge.Cmp(dec))

	negHuge := new(big.Int).Neg(huge)
	sdec, err := DecodeSignedBytes(EncodeSigned(negHuge))
	require.NoError(t, err)
	assert.Equal(t, 0, negHuge.Cmp(sdec))
}

func TestTruncated(t *testing.T) {
	_, err := Decode([]byte{0x80, 0x80})
	assert.True(t, errors.Is(err, agenterrors.ErrCTruncatedLEB))

	_, err = DecodeSignedBytes([]byte{})
	assert.True(t, errors.Is(err, agenterrors.ErrCTruncatedLEB))
}

func TestNegativeUnsigned(t *testing.T) {
	_, err := EncodeUnsigned(big.NewInt(-5))
	assert.True(t, errors.Is(err, agenterrors.ErrCNegativeUnsigned))
}

func TestDecodeUint64Overflow(t *testing.T) {
	enc, err := EncodeUnsigned(new(big.Int).Lsh(big.NewInt(1), 64))
	require.NoError(t, err)
	_, err = DecodeUint64(bytes.NewReader(enc))
	assert.True(t, errors.Is(err, agenterrors.ErrCLEBOverflow))

	enc = EncodeSigned(new(big.Int).Lsh(big.NewInt(1), 63))
	_, err = DecodeInt64(bytes.NewReader(enc))
	assert.True(t, errors.Is(err, agenterrors.ErrCLEBOverflow))
}

func TestLongEncodings(t *testing.T) {
	// redundant continuation groups decode to the same value
	dec, err := Decode([]byte{0x85, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x00})
	require.NoError(t, err)
	assert.Equal(t, int64(5), dec.Int64())

	sdec, err := DecodeSignedBytes([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), sdec.Int64())

	n := 200_000
	data := append(bytes.Repeat([]byte{0xff}, n), 0x01)
	start := time.Now()
	dec, err = Decode(data)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 7*n+1, dec.BitLen())

	start = time.Now()
	sdec, err = DecodeSignedBytes(append(bytes.Repeat([]byte{0xff}, n), 0x7f))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int64(-1), sdec.Int64())
}

func TestFixedWidth(t *testing.T) {
	enc, err := EncodeFixed(big.NewInt(-2), 16, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfe, 0xff}, enc)

	v16, err := ReadLE[int16](bytes.NewReader(enc), 2)
	require.NoError(t, err)
	assert.Equal(t, int16(-2), v16)

	v64, err := ReadLE[int64](bytes.NewReader(enc), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), v64)

	u, err := ReadLE[uint32](bytes.NewReader([]byte{0x01, 0x02, 0x03, 0x04}), 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x04030201), u)

	_, err = EncodeFixed(big.NewInt(256), 8, false)
	assert.True(t, errors.Is(err, agenterrors.ErrCOutOfRange))
	_, err = EncodeFixed(big.NewInt(128), 8, true)
	assert.True(t, errors.Is(err, agenterrors.ErrCOutOfRange))
	_, err = EncodeFixed(big.NewInt(-1), 8, false)
	assert.True(t, errors.Is(err, agenterrors.ErrCOutOfRange))

	_, err = ReadLE[uint64](bytes.NewReader([]byte{1, 2}), 8)
	assert.True(t, errors.Is(err, agenterrors.ErrCUnexpectedEnd))
}
