package principal

import (
	"errors"
	"testing"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextForm(t *testing.T) {
	testCases := []struct {
		hex  string
		text string
	}{
		{"", "aaaaa-aa"},
		{"04", "2vxsx-fae"},
		{"00000000000000020101", "ryjl3-tyaaa-aaaaa-aaaba-cai"},
		{"00000000000000000101", "rwlgt-iiaaa-aaaaa-aaaaa-cai"},
	}
	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			p, err := FromHex(tc.hex)
			require.NoError(t, err)
			assert.Equal(t, tc.text, p.String())

			parsed, err := FromText(tc.text)
			require.NoError(t, err)
			assert.True(t, parsed.Equal(p))
		})
	}
}

func TestSpecialPrincipals(t *testing.T) {
	assert.True(t, Anonymous().IsAnonymous())
	assert.True(t, ManagementCanister().IsManagementCanister())
	assert.Equal(t, "aaaaa-aa", ManagementCanister().String())

	self := SelfAuthenticating([]byte("abc"))
	require.Len(t, self.Raw, 29)
	assert.Equal(t, byte(SelfAuthenticatingSuffix), self.Raw[28])
	assert.Equal(t, byte(0x23), self.Raw[0])
}

func TestFromTextErrors(t *testing.T) {
	_, err := FromText("ryjl3-tyaaa-aaaaa-aaaba-caa")
	assert.Error(t, err)

	_, err = FromText("!!!")
	assert.True(t, errors.Is(err, agenterrors.ErrPInvalidText))

	_, err = FromText("RYJL3-TYAAA-AAAAA-AAABA-CAI")
	assert.True(t, errors.Is(err, agenterrors.ErrPNotCanonical))

	_, err = FromBytes(make([]byte, 30))
	assert.True(t, errors.Is(err, agenterrors.ErrPTooLong))
}

func TestCompare(t *testing.T) {
	a, _ := FromHex("00000000000000000101")
	b, _ := FromHex("00000000000000020101")
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestEncodings(t *testing.T) {
	p := MustFromText("ryjl3-tyaaa-aaaaa-aaaba-cai")

	text, err := p.MarshalText()
	require.NoError(t, err)
	var back Principal
	require.NoError(t, back.UnmarshalText(text))
	assert.True(t, back.Equal(p))

	enc, err := cbor.Marshal(p)
	require.NoError(t, err)
	var fromCBOR Principal
	require.NoError(t, cbor.Unmarshal(enc, &fromCBOR))
	assert.True(t, fromCBOR.Equal(p))

	enc, err = cbor.Marshal(Principal{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x40}, enc)
}
