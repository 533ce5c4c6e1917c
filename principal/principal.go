package principal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/colorfulnotion/icagent/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/multiformats/go-base32"
)

// MaxLength is the largest raw principal accepted by the network.
const MaxLength = 29

// Principal class suffixes.
const (
	OpaqueIdSuffix           = 0x01
	SelfAuthenticatingSuffix = 0x02
	DerivedIdSuffix          = 0x03
	AnonymousSuffix          = 0x04
	ReservedSuffix           = 0x7f
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Principal is a self-describing binary identity for a user or a canister.
type Principal struct {
	Raw []byte
}

// ManagementCanister is the empty principal addressing the management endpoint.
func ManagementCanister() Principal {
	return Principal{Raw: []byte{}}
}

// Anonymous returns the principal used by unauthenticated callers.
func Anonymous() Principal {
	return Principal{Raw: []byte{AnonymousSuffix}}
}

// SelfAuthenticating derives the principal of a DER-encoded public key.
func SelfAuthenticating(derPublicKey []byte) Principal {
	sum := common.Sha224(derPublicKey)
	raw := make([]byte, 0, len(sum)+1)
	raw = append(raw, sum[:]...)
	return Principal{Raw: append(raw, SelfAuthenticatingSuffix)}
}

// FromBytes copies raw into a principal.
func FromBytes(raw []byte) (Principal, error) {
	if len(raw) > MaxLength {
		return Principal{}, fmt.Errorf("%w: %d bytes", agenterrors.ErrPTooLong, len(raw))
	}
	return Principal{Raw: bytes.Clone(raw)}, nil
}

// FromHex parses a hex-encoded raw principal.
func FromHex(s string) (Principal, error) {
	raw, err := common.DecodeHex(s)
	if err != nil {
		return Principal{}, err
	}
	return FromBytes(raw)
}

// FromText parses the dashed, checksummed base32 text form.
func FromText(text string) (Principal, error) {
	stripped := strings.ToUpper(strings.ReplaceAll(text, "-", ""))
	decoded, err := encoding.DecodeString(stripped)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %q: %v", agenterrors.ErrPInvalidText, text, err)
	}
	if len(decoded) < 4 {
		return Principal{}, fmt.Errorf("%w: %q too short", agenterrors.ErrPInvalidText, text)
	}
	p, err := FromBytes(decoded[4:])
	if err != nil {
		return Principal{}, err
	}
	if binary.BigEndian.Uint32(decoded[:4]) != crc32.ChecksumIEEE(p.Raw) {
		return Principal{}, fmt.Errorf("%w: %q", agenterrors.ErrPChecksum, text)
	}
	if p.String() != text {
		return Principal{}, fmt.Errorf("%w: %q, expected %q", agenterrors.ErrPNotCanonical, text, p.String())
	}
	return p, nil
}

// MustFromText is FromText for constants; it panics on malformed input.
func MustFromText(text string) Principal {
	p, err := FromText(text)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the textual form: crc32 ‖ raw, base32 lowercase, grouped by five.
func (p Principal) String() string {
	checksum := make([]byte, 4, 4+len(p.Raw))
	binary.BigEndian.PutUint32(checksum, crc32.ChecksumIEEE(p.Raw))
	s := strings.ToLower(encoding.EncodeToString(append(checksum, p.Raw...)))
	var sb strings.Builder
	for i := 0; i < len(s); i += 5 {
		if i > 0 {
			sb.WriteByte('-')
		}
		end := i + 5
		if end > len(s) {
			end = len(s)
		}
		sb.WriteString(s[i:end])
	}
	return sb.String()
}

// Hex renders the raw bytes as 0x-prefixed hex.
func (p Principal) Hex() string {
	return common.Bytes2Hex(p.Raw)
}

func (p Principal) IsAnonymous() bool {
	return len(p.Raw) == 1 && p.Raw[0] == AnonymousSuffix
}

func (p Principal) IsManagementCanister() bool {
	return len(p.Raw) == 0
}

// Equal compares raw bytes.
func (p Principal) Equal(o Principal) bool {
	return bytes.Equal(p.Raw, o.Raw)
}

// Compare orders principals lexicographically by raw bytes.
func (p Principal) Compare(o Principal) int {
	return bytes.Compare(p.Raw, o.Raw)
}

func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := FromText(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalCBOR encodes the raw bytes as a CBOR byte string.
func (p Principal) MarshalCBOR() ([]byte, error) {
	if p.Raw == nil {
		return cbor.Marshal([]byte{})
	}
	return cbor.Marshal(p.Raw)
}

func (p *Principal) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromBytes(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
