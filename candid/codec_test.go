package candid

import (
	"errors"
	"math/big"
	"testing"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/colorfulnotion/icagent/principal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func didl(b ...byte) []byte {
	return append([]byte("DIDL"), b...)
}

func TestLabelHash(t *testing.T) {
	testCases := []struct {
		label string
		id    uint32
	}{
		{"a", 97},
		{"foo", 5097222},
		{"name", 1224700491},
		{"Ok", 17724},
		{"Err", 3456837},
		{"reply", 3871738154},
		{"certificate", 457361687},
		{"_0_", 0},
		{"_42_", 42},
		{"_0x10_", 16},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.id, LabelID(tc.label), tc.label)
	}
	assert.Equal(t, uint32(4735054), IdlHash("_0_"))
}

func TestEncodePrimitiveArgs(t *testing.T) {
	enc, err := Encode([]*Type{Nat8Type, TextType}, []any{7, "hi"})
	require.NoError(t, err)
	assert.Equal(t, didl(0x00, 0x02, 0x7b, 0x71, 0x07, 0x02, 'h', 'i'), enc)

	out, err := Decode([]*Type{Nat8Type, TextType}, enc)
	require.NoError(t, err)
	assert.Equal(t, []any{uint8(7), "hi"}, out)
}

func TestEncodeRecord(t *testing.T) {
	rec := Record(F("b", Nat8Type), F("a", TextType))
	enc, err := Encode([]*Type{rec}, []any{RecordValue{"a": "x", "b": uint8(5)}})
	require.NoError(t, err)
	expected := didl(0x01, 0x6c, 0x02, 0x61, 0x71, 0x62, 0x7b, 0x01, 0x00, 0x01, 'x', 0x05)
	assert.Equal(t, expected, enc)

	// field order in the constructor does not change the encoding
	swapped := Record(F("a", TextType), F("b", Nat8Type))
	enc2, err := Encode([]*Type{swapped}, []any{map[string]any{"b": 5, "a": "x"}})
	require.NoError(t, err)
	assert.Equal(t, expected, enc2)
}

func TestNatAndInt(t *testing.T) {
	big1, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	neg := big.NewInt(-123456)
	enc, err := Encode([]*Type{NatType, IntType}, []any{big1, neg})
	require.NoError(t, err)
	out, err := Decode([]*Type{NatType, IntType}, enc)
	require.NoError(t, err)
	assert.True(t, Equal(big1, out[0]))
	assert.True(t, Equal(neg, out[1]))

	_, err = Encode([]*Type{NatType}, []any{-1})
	assert.True(t, errors.Is(err, agenterrors.ErrCNegativeUnsigned))

	_, err = Encode([]*Type{Nat8Type}, []any{256})
	assert.True(t, errors.Is(err, agenterrors.ErrCOutOfRange))
}

func TestRecursiveList(t *testing.T) {
	env := NewTypeEnv()
	list := env.Declare("list")
	require.NoError(t, env.Fill(list, Opt(Record(F("head", IntType), F("tail", list)))))

	value := Some(RecordValue{
		"head": big.NewInt(1),
		"tail": Some(RecordValue{
			"head": big.NewInt(2),
			"tail": None(),
		}),
	})
	enc, err := Encode([]*Type{list}, []any{value})
	require.NoError(t, err)
	// two table entries: the opt and the record it wraps
	assert.Equal(t, byte(0x02), enc[4])

	out, err := Decode([]*Type{list}, enc)
	require.NoError(t, err)
	assert.True(t, Equal(value, out[0]), FormatValue(out[0]))
}

func TestOptRules(t *testing.T) {
	enc, err := Encode([]*Type{NatType}, []any{5})
	require.NoError(t, err)
	out, err := Decode([]*Type{Opt(NatType)}, enc)
	require.NoError(t, err)
	assert.True(t, Equal(Some(big.NewInt(5)), out[0]))

	// incompatible payload decodes as None
	enc, err = Encode([]*Type{Opt(TextType)}, []any{Some("x")})
	require.NoError(t, err)
	out, err = Decode([]*Type{Opt(NatType)}, enc)
	require.NoError(t, err)
	assert.Equal(t, None(), out[0])

	enc, err = Encode([]*Type{NullType}, []any{nil})
	require.NoError(t, err)
	out, err = Decode([]*Type{Opt(TextType)}, enc)
	require.NoError(t, err)
	assert.Equal(t, None(), out[0])

	// missing trailing argument
	enc, err = Encode(nil, nil)
	require.NoError(t, err)
	out, err = Decode([]*Type{Opt(NatType), ReservedType}, enc)
	require.NoError(t, err)
	assert.Equal(t, []any{None(), nil}, out)

	_, err = Decode([]*Type{NatType}, enc)
	assert.True(t, errors.Is(err, agenterrors.ErrCArgCount))
}

func TestWidening(t *testing.T) {
	enc, err := Encode([]*Type{Nat8Type, Int8Type, Float32Type}, []any{200, -3, float32(1.5)})
	require.NoError(t, err)

	out, err := Decode([]*Type{Nat16Type, Int64Type, Float64Type}, enc)
	require.NoError(t, err)
	assert.Equal(t, []any{uint16(200), int64(-3), 1.5}, out)

	out, err = Decode([]*Type{NatType, IntType, Float64Type}, enc)
	require.NoError(t, err)
	assert.True(t, Equal(big.NewInt(200), out[0]))
	assert.True(t, Equal(big.NewInt(-3), out[1]))

	_, err = Decode([]*Type{TextType}, enc)
	assert.True(t, errors.Is(err, agenterrors.ErrCTypeMismatch))

	enc, err = Encode([]*Type{Nat16Type}, []any{300})
	require.NoError(t, err)
	_, err = Decode([]*Type{Nat8Type}, enc)
	assert.True(t, errors.Is(err, agenterrors.ErrCTypeMismatch))
}

func TestRecordSubtyping(t *testing.T) {
	full := Record(F("a", TextType), F("b", Nat8Type))
	enc, err := Encode([]*Type{full}, []any{RecordValue{"a": "x", "b": 5}})
	require.NoError(t, err)

	out, err := Decode([]*Type{Record(F("b", Nat8Type))}, enc)
	require.NoError(t, err)
	assert.True(t, Equal(RecordValue{"b": uint8(5)}, out[0]))

	out, err = Decode([]*Type{Record(F("b", Nat8Type), F("c", Opt(NatType)))}, enc)
	require.NoError(t, err)
	assert.True(t, Equal(RecordValue{"b": uint8(5), "c": None()}, out[0]))

	_, err = Decode([]*Type{Record(F("c", NatType))}, enc)
	assert.True(t, errors.Is(err, agenterrors.ErrCMissingField))

	_, err = Encode([]*Type{full}, []any{RecordValue{"a": "x"}})
	assert.True(t, errors.Is(err, agenterrors.ErrCMissingField))

	// a misspelled opt field is not silently encoded as None
	withOpt := Record(F("a", TextType), F("note", Opt(TextType)))
	_, err = Encode([]*Type{withOpt}, []any{RecordValue{"a": "x", "note_": Some("hi")}})
	assert.True(t, errors.Is(err, agenterrors.ErrCInvalidValue))

	// fields may be addressed by id
	enc, err = Encode([]*Type{withOpt}, []any{RecordValue{"_97_": "x"}})
	require.NoError(t, err)
	out, err = Decode([]*Type{withOpt}, enc)
	require.NoError(t, err)
	assert.True(t, Equal(RecordValue{"a": "x", "note": None()}, out[0]))
}

func TestVariant(t *testing.T) {
	result := Variant(F("Ok", NatType), F("Err", TextType))
	enc, err := Encode([]*Type{result}, []any{VariantValue{Label: "Err", Value: "boom"}})
	require.NoError(t, err)

	out, err := Decode([]*Type{result}, enc)
	require.NoError(t, err)
	assert.Equal(t, VariantValue{Label: "Err", Value: "boom"}, out[0])

	_, err = Decode([]*Type{Variant(F("Ok", NatType))}, enc)
	assert.True(t, errors.Is(err, agenterrors.ErrCVariantTagNotFound))

	_, err = Encode([]*Type{result}, []any{VariantValue{Label: "Maybe"}})
	assert.True(t, errors.Is(err, agenterrors.ErrCVariantTagNotFound))
}

func TestReferences(t *testing.T) {
	canister := principal.MustFromText("ryjl3-tyaaa-aaaaa-aaaba-cai")
	fn := Func([]*Type{TextType}, []*Type{NatType}, AnnotationQuery)
	svc := Service(Method{Name: "lookup", Type: fn})
	ref := FuncRef{Service: canister, Method: "lookup"}

	enc, err := Encode([]*Type{PrincipalType, svc, fn}, []any{canister, canister, ref})
	require.NoError(t, err)
	out, err := Decode([]*Type{PrincipalType, svc, fn}, enc)
	require.NoError(t, err)
	assert.True(t, Equal(canister, out[0]))
	assert.True(t, Equal(canister, out[1]))
	assert.True(t, Equal(ref, out[2]))
}

func TestMalformedInput(t *testing.T) {
	enc, err := Encode([]*Type{TextType}, []any{"hi"})
	require.NoError(t, err)

	_, err = Decode([]*Type{TextType}, append(enc, 0x00))
	assert.True(t, errors.Is(err, agenterrors.ErrCTrailingData))

	_, err = Decode([]*Type{TextType}, append([]byte("DIDX"), enc[4:]...))
	assert.True(t, errors.Is(err, agenterrors.ErrCBadMagic))

	_, err = Decode([]*Type{TextType}, enc[:len(enc)-1])
	assert.True(t, errors.Is(err, agenterrors.ErrCUnexpectedEnd))

	_, _, err = DecodeUntyped(didl(0x00, 0x01, 0x05))
	assert.True(t, errors.Is(err, agenterrors.ErrCUndeclaredTypeRef))

	// table longer than the message
	_, _, err = DecodeUntyped(didl(0xff, 0xff, 0xff, 0xff, 0x0f))
	assert.True(t, errors.Is(err, agenterrors.ErrCInvalidTypeTable))

	// vec length beyond the input
	_, _, err = DecodeUntyped(didl(0x01, 0x6d, 0x7b, 0x01, 0x00, 0xff, 0xff, 0xff, 0x0f))
	assert.True(t, errors.Is(err, agenterrors.ErrCUnexpectedEnd))

	// 2^21 nulls is over the zero-sized cap
	_, _, err = DecodeUntyped(didl(0x01, 0x6d, 0x7f, 0x01, 0x00, 0x80, 0x80, 0x80, 0x01))
	assert.True(t, errors.Is(err, agenterrors.ErrCInvalidValue))

	// the zero-sized cap holds across the whole message
	nested := didl(0x02, 0x6d, 0x7f, 0x6d, 0x00, 0x01, 0x01, 0x02, 0x80, 0x80, 0x40, 0x80, 0x80, 0x40)
	_, _, err = DecodeUntyped(nested)
	assert.True(t, errors.Is(err, agenterrors.ErrCInvalidValue))
	_, err = Decode([]*Type{Vec(Vec(NullType))}, nested)
	assert.True(t, errors.Is(err, agenterrors.ErrCInvalidValue))
	_, err = Decode([]*Type{Vec(Vec(ReservedType))}, nested)
	assert.True(t, errors.Is(err, agenterrors.ErrCInvalidValue))

	// primitive opcodes are not table entries
	_, _, err = DecodeUntyped(didl(0x01, 0x7b, 0x00))
	assert.True(t, errors.Is(err, agenterrors.ErrCInvalidTypeTable))

	_, err = Decode([]*Type{TextType}, didl(0x00, 0x01, 0x71, 0x01, 0xff))
	assert.True(t, errors.Is(err, agenterrors.ErrCInvalidUTF8))
}

func TestZeroSizedWithinBudget(t *testing.T) {
	_, values, err := DecodeUntyped(didl(0x02, 0x6d, 0x7f, 0x6d, 0x00, 0x01, 0x01, 0x02, 0x03, 0x04))
	require.NoError(t, err)
	require.Len(t, values, 1)
	outer, ok := values[0].([]any)
	require.True(t, ok)
	require.Len(t, outer, 2)
	assert.Len(t, outer[0], 3)
	assert.Len(t, outer[1], 4)
}

func TestDecodeUntyped(t *testing.T) {
	rec := Record(F("a", TextType), F("b", Nat8Type))
	enc, err := Encode([]*Type{rec, BoolType}, []any{RecordValue{"a": "x", "b": 5}, true})
	require.NoError(t, err)

	types, values, err := DecodeUntyped(enc)
	require.NoError(t, err)
	require.Len(t, types, 2)
	rt, err := Resolve(types[0])
	require.NoError(t, err)
	assert.Equal(t, "record { 97 : text; 98 : nat8 }", rt.String())
	assert.Equal(t, `(record { 97 = "x"; 98 = 5 }, true)`, FormatArgs(values))
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "vec opt nat", Vec(Opt(NatType)).String())
	assert.Equal(t, "record { nat8; text }", Tuple(Nat8Type, TextType).String())
	assert.Equal(t, "func (text) -> (nat) query", Func([]*Type{TextType}, []*Type{NatType}, AnnotationQuery).String())
	assert.Equal(t, "variant { Ok : nat; Err : text }", Variant(F("Err", TextType), F("Ok", NatType)).String())
}

func TestSubtype(t *testing.T) {
	assert.True(t, IsSubtype(NatType, IntType))
	assert.False(t, IsSubtype(IntType, NatType))
	assert.True(t, IsSubtype(Nat8Type, Nat32Type))
	assert.False(t, IsSubtype(Nat32Type, Nat8Type))
	assert.True(t, IsSubtype(TextType, Opt(NatType)))
	assert.True(t, IsSubtype(Record(F("a", NatType), F("b", TextType)), Record(F("a", IntType))))
	assert.False(t, IsSubtype(Record(F("a", NatType)), Record(F("b", TextType))))
	assert.True(t, IsSubtype(Variant(F("Ok", NatType)), Variant(F("Ok", IntType), F("Err", TextType))))
}

func TestRandomRoundTrip(t *testing.T) {
	env := NewTypeEnv()
	tree := env.Declare("tree")
	require.NoError(t, env.Fill(tree, Variant(
		F("leaf", Nat16Type),
		F("node", Record(F("left", tree), F("right", tree))),
	)))

	types := []*Type{
		BoolType, NatType, IntType, Int32Type, Nat64Type, Float32Type, Float64Type,
		TextType, PrincipalType, NullType, Blob(),
		Opt(Vec(TextType)),
		Tuple(Int8Type, Opt(PrincipalType), Vec(Nat8Type)),
		Record(F("name", TextType), F("tags", Vec(Record(F("k", TextType), F("v", IntType))))),
		Variant(F("Ok", Vec(NatType)), F("Err", TextType), F("none", NullType)),
		Func([]*Type{TextType}, nil, AnnotationOneway),
		tree,
	}
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 40; round++ {
		values := make([]any, len(types))
		for i, typ := range types {
			v, err := Generate(typ, r, 6)
			require.NoError(t, err, typ.String())
			values[i] = v
		}
		enc, err := Encode(types, values)
		require.NoError(t, err)
		out, err := Decode(types, enc)
		require.NoError(t, err)
		for i := range types {
			assert.True(t, Equal(values[i], out[i]), "%s: %s != %s", types[i], FormatValue(values[i]), FormatValue(out[i]))
		}
	}
}
