// Package candid implements the Candid interface description language wire
// format: a self-describing type table followed by argument values.
package candid

import (
	"fmt"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/colorfulnotion/icagent/leb128"
	"github.com/colorfulnotion/icagent/log"
)

// Encode serializes an argument sequence. values[i] must be a value of types[i]:
//
//	null        nil
//	bool        bool
//	nat, int    *big.Int, *uint256.Int or any Go integer
//	natN, intN  any Go integer in range
//	floatN      float32 or float64
//	text        string
//	principal   principal.Principal or its text form
//	opt t       Option, nil or a bare value of t
//	vec t       []any, []byte for blobs, or any Go slice
//	record      RecordValue (or map[string]any); []any for tuples
//	variant     VariantValue
//	func        FuncRef
//	service     principal.Principal
func Encode(types []*Type, values []any) ([]byte, error) {
	if len(types) != len(values) {
		return nil, fmt.Errorf("%w: %d types, %d values", agenterrors.ErrCArgCount, len(types), len(values))
	}
	tt := newTypeTable()
	refs := make([]int64, len(types))
	for i, t := range types {
		r, err := tt.ref(t)
		if err != nil {
			return nil, err
		}
		refs[i] = r
	}

	es := &encodeState{}
	es.Write(Magic)
	es.writeLen(len(tt.entries))
	for _, e := range tt.entries {
		es.Write(e)
	}
	es.writeLen(len(refs))
	for _, r := range refs {
		es.Write(leb128.EncodeInt64(r))
	}
	for i, t := range types {
		if err := es.encodeValue(t, values[i]); err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
	}
	log.Trace(log.CandidModule, "Encode", "args", len(types), "table", len(tt.entries), "len", es.Len())
	return es.Bytes(), nil
}

// Decode parses a message against the expected argument types. Values are
// coerced by subtyping: extra record fields and extra trailing arguments are
// skipped, while missing optional fields and arguments decode as None.
//
// Decoded values use nil, bool, *big.Int (nat, int), uint8..uint64,
// int8..int64, float32, float64, string, principal.Principal, Option,
// []byte (blob), []any, RecordValue, VariantValue and FuncRef.
func Decode(types []*Type, data []byte) ([]any, error) {
	ds := newDecodeState(data)
	wire, err := ds.readHeader()
	if err != nil {
		return nil, err
	}
	if err := ds.checkTable(); err != nil {
		return nil, err
	}
	out := make([]any, len(types))
	for i, t := range types {
		if i >= len(wire) {
			if !optional(t) {
				return nil, fmt.Errorf("%w: missing argument %d", agenterrors.ErrCArgCount, i)
			}
			if rt, _ := Resolve(t); rt.Kind == KindOpt {
				out[i] = None()
			}
			continue
		}
		v, err := ds.decodeValue(wire[i], t)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out[i] = v
	}
	for i := len(types); i < len(wire); i++ {
		if err := ds.skipValue(wire[i]); err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
	}
	if ds.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes", agenterrors.ErrCTrailingData, ds.Len())
	}
	log.Trace(log.CandidModule, "Decode", "args", len(types), "wireArgs", len(wire), "table", ds.env.Len())
	return out, nil
}

// DecodeUntyped parses a message using its own type table. Record and
// variant labels are only known by id and come back as "_<id>_".
func DecodeUntyped(data []byte) ([]*Type, []any, error) {
	ds := newDecodeState(data)
	wire, err := ds.readHeader()
	if err != nil {
		return nil, nil, err
	}
	if err := ds.checkTable(); err != nil {
		return nil, nil, err
	}
	out := make([]any, len(wire))
	for i, t := range wire {
		if out[i], err = ds.decodeValue(t, t); err != nil {
			return nil, nil, fmt.Errorf("arg %d: %w", i, err)
		}
	}
	if ds.Len() != 0 {
		return nil, nil, fmt.Errorf("%w: %d bytes", agenterrors.ErrCTrailingData, ds.Len())
	}
	return wire, out, nil
}
