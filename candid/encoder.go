package candid

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"unicode/utf8"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/colorfulnotion/icagent/leb128"
)

// Magic is the header of every Candid message.
var Magic = []byte("DIDL")

// typeTable assigns a stable index to every distinct constructed type reached
// from the argument types. Entries are serialized as they are first reached.
type typeTable struct {
	entries [][]byte
	index   map[*Type]int
}

func newTypeTable() *typeTable {
	return &typeTable{index: make(map[*Type]int)}
}

// ref returns the type reference of t: the negative opcode for primitives,
// the table index otherwise.
func (tt *typeTable) ref(t *Type) (int64, error) {
	t, err := Resolve(t)
	if err != nil {
		return 0, err
	}
	if t.Kind.IsPrimitive() {
		return int64(t.Kind), nil
	}
	if idx, ok := tt.index[t]; ok {
		return int64(idx), nil
	}
	// reserve the slot before visiting children so recursive types terminate
	idx := len(tt.entries)
	tt.index[t] = idx
	tt.entries = append(tt.entries, nil)

	entry, err := tt.entry(t)
	if err != nil {
		return 0, err
	}
	tt.entries[idx] = entry
	return int64(idx), nil
}

func (tt *typeTable) entry(t *Type) ([]byte, error) {
	buf := leb128.EncodeInt64(int64(t.Kind))
	switch t.Kind {
	case KindOpt, KindVec:
		r, err := tt.ref(t.Elem)
		if err != nil {
			return nil, err
		}
		return append(buf, leb128.EncodeInt64(r)...), nil
	case KindRecord, KindVariant:
		buf = append(buf, leb128.EncodeUint64(uint64(len(t.Fields)))...)
		for i, f := range t.Fields {
			if i > 0 {
				prev := t.Fields[i-1].ID()
				if prev == f.ID() {
					return nil, fmt.Errorf("%w: %q and %q", agenterrors.ErrCDuplicateField, t.Fields[i-1].Name, f.Name)
				}
				if prev > f.ID() {
					return nil, fmt.Errorf("%w: %q", agenterrors.ErrCUnsortedFields, f.Name)
				}
			}
			r, err := tt.ref(f.Type)
			if err != nil {
				return nil, err
			}
			buf = append(buf, leb128.EncodeUint64(uint64(f.ID()))...)
			buf = append(buf, leb128.EncodeInt64(r)...)
		}
		return buf, nil
	case KindFunc:
		var err error
		if buf, err = tt.appendRefs(buf, t.Args); err != nil {
			return nil, err
		}
		if buf, err = tt.appendRefs(buf, t.Rets); err != nil {
			return nil, err
		}
		buf = append(buf, leb128.EncodeUint64(uint64(len(t.Annotations)))...)
		for _, a := range t.Annotations {
			if a < AnnotationQuery || a > AnnotationCompositeQuery {
				return nil, fmt.Errorf("%w: %d", agenterrors.ErrCUnsupportedAnnotation, a)
			}
			buf = append(buf, byte(a))
		}
		return buf, nil
	case KindService:
		buf = append(buf, leb128.EncodeUint64(uint64(len(t.Methods)))...)
		for _, m := range t.Methods {
			mt, err := Resolve(m.Type)
			if err != nil {
				return nil, err
			}
			if mt.Kind != KindFunc {
				return nil, fmt.Errorf("%w: method %q is not a function", agenterrors.ErrCInvalidTypeTable, m.Name)
			}
			r, err := tt.ref(mt)
			if err != nil {
				return nil, err
			}
			buf = append(buf, leb128.EncodeUint64(uint64(len(m.Name)))...)
			buf = append(buf, m.Name...)
			buf = append(buf, leb128.EncodeInt64(r)...)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("%w: kind %d", agenterrors.ErrCInvalidTypeTable, t.Kind)
}

func (tt *typeTable) appendRefs(buf []byte, types []*Type) ([]byte, error) {
	buf = append(buf, leb128.EncodeUint64(uint64(len(types)))...)
	for _, t := range types {
		r, err := tt.ref(t)
		if err != nil {
			return nil, err
		}
		buf = append(buf, leb128.EncodeInt64(r)...)
	}
	return buf, nil
}

type encodeState struct {
	bytes.Buffer
}

func (es *encodeState) writeUnsigned(x *big.Int) error {
	b, err := leb128.EncodeUnsigned(x)
	if err != nil {
		return err
	}
	es.Write(b)
	return nil
}

func (es *encodeState) writeLen(n int) {
	es.Write(leb128.EncodeUint64(uint64(n)))
}

func (es *encodeState) writePrincipalRef(raw []byte) {
	es.WriteByte(1)
	es.writeLen(len(raw))
	es.Write(raw)
}

func (es *encodeState) encodeValue(t *Type, v any) (err error) {
	t, err = Resolve(t)
	if err != nil {
		return err
	}
	switch t.Kind {
	case KindNull:
		if v != nil {
			return invalidValue(t, v)
		}
	case KindReserved:
	case KindEmpty:
		return agenterrors.ErrCEmptyValue
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return invalidValue(t, v)
		}
		if b {
			es.WriteByte(1)
		} else {
			es.WriteByte(0)
		}
	case KindNat:
		n, ok := toBig(v)
		if !ok {
			return invalidValue(t, v)
		}
		return es.writeUnsigned(n)
	case KindInt:
		n, ok := toBig(v)
		if !ok {
			return invalidValue(t, v)
		}
		es.Write(leb128.EncodeSigned(n))
	case KindNat8, KindNat16, KindNat32, KindNat64, KindInt8, KindInt16, KindInt32, KindInt64:
		n, ok := toBig(v)
		if !ok {
			return invalidValue(t, v)
		}
		size, signed, _ := fixedWidth(t.Kind)
		b, err := leb128.EncodeFixed(n, size*8, signed)
		if err != nil {
			return err
		}
		es.Write(b)
	case KindFloat32:
		f, ok := toFloat(v)
		if !ok {
			return invalidValue(t, v)
		}
		es.Write(leb128.AppendLE(nil, math.Float32bits(float32(f)), 4))
	case KindFloat64:
		f, ok := toFloat(v)
		if !ok {
			return invalidValue(t, v)
		}
		es.Write(leb128.AppendLE(nil, math.Float64bits(f), 8))
	case KindText:
		s, ok := v.(string)
		if !ok {
			return invalidValue(t, v)
		}
		if !utf8.ValidString(s) {
			return agenterrors.ErrCInvalidUTF8
		}
		es.writeLen(len(s))
		es.WriteString(s)
	case KindPrincipal, KindService:
		p, ok := toPrincipal(v)
		if !ok {
			return invalidValue(t, v)
		}
		es.writePrincipalRef(p.Raw)
	case KindFunc:
		ref, ok := v.(FuncRef)
		if !ok {
			return invalidValue(t, v)
		}
		es.WriteByte(1)
		es.writePrincipalRef(ref.Service.Raw)
		es.writeLen(len(ref.Method))
		es.WriteString(ref.Method)
	case KindOpt:
		return es.encodeOpt(t, v)
	case KindVec:
		return es.encodeVec(t, v)
	case KindRecord:
		return es.encodeRecord(t, v)
	case KindVariant:
		return es.encodeVariant(t, v)
	default:
		return fmt.Errorf("%w: kind %d", agenterrors.ErrCInvalidTypeTable, t.Kind)
	}
	return nil
}

func (es *encodeState) encodeOpt(t *Type, v any) error {
	var inner any
	switch o := v.(type) {
	case nil:
		es.WriteByte(0)
		return nil
	case Option:
		if !o.Some {
			es.WriteByte(0)
			return nil
		}
		inner = o.Value
	case *Option:
		if o == nil || !o.Some {
			es.WriteByte(0)
			return nil
		}
		inner = o.Value
	default:
		inner = v
	}
	es.WriteByte(1)
	return es.encodeValue(t.Elem, inner)
}

func (es *encodeState) encodeVec(t *Type, v any) error {
	if b, ok := v.([]byte); ok {
		elem, err := Resolve(t.Elem)
		if err != nil {
			return err
		}
		if elem.Kind != KindNat8 {
			return invalidValue(t, v)
		}
		es.writeLen(len(b))
		es.Write(b)
		return nil
	}
	if items, ok := v.([]any); ok {
		es.writeLen(len(items))
		for _, item := range items {
			if err := es.encodeValue(t.Elem, item); err != nil {
				return err
			}
		}
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return invalidValue(t, v)
	}
	es.writeLen(rv.Len())
	for i := 0; i < rv.Len(); i++ {
		if err := es.encodeValue(t.Elem, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func (es *encodeState) encodeRecord(t *Type, v any) error {
	if items, ok := v.([]any); ok && t.IsTuple() {
		if len(items) != len(t.Fields) {
			return fmt.Errorf("%w: tuple of %d for %d fields", agenterrors.ErrCInvalidValue, len(items), len(t.Fields))
		}
		for i, f := range t.Fields {
			if err := es.encodeValue(f.Type, items[i]); err != nil {
				return err
			}
		}
		return nil
	}
	var m map[string]any
	switch r := v.(type) {
	case RecordValue:
		m = r
	case map[string]any:
		m = r
	default:
		return invalidValue(t, v)
	}
	for k := range m {
		if _, _, ok := t.FieldByID(LabelID(k)); !ok {
			return fmt.Errorf("%w: record has no field %q", agenterrors.ErrCInvalidValue, k)
		}
	}
	for _, f := range t.Fields {
		fv, ok := m[f.Name]
		if !ok {
			fv, ok = m[idLabel(f.ID())]
		}
		if !ok {
			ft, err := Resolve(f.Type)
			if err != nil {
				return err
			}
			switch ft.Kind {
			case KindOpt, KindNull, KindReserved:
				fv = nil
			default:
				return fmt.Errorf("%w: %q", agenterrors.ErrCMissingField, f.Name)
			}
		}
		if err := es.encodeValue(f.Type, fv); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return nil
}

func (es *encodeState) encodeVariant(t *Type, v any) error {
	var vv VariantValue
	switch x := v.(type) {
	case VariantValue:
		vv = x
	case *VariantValue:
		if x == nil {
			return invalidValue(t, v)
		}
		vv = *x
	default:
		return invalidValue(t, v)
	}
	idx, f, ok := t.FieldByID(LabelID(vv.Label))
	if !ok {
		return fmt.Errorf("%w: %q", agenterrors.ErrCVariantTagNotFound, vv.Label)
	}
	es.writeLen(idx)
	return es.encodeValue(f.Type, vv.Value)
}

func invalidValue(t *Type, v any) error {
	return fmt.Errorf("%w: %v (%T) for %s", agenterrors.ErrCInvalidValue, v, v, t)
}
