package candid

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/big"
	"unicode/utf8"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/colorfulnotion/icagent/leb128"
	"github.com/colorfulnotion/icagent/principal"
)

const (
	// maxDepth bounds value nesting; a record that contains itself consumes no
	// input and would otherwise recurse forever.
	maxDepth = 512
	// maxZeroSizedVec caps the zero-sized vector elements of one message.
	maxZeroSizedVec = 1 << 20
)

type decodeState struct {
	*bytes.Reader
	env   *TypeEnv
	sub   *subtypeCache
	depth int
	// zeroBudget is what is left of maxZeroSizedVec for this message
	zeroBudget int
}

func newDecodeState(data []byte) *decodeState {
	return &decodeState{Reader: bytes.NewReader(data), sub: newSubtypeCache(), zeroBudget: maxZeroSizedVec}
}

func (ds *decodeState) readLen() (int, error) {
	n, err := leb128.DecodeUint64(ds)
	if err != nil {
		return 0, err
	}
	if n > uint64(ds.Len()) {
		return 0, fmt.Errorf("%w: length %d with %d bytes left", agenterrors.ErrCUnexpectedEnd, n, ds.Len())
	}
	return int(n), nil
}

func (ds *decodeState) readBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(ds, b); err != nil {
		return nil, agenterrors.ErrCUnexpectedEnd
	}
	return b, nil
}

func (ds *decodeState) readByte() (byte, error) {
	b, err := ds.ReadByte()
	if err != nil {
		return 0, agenterrors.ErrCUnexpectedEnd
	}
	return b, nil
}

func (ds *decodeState) readText() (string, error) {
	n, err := ds.readLen()
	if err != nil {
		return "", err
	}
	b, err := ds.readBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", agenterrors.ErrCInvalidUTF8
	}
	return string(b), nil
}

// readHeader consumes the magic and the type table, then the argument type
// references.
func (ds *decodeState) readHeader() ([]*Type, error) {
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(ds, magic); err != nil || !bytes.Equal(magic, Magic) {
		return nil, agenterrors.ErrCBadMagic
	}
	n, err := ds.readLen()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", agenterrors.ErrCInvalidTypeTable, err)
	}
	ds.env = NewTypeEnv()
	refs := make([]*Type, n)
	for i := range refs {
		refs[i] = ds.env.Declare(fmt.Sprintf("table%d", i))
	}
	for i := 0; i < n; i++ {
		def, err := ds.readTableEntry(n)
		if err != nil {
			return nil, err
		}
		if err := ds.env.Fill(refs[i], def); err != nil {
			return nil, err
		}
	}
	argc, err := ds.readLen()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", agenterrors.ErrCArgCount, err)
	}
	args := make([]*Type, argc)
	for i := range args {
		if args[i], err = ds.readTypeRef(n); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func (ds *decodeState) readTypeRef(tableLen int) (*Type, error) {
	r, err := leb128.DecodeInt64(ds)
	if err != nil {
		return nil, err
	}
	if r < 0 {
		prim, ok := primitives[Kind(r)]
		if !ok {
			return nil, fmt.Errorf("%w: opcode %d", agenterrors.ErrCInvalidTypeTable, r)
		}
		return prim, nil
	}
	if r >= int64(tableLen) {
		return nil, fmt.Errorf("%w: %d of %d", agenterrors.ErrCUndeclaredTypeRef, r, tableLen)
	}
	return ds.env.Slot(int(r)), nil
}

func (ds *decodeState) readTableEntry(tableLen int) (*Type, error) {
	op, err := leb128.DecodeInt64(ds)
	if err != nil {
		return nil, err
	}
	switch Kind(op) {
	case KindOpt, KindVec:
		elem, err := ds.readTypeRef(tableLen)
		if err != nil {
			return nil, err
		}
		return &Type{Kind: Kind(op), Elem: elem}, nil
	case KindRecord, KindVariant:
		count, err := ds.readLen()
		if err != nil {
			return nil, err
		}
		fields := make([]Field, count)
		for i := range fields {
			id, err := leb128.DecodeUint64(ds)
			if err != nil {
				return nil, err
			}
			if id > math.MaxUint32 {
				return nil, fmt.Errorf("%w: field id %d", agenterrors.ErrCInvalidTypeTable, id)
			}
			if i > 0 {
				prev := uint64(fields[i-1].ID())
				if id == prev {
					return nil, fmt.Errorf("%w: id %d", agenterrors.ErrCDuplicateField, id)
				}
				if id < prev {
					return nil, fmt.Errorf("%w: id %d after %d", agenterrors.ErrCUnsortedFields, id, prev)
				}
			}
			ft, err := ds.readTypeRef(tableLen)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Name: idLabel(uint32(id)), Type: ft}
		}
		return &Type{Kind: Kind(op), Fields: fields}, nil
	case KindFunc:
		args, err := ds.readTypeRefs(tableLen)
		if err != nil {
			return nil, err
		}
		rets, err := ds.readTypeRefs(tableLen)
		if err != nil {
			return nil, err
		}
		count, err := ds.readLen()
		if err != nil {
			return nil, err
		}
		anns := make([]Annotation, count)
		for i := range anns {
			b, err := ds.readByte()
			if err != nil {
				return nil, err
			}
			a := Annotation(b)
			if a < AnnotationQuery || a > AnnotationCompositeQuery {
				return nil, fmt.Errorf("%w: %d", agenterrors.ErrCUnsupportedAnnotation, b)
			}
			anns[i] = a
		}
		return &Type{Kind: KindFunc, Args: args, Rets: rets, Annotations: anns}, nil
	case KindService:
		count, err := ds.readLen()
		if err != nil {
			return nil, err
		}
		methods := make([]Method, count)
		for i := range methods {
			name, err := ds.readText()
			if err != nil {
				return nil, err
			}
			if i > 0 && name <= methods[i-1].Name {
				return nil, fmt.Errorf("%w: method %q", agenterrors.ErrCUnsortedFields, name)
			}
			mt, err := ds.readTypeRef(tableLen)
			if err != nil {
				return nil, err
			}
			methods[i] = Method{Name: name, Type: mt}
		}
		return &Type{Kind: KindService, Methods: methods}, nil
	}
	return nil, fmt.Errorf("%w: opcode %d in type table", agenterrors.ErrCInvalidTypeTable, op)
}

func (ds *decodeState) readTypeRefs(tableLen int) ([]*Type, error) {
	n, err := ds.readLen()
	if err != nil {
		return nil, err
	}
	out := make([]*Type, n)
	for i := range out {
		if out[i], err = ds.readTypeRef(tableLen); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// checkTable rejects service methods bound to non-function entries.
func (ds *decodeState) checkTable() error {
	for i := 0; i < ds.env.Len(); i++ {
		t, err := Resolve(ds.env.Slot(i))
		if err != nil {
			return err
		}
		for _, m := range t.Methods {
			mt, err := Resolve(m.Type)
			if err != nil {
				return err
			}
			if mt.Kind != KindFunc {
				return fmt.Errorf("%w: method %q is not a function", agenterrors.ErrCInvalidTypeTable, m.Name)
			}
		}
	}
	return nil
}

func (ds *decodeState) enter() error {
	ds.depth++
	if ds.depth > maxDepth {
		return fmt.Errorf("%w: nesting deeper than %d", agenterrors.ErrCInvalidValue, maxDepth)
	}
	return nil
}

func (ds *decodeState) leave() {
	ds.depth--
}

// decodeValue reads one value of wire type w and coerces it to the expected type.
func (ds *decodeState) decodeValue(w, expected *Type) (any, error) {
	w, err := Resolve(w)
	if err != nil {
		return nil, err
	}
	expected, err = Resolve(expected)
	if err != nil {
		return nil, err
	}
	if err := ds.enter(); err != nil {
		return nil, err
	}
	defer ds.leave()

	switch expected.Kind {
	case KindReserved:
		return nil, ds.skipValue(w)
	case KindOpt:
		return ds.decodeOpt(w, expected)
	}
	if w.Kind == KindEmpty {
		return nil, agenterrors.ErrCEmptyValue
	}

	switch expected.Kind {
	case KindNull:
		if w.Kind == KindNull {
			return nil, nil
		}
	case KindBool:
		if w.Kind == KindBool {
			b, err := ds.readByte()
			if err != nil {
				return nil, err
			}
			if b > 1 {
				return nil, fmt.Errorf("%w: bool byte %d", agenterrors.ErrCInvalidValue, b)
			}
			return b == 1, nil
		}
	case KindNat:
		switch {
		case w.Kind == KindNat:
			return leb128.DecodeUnsigned(ds)
		case isNatN(w.Kind):
			n, err := ds.readFixedUnsigned(w.Kind)
			if err != nil {
				return nil, err
			}
			return new(big.Int).SetUint64(n), nil
		}
	case KindInt:
		switch {
		case w.Kind == KindInt:
			return leb128.DecodeSigned(ds)
		case w.Kind == KindNat:
			return leb128.DecodeUnsigned(ds)
		case isNatN(w.Kind):
			n, err := ds.readFixedUnsigned(w.Kind)
			if err != nil {
				return nil, err
			}
			return new(big.Int).SetUint64(n), nil
		case isIntN(w.Kind):
			n, err := ds.readFixedSigned(w.Kind)
			if err != nil {
				return nil, err
			}
			return big.NewInt(n), nil
		}
	case KindNat8, KindNat16, KindNat32, KindNat64:
		if isNatN(w.Kind) && w.Kind >= expected.Kind {
			n, err := ds.readFixedUnsigned(w.Kind)
			if err != nil {
				return nil, err
			}
			switch expected.Kind {
			case KindNat8:
				return uint8(n), nil
			case KindNat16:
				return uint16(n), nil
			case KindNat32:
				return uint32(n), nil
			}
			return n, nil
		}
	case KindInt8, KindInt16, KindInt32, KindInt64:
		if isIntN(w.Kind) && w.Kind >= expected.Kind {
			n, err := ds.readFixedSigned(w.Kind)
			if err != nil {
				return nil, err
			}
			switch expected.Kind {
			case KindInt8:
				return int8(n), nil
			case KindInt16:
				return int16(n), nil
			case KindInt32:
				return int32(n), nil
			}
			return n, nil
		}
	case KindFloat32:
		if w.Kind == KindFloat32 {
			bits, err := leb128.ReadLE[uint32](ds, 4)
			if err != nil {
				return nil, err
			}
			return math.Float32frombits(bits), nil
		}
	case KindFloat64:
		switch w.Kind {
		case KindFloat64:
			bits, err := leb128.ReadLE[uint64](ds, 8)
			if err != nil {
				return nil, err
			}
			return math.Float64frombits(bits), nil
		case KindFloat32:
			bits, err := leb128.ReadLE[uint32](ds, 4)
			if err != nil {
				return nil, err
			}
			return float64(math.Float32frombits(bits)), nil
		}
	case KindText:
		if w.Kind == KindText {
			return ds.readText()
		}
	case KindPrincipal:
		if w.Kind == KindPrincipal {
			return ds.readPrincipal()
		}
	case KindService:
		if w.Kind == KindService && ds.sub.isSubtype(w, expected) {
			return ds.readPrincipal()
		}
	case KindFunc:
		if w.Kind == KindFunc && ds.sub.isSubtype(w, expected) {
			return ds.readFunc()
		}
	case KindVec:
		if w.Kind == KindVec {
			return ds.decodeVec(w, expected)
		}
	case KindRecord:
		if w.Kind == KindRecord {
			return ds.decodeRecord(w, expected)
		}
	case KindVariant:
		if w.Kind == KindVariant {
			return ds.decodeVariant(w, expected)
		}
	case KindEmpty:
		return nil, agenterrors.ErrCEmptyValue
	}
	return nil, fmt.Errorf("%w: wire %s, expected %s", agenterrors.ErrCTypeMismatch, w, expected)
}

func (ds *decodeState) decodeOpt(w, expected *Type) (any, error) {
	switch w.Kind {
	case KindNull, KindReserved:
		return None(), nil
	case KindOpt:
		flag, err := ds.readByte()
		if err != nil {
			return nil, err
		}
		switch flag {
		case 0:
			return None(), nil
		case 1:
		default:
			return nil, fmt.Errorf("%w: opt flag %d", agenterrors.ErrCInvalidValue, flag)
		}
		if !ds.sub.isSubtype(w.Elem, expected.Elem) {
			if err := ds.skipValue(w.Elem); err != nil {
				return nil, err
			}
			return None(), nil
		}
		v, err := ds.decodeValue(w.Elem, expected.Elem)
		if err != nil {
			return nil, err
		}
		return Some(v), nil
	}
	if !ds.sub.isSubtype(w, expected.Elem) {
		if err := ds.skipValue(w); err != nil {
			return nil, err
		}
		return None(), nil
	}
	v, err := ds.decodeValue(w, expected.Elem)
	if err != nil {
		return nil, err
	}
	return Some(v), nil
}

func (ds *decodeState) vecLen(elem *Type) (int, error) {
	zero, err := zeroSized(elem)
	if err != nil {
		return 0, err
	}
	if !zero {
		return ds.readLen()
	}
	n, err := leb128.DecodeUint64(ds)
	if err != nil {
		return 0, err
	}
	if n > uint64(ds.zeroBudget) {
		return 0, fmt.Errorf("%w: %d zero-sized elements with %d left in the message", agenterrors.ErrCInvalidValue, n, ds.zeroBudget)
	}
	ds.zeroBudget -= int(n)
	return int(n), nil
}

func (ds *decodeState) decodeVec(w, expected *Type) (any, error) {
	n, err := ds.vecLen(w.Elem)
	if err != nil {
		return nil, err
	}
	we, err := Resolve(w.Elem)
	if err != nil {
		return nil, err
	}
	ee, err := Resolve(expected.Elem)
	if err != nil {
		return nil, err
	}
	if we.Kind == KindNat8 && ee.Kind == KindNat8 {
		return ds.readBytes(n)
	}
	out := make([]any, n)
	for i := range out {
		if out[i], err = ds.decodeValue(w.Elem, expected.Elem); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (ds *decodeState) decodeRecord(w, expected *Type) (any, error) {
	out := make(RecordValue, len(expected.Fields))
	for _, wf := range w.Fields {
		_, ef, ok := expected.FieldByID(wf.ID())
		if !ok {
			if err := ds.skipValue(wf.Type); err != nil {
				return nil, err
			}
			continue
		}
		v, err := ds.decodeValue(wf.Type, ef.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", ef.Name, err)
		}
		out[ef.Name] = v
	}
	for _, ef := range expected.Fields {
		if _, ok := out[ef.Name]; ok {
			continue
		}
		ft, err := Resolve(ef.Type)
		if err != nil {
			return nil, err
		}
		switch ft.Kind {
		case KindOpt:
			out[ef.Name] = None()
		case KindNull, KindReserved:
			out[ef.Name] = nil
		default:
			return nil, fmt.Errorf("%w: %q", agenterrors.ErrCMissingField, ef.Name)
		}
	}
	return out, nil
}

func (ds *decodeState) decodeVariant(w, expected *Type) (any, error) {
	idx, err := leb128.DecodeUint64(ds)
	if err != nil {
		return nil, err
	}
	if idx >= uint64(len(w.Fields)) {
		return nil, fmt.Errorf("%w: variant index %d of %d", agenterrors.ErrCInvalidValue, idx, len(w.Fields))
	}
	wf := w.Fields[idx]
	_, ef, ok := expected.FieldByID(wf.ID())
	if !ok {
		return nil, fmt.Errorf("%w: id %d", agenterrors.ErrCVariantTagNotFound, wf.ID())
	}
	v, err := ds.decodeValue(wf.Type, ef.Type)
	if err != nil {
		return nil, err
	}
	return VariantValue{Label: ef.Name, Value: v}, nil
}

func (ds *decodeState) readPrincipalBytes() ([]byte, error) {
	flag, err := ds.readByte()
	if err != nil {
		return nil, err
	}
	if flag != 1 {
		return nil, fmt.Errorf("%w: reference flag %d", agenterrors.ErrCOpaqueReference, flag)
	}
	n, err := ds.readLen()
	if err != nil {
		return nil, err
	}
	return ds.readBytes(n)
}

func (ds *decodeState) readPrincipal() (principal.Principal, error) {
	raw, err := ds.readPrincipalBytes()
	if err != nil {
		return principal.Principal{}, err
	}
	p, err := principal.FromBytes(raw)
	if err != nil {
		return principal.Principal{}, fmt.Errorf("%w: %v", agenterrors.ErrCInvalidValue, err)
	}
	return p, nil
}

func (ds *decodeState) readFunc() (FuncRef, error) {
	flag, err := ds.readByte()
	if err != nil {
		return FuncRef{}, err
	}
	if flag != 1 {
		return FuncRef{}, fmt.Errorf("%w: func flag %d", agenterrors.ErrCOpaqueReference, flag)
	}
	svc, err := ds.readPrincipal()
	if err != nil {
		return FuncRef{}, err
	}
	method, err := ds.readText()
	if err != nil {
		return FuncRef{}, err
	}
	return FuncRef{Service: svc, Method: method}, nil
}

func (ds *decodeState) readFixedUnsigned(k Kind) (uint64, error) {
	size, _, _ := fixedWidth(k)
	return leb128.ReadLE[uint64](ds, size)
}

func (ds *decodeState) readFixedSigned(k Kind) (int64, error) {
	size, _, _ := fixedWidth(k)
	return leb128.ReadLE[int64](ds, size)
}

// skipValue consumes a value of wire type w without materializing it.
func (ds *decodeState) skipValue(w *Type) error {
	w, err := Resolve(w)
	if err != nil {
		return err
	}
	if err := ds.enter(); err != nil {
		return err
	}
	defer ds.leave()

	switch w.Kind {
	case KindNull, KindReserved:
		return nil
	case KindEmpty:
		return agenterrors.ErrCEmptyValue
	case KindBool:
		_, err := ds.readByte()
		return err
	case KindNat:
		_, err := leb128.DecodeUnsigned(ds)
		return err
	case KindInt:
		_, err := leb128.DecodeSigned(ds)
		return err
	case KindNat8, KindNat16, KindNat32, KindNat64, KindInt8, KindInt16, KindInt32, KindInt64:
		size, _, _ := fixedWidth(w.Kind)
		return ds.skip(size)
	case KindFloat32:
		return ds.skip(4)
	case KindFloat64:
		return ds.skip(8)
	case KindText:
		n, err := ds.readLen()
		if err != nil {
			return err
		}
		return ds.skip(n)
	case KindPrincipal, KindService:
		_, err := ds.readPrincipalBytes()
		return err
	case KindFunc:
		_, err := ds.readFunc()
		return err
	case KindOpt:
		flag, err := ds.readByte()
		if err != nil {
			return err
		}
		switch flag {
		case 0:
			return nil
		case 1:
			return ds.skipValue(w.Elem)
		}
		return fmt.Errorf("%w: opt flag %d", agenterrors.ErrCInvalidValue, flag)
	case KindVec:
		n, err := ds.vecLen(w.Elem)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := ds.skipValue(w.Elem); err != nil {
				return err
			}
		}
		return nil
	case KindRecord:
		for _, f := range w.Fields {
			if err := ds.skipValue(f.Type); err != nil {
				return err
			}
		}
		return nil
	case KindVariant:
		idx, err := leb128.DecodeUint64(ds)
		if err != nil {
			return err
		}
		if idx >= uint64(len(w.Fields)) {
			return fmt.Errorf("%w: variant index %d of %d", agenterrors.ErrCInvalidValue, idx, len(w.Fields))
		}
		return ds.skipValue(w.Fields[idx].Type)
	}
	return fmt.Errorf("%w: kind %d", agenterrors.ErrCInvalidTypeTable, w.Kind)
}

func (ds *decodeState) skip(n int) error {
	if n > ds.Len() {
		return agenterrors.ErrCUnexpectedEnd
	}
	_, err := ds.Seek(int64(n), io.SeekCurrent)
	return err
}

// zeroSized reports whether values of t occupy no bytes.
func zeroSized(t *Type) (bool, error) {
	return zeroSizedSeen(t, map[*Type]bool{})
}

func zeroSizedSeen(t *Type, seen map[*Type]bool) (bool, error) {
	t, err := Resolve(t)
	if err != nil {
		return false, err
	}
	switch t.Kind {
	case KindNull, KindReserved:
		return true, nil
	case KindRecord:
		if seen[t] {
			return true, nil
		}
		seen[t] = true
		for _, f := range t.Fields {
			z, err := zeroSizedSeen(f.Type, seen)
			if err != nil || !z {
				return false, err
			}
		}
		return true, nil
	}
	return false, nil
}

func isNatN(k Kind) bool {
	return k <= KindNat8 && k >= KindNat64
}

func isIntN(k Kind) bool {
	return k <= KindInt8 && k >= KindInt64
}
