package candid

import (
	"fmt"
	"sort"

	"github.com/colorfulnotion/icagent/agenterrors"
)

// Kind is the Candid opcode of a type. Primitive and constructor opcodes are
// the negative values of the published encoding; KindRef never appears on the wire.
type Kind int

const (
	KindNull      Kind = -1
	KindBool      Kind = -2
	KindNat       Kind = -3
	KindInt       Kind = -4
	KindNat8      Kind = -5
	KindNat16     Kind = -6
	KindNat32     Kind = -7
	KindNat64     Kind = -8
	KindInt8      Kind = -9
	KindInt16     Kind = -10
	KindInt32     Kind = -11
	KindInt64     Kind = -12
	KindFloat32   Kind = -13
	KindFloat64   Kind = -14
	KindText      Kind = -15
	KindReserved  Kind = -16
	KindEmpty     Kind = -17
	KindOpt       Kind = -18
	KindVec       Kind = -19
	KindRecord    Kind = -20
	KindVariant   Kind = -21
	KindFunc      Kind = -22
	KindService   Kind = -23
	KindPrincipal Kind = -24
	KindRef       Kind = 1
)

// IsPrimitive reports whether values of the kind are encoded inline by opcode.
func (k Kind) IsPrimitive() bool {
	return (k <= KindNull && k >= KindEmpty) || k == KindPrincipal
}

// Annotation is a function mode flag.
type Annotation byte

const (
	AnnotationQuery          Annotation = 1
	AnnotationOneway         Annotation = 2
	AnnotationCompositeQuery Annotation = 3
)

// Field is a labeled member of a record or variant.
type Field struct {
	Name string
	Type *Type
}

// ID is the 32-bit wire identifier of the label.
func (f Field) ID() uint32 {
	return LabelID(f.Name)
}

// Method is a named function of a service.
type Method struct {
	Name string
	Type *Type
}

// Type is a tagged variant over all Candid types. Only the members relevant to
// Kind are set. Recursive types are expressed with KindRef nodes that index
// into a TypeEnv instead of pointing at their definition directly.
type Type struct {
	Kind        Kind
	Elem        *Type
	Fields      []Field
	Args        []*Type
	Rets        []*Type
	Annotations []Annotation
	Methods     []Method

	env  *TypeEnv
	slot int
}

var (
	NullType      = &Type{Kind: KindNull}
	BoolType      = &Type{Kind: KindBool}
	NatType       = &Type{Kind: KindNat}
	IntType       = &Type{Kind: KindInt}
	Nat8Type      = &Type{Kind: KindNat8}
	Nat16Type     = &Type{Kind: KindNat16}
	Nat32Type     = &Type{Kind: KindNat32}
	Nat64Type     = &Type{Kind: KindNat64}
	Int8Type      = &Type{Kind: KindInt8}
	Int16Type     = &Type{Kind: KindInt16}
	Int32Type     = &Type{Kind: KindInt32}
	Int64Type     = &Type{Kind: KindInt64}
	Float32Type   = &Type{Kind: KindFloat32}
	Float64Type   = &Type{Kind: KindFloat64}
	TextType      = &Type{Kind: KindText}
	ReservedType  = &Type{Kind: KindReserved}
	EmptyType     = &Type{Kind: KindEmpty}
	PrincipalType = &Type{Kind: KindPrincipal}
)

var primitives = map[Kind]*Type{
	KindNull: NullType, KindBool: BoolType, KindNat: NatType, KindInt: IntType,
	KindNat8: Nat8Type, KindNat16: Nat16Type, KindNat32: Nat32Type, KindNat64: Nat64Type,
	KindInt8: Int8Type, KindInt16: Int16Type, KindInt32: Int32Type, KindInt64: Int64Type,
	KindFloat32: Float32Type, KindFloat64: Float64Type, KindText: TextType,
	KindReserved: ReservedType, KindEmpty: EmptyType, KindPrincipal: PrincipalType,
}

// F is shorthand for a record or variant field.
func F(name string, t *Type) Field {
	return Field{Name: name, Type: t}
}

// Opt builds opt t.
func Opt(t *Type) *Type {
	return &Type{Kind: KindOpt, Elem: t}
}

// Vec builds vec t.
func Vec(t *Type) *Type {
	return &Type{Kind: KindVec, Elem: t}
}

// Blob is vec nat8.
func Blob() *Type {
	return Vec(Nat8Type)
}

// Record builds a record; fields are kept sorted by label id.
func Record(fields ...Field) *Type {
	return &Type{Kind: KindRecord, Fields: sortFields(fields)}
}

// Tuple builds a record whose labels are the positions 0..n-1.
func Tuple(types ...*Type) *Type {
	fields := make([]Field, len(types))
	for i, t := range types {
		fields[i] = Field{Name: fmt.Sprintf("_%d_", i), Type: t}
	}
	return Record(fields...)
}

// Variant builds a variant; fields are kept sorted by label id.
func Variant(fields ...Field) *Type {
	return &Type{Kind: KindVariant, Fields: sortFields(fields)}
}

// Func builds a function reference type.
func Func(args, rets []*Type, annotations ...Annotation) *Type {
	return &Type{Kind: KindFunc, Args: args, Rets: rets, Annotations: annotations}
}

// Service builds a service reference type; methods are kept sorted by name.
func Service(methods ...Method) *Type {
	ms := append([]Method(nil), methods...)
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Name < ms[j].Name })
	return &Type{Kind: KindService, Methods: ms}
}

func sortFields(fields []Field) []Field {
	fs := append([]Field(nil), fields...)
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].ID() < fs[j].ID() })
	return fs
}

// FieldByID returns the field of a record or variant with the given label id.
func (t *Type) FieldByID(id uint32) (int, Field, bool) {
	i := sort.Search(len(t.Fields), func(i int) bool { return t.Fields[i].ID() >= id })
	if i < len(t.Fields) && t.Fields[i].ID() == id {
		return i, t.Fields[i], true
	}
	return -1, Field{}, false
}

// IsTuple reports whether a record's labels are exactly 0..n-1.
func (t *Type) IsTuple() bool {
	if t.Kind != KindRecord {
		return false
	}
	for i, f := range t.Fields {
		if f.ID() != uint32(i) {
			return false
		}
	}
	return true
}

// TypeEnv is an arena of type slots. A slot is declared first and filled
// later, so a definition can refer to itself (or to a sibling) through
// KindRef nodes before its body exists.
type TypeEnv struct {
	slots []*Type
	names []string
}

func NewTypeEnv() *TypeEnv {
	return &TypeEnv{}
}

// Declare allocates an empty slot and returns a reference to it.
func (e *TypeEnv) Declare(name string) *Type {
	e.slots = append(e.slots, nil)
	e.names = append(e.names, name)
	return &Type{Kind: KindRef, env: e, slot: len(e.slots) - 1}
}

// Fill sets the definition of a declared slot.
func (e *TypeEnv) Fill(ref *Type, def *Type) error {
	if ref.Kind != KindRef || ref.env != e {
		return fmt.Errorf("%w: not a reference of this environment", agenterrors.ErrCInvalidTypeTable)
	}
	if def == nil {
		return fmt.Errorf("%w: nil definition for %s", agenterrors.ErrCInvalidTypeTable, e.names[ref.slot])
	}
	e.slots[ref.slot] = def
	return nil
}

// Len returns the number of declared slots.
func (e *TypeEnv) Len() int {
	return len(e.slots)
}

// Slot returns the reference node for slot i.
func (e *TypeEnv) Slot(i int) *Type {
	return &Type{Kind: KindRef, env: e, slot: i}
}

// Name returns the display name of a reference node.
func (t *Type) Name() string {
	if t.Kind != KindRef {
		return ""
	}
	return t.env.names[t.slot]
}

// Resolve follows reference nodes to a concrete definition.
func Resolve(t *Type) (*Type, error) {
	hops := 0
	for t != nil && t.Kind == KindRef {
		if t.env == nil || t.slot < 0 || t.slot >= len(t.env.slots) {
			return nil, fmt.Errorf("%w: slot %d", agenterrors.ErrCUndeclaredTypeRef, t.slot)
		}
		next := t.env.slots[t.slot]
		if next == nil {
			return nil, fmt.Errorf("%w: %s", agenterrors.ErrCUnfilledSlot, t.env.names[t.slot])
		}
		hops++
		if hops > len(t.env.slots) {
			return nil, fmt.Errorf("%w: %s is a reference cycle", agenterrors.ErrCInvalidTypeTable, t.env.names[t.slot])
		}
		t = next
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", agenterrors.ErrCInvalidTypeTable)
	}
	return t, nil
}

// fixedWidth returns the byte width and signedness of fixed-size numeric kinds.
func fixedWidth(k Kind) (size int, signed bool, ok bool) {
	switch k {
	case KindNat8:
		return 1, false, true
	case KindNat16:
		return 2, false, true
	case KindNat32:
		return 4, false, true
	case KindNat64:
		return 8, false, true
	case KindInt8:
		return 1, true, true
	case KindInt16:
		return 2, true, true
	case KindInt32:
		return 4, true, true
	case KindInt64:
		return 8, true, true
	}
	return 0, false, false
}
