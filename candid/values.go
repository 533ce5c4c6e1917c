package candid

import (
	"bytes"
	"math"
	"math/big"
	"reflect"

	"github.com/colorfulnotion/icagent/principal"
	"github.com/holiman/uint256"
)

// Option is the value of an opt type.
type Option struct {
	Some  bool
	Value any
}

// Some wraps a present optional value.
func Some(v any) Option {
	return Option{Some: true, Value: v}
}

// None is the absent optional value.
func None() Option {
	return Option{}
}

// RecordValue is the value of a record type, keyed by field label.
type RecordValue map[string]any

// VariantValue is the value of a variant type: the selected label and its payload.
type VariantValue struct {
	Label string
	Value any
}

// FuncRef is the value of a func type.
type FuncRef struct {
	Service principal.Principal
	Method  string
}

// toBig converts any Go integer representation accepted for nat/int values.
func toBig(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return n, true
	case big.Int:
		return &n, true
	case *uint256.Int:
		if n == nil {
			return nil, false
		}
		return n.ToBig(), true
	case uint256.Int:
		return n.ToBig(), true
	case int:
		return big.NewInt(int64(n)), true
	case int8:
		return big.NewInt(int64(n)), true
	case int16:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	}
	return nil, false
}

func toPrincipal(v any) (principal.Principal, bool) {
	switch p := v.(type) {
	case principal.Principal:
		return p, true
	case *principal.Principal:
		if p == nil {
			return principal.Principal{}, false
		}
		return *p, true
	case string:
		parsed, err := principal.FromText(p)
		return parsed, err == nil
	}
	return principal.Principal{}, false
}

func toFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	}
	return 0, false
}

// Equal compares two decoded (or to-be-encoded) values structurally. Big
// integers compare by value, principals by bytes and NaN equals NaN.
func Equal(a, b any) bool {
	if ab, ok := toBig(a); ok {
		if _, isFixed := fixedGoKind(a); !isFixed {
			bb, ok := toBig(b)
			return ok && ab.Cmp(bb) == 0
		}
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case float32:
		y, ok := b.(float32)
		return ok && (x == y || (x != x && y != y))
	case float64:
		y, ok := b.(float64)
		return ok && (x == y || (math.IsNaN(x) && math.IsNaN(y)))
	case principal.Principal:
		y, ok := b.(principal.Principal)
		return ok && x.Equal(y)
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case RecordValue:
		y, ok := b.(RecordValue)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case Option:
		y, ok := b.(Option)
		return ok && x.Some == y.Some && (!x.Some || Equal(x.Value, y.Value))
	case VariantValue:
		y, ok := b.(VariantValue)
		return ok && x.Label == y.Label && Equal(x.Value, y.Value)
	case FuncRef:
		y, ok := b.(FuncRef)
		return ok && x.Method == y.Method && x.Service.Equal(y.Service)
	}
	return reflect.DeepEqual(a, b)
}

// fixedGoKind reports whether v is one of the fixed-width Go integer types
// that decode produces for natN/intN.
func fixedGoKind(v any) (reflect.Kind, bool) {
	switch v.(type) {
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		return reflect.TypeOf(v).Kind(), true
	}
	return reflect.Invalid, false
}
