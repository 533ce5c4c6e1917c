package candid

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/colorfulnotion/icagent/principal"
)

var kindNames = map[Kind]string{
	KindNull: "null", KindBool: "bool", KindNat: "nat", KindInt: "int",
	KindNat8: "nat8", KindNat16: "nat16", KindNat32: "nat32", KindNat64: "nat64",
	KindInt8: "int8", KindInt16: "int16", KindInt32: "int32", KindInt64: "int64",
	KindFloat32: "float32", KindFloat64: "float64", KindText: "text",
	KindReserved: "reserved", KindEmpty: "empty", KindPrincipal: "principal",
	KindOpt: "opt", KindVec: "vec", KindRecord: "record", KindVariant: "variant",
	KindFunc: "func", KindService: "service",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	if k == KindRef {
		return "ref"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

func (a Annotation) String() string {
	switch a {
	case AnnotationQuery:
		return "query"
	case AnnotationOneway:
		return "oneway"
	case AnnotationCompositeQuery:
		return "composite_query"
	}
	return "annotation(" + strconv.Itoa(int(a)) + ")"
}

// String renders the type in Candid textual syntax. Reference nodes print
// their name so recursive types stay finite.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	var sb strings.Builder
	writeType(&sb, t)
	return sb.String()
}

func writeType(sb *strings.Builder, t *Type) {
	switch t.Kind {
	case KindRef:
		sb.WriteString(t.Name())
	case KindOpt, KindVec:
		sb.WriteString(t.Kind.String())
		sb.WriteByte(' ')
		writeType(sb, t.Elem)
	case KindRecord, KindVariant:
		sb.WriteString(t.Kind.String())
		if len(t.Fields) == 0 {
			sb.WriteString(" {}")
			return
		}
		sb.WriteString(" { ")
		tuple := t.IsTuple()
		for i, f := range t.Fields {
			if i > 0 {
				sb.WriteString("; ")
			}
			if !tuple {
				sb.WriteString(fieldLabel(f.Name))
				sb.WriteString(" : ")
			}
			writeType(sb, f.Type)
		}
		sb.WriteString(" }")
	case KindFunc:
		sb.WriteString("func ")
		writeFuncSig(sb, t)
	case KindService:
		sb.WriteString("service { ")
		for i, m := range t.Methods {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(strconv.Quote(m.Name))
			sb.WriteString(" : ")
			if ft, err := Resolve(m.Type); err == nil && ft.Kind == KindFunc && m.Type.Kind != KindRef {
				writeFuncSig(sb, ft)
			} else {
				writeType(sb, m.Type)
			}
		}
		sb.WriteString(" }")
	default:
		sb.WriteString(t.Kind.String())
	}
}

func writeFuncSig(sb *strings.Builder, t *Type) {
	writeTypeList(sb, t.Args)
	sb.WriteString(" -> ")
	writeTypeList(sb, t.Rets)
	for _, a := range t.Annotations {
		sb.WriteByte(' ')
		sb.WriteString(a.String())
	}
}

func writeTypeList(sb *strings.Builder, types []*Type) {
	sb.WriteByte('(')
	for i, t := range types {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeType(sb, t)
	}
	sb.WriteByte(')')
}

// fieldLabel prints numeric labels bare and quotes names that are not identifiers.
func fieldLabel(name string) string {
	if n, ok := numericLabel(name); ok {
		return strconv.FormatUint(uint64(n), 10)
	}
	for i, c := range name {
		ident := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 0 && c >= '0' && c <= '9')
		if !ident {
			return strconv.Quote(name)
		}
	}
	return name
}

// FormatArgs renders an argument sequence as "(v1, v2, ...)".
func FormatArgs(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = FormatValue(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// FormatValue renders a decoded value in Candid textual syntax.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	case *big.Int:
		return x.String()
	case string:
		return strconv.Quote(x)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case principal.Principal:
		return fmt.Sprintf("principal %q", x.String())
	case []byte:
		return fmt.Sprintf("blob \"%s\"", hexEscape(x))
	case Option:
		if !x.Some {
			return "null"
		}
		return "opt " + FormatValue(x.Value)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = FormatValue(item)
		}
		return "vec { " + strings.Join(parts, "; ") + " }"
	case RecordValue:
		if len(x) == 0 {
			return "record {}"
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return LabelID(keys[i]) < LabelID(keys[j]) })
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fieldLabel(k) + " = " + FormatValue(x[k])
		}
		return "record { " + strings.Join(parts, "; ") + " }"
	case VariantValue:
		return "variant { " + fieldLabel(x.Label) + " = " + FormatValue(x.Value) + " }"
	case FuncRef:
		return fmt.Sprintf("func %q.%s", x.Service.String(), fieldLabel(x.Method))
	}
	if n, ok := toBig(v); ok {
		return n.String()
	}
	return fmt.Sprintf("%v", v)
}

func hexEscape(b []byte) string {
	var sb strings.Builder
	h := hex.EncodeToString(b)
	for i := 0; i < len(h); i += 2 {
		sb.WriteByte('\\')
		sb.WriteString(h[i : i+2])
	}
	return sb.String()
}
