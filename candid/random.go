package candid

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/colorfulnotion/icagent/principal"
	"golang.org/x/exp/rand"
)

var errDepth = errors.New("depth exhausted")

// Generate produces a random value of t in the shape Decode returns, so a
// generated value survives an Encode/Decode round trip unchanged. depth bounds
// the nesting of opt, vec, record and variant values.
func Generate(t *Type, r *rand.Rand, depth int) (any, error) {
	return generate(t, r, depth)
}

func generate(t *Type, r *rand.Rand, depth int) (any, error) {
	t, err := Resolve(t)
	if err != nil {
		return nil, err
	}
	switch t.Kind {
	case KindNull, KindReserved:
		return nil, nil
	case KindEmpty:
		return nil, agenterrors.ErrCEmptyValue
	case KindBool:
		return r.Intn(2) == 1, nil
	case KindNat:
		n := new(big.Int).SetUint64(r.Uint64())
		return n.Lsh(n, uint(r.Intn(70))), nil
	case KindInt:
		n := new(big.Int).SetUint64(r.Uint64())
		n.Lsh(n, uint(r.Intn(70)))
		if r.Intn(2) == 1 {
			n.Neg(n)
		}
		return n, nil
	case KindNat8:
		return uint8(r.Uint32()), nil
	case KindNat16:
		return uint16(r.Uint32()), nil
	case KindNat32:
		return r.Uint32(), nil
	case KindNat64:
		return r.Uint64(), nil
	case KindInt8:
		return int8(r.Uint32()), nil
	case KindInt16:
		return int16(r.Uint32()), nil
	case KindInt32:
		return int32(r.Uint32()), nil
	case KindInt64:
		return int64(r.Uint64()), nil
	case KindFloat32:
		return float32(r.NormFloat64()), nil
	case KindFloat64:
		return r.NormFloat64() * 1e6, nil
	case KindText:
		return randomText(r), nil
	case KindPrincipal, KindService:
		return randomPrincipal(r), nil
	case KindFunc:
		return FuncRef{Service: randomPrincipal(r), Method: randomText(r)}, nil
	case KindOpt:
		if depth <= 0 || r.Intn(3) == 0 {
			return None(), nil
		}
		v, err := generate(t.Elem, r, depth-1)
		if errors.Is(err, errDepth) || errors.Is(err, agenterrors.ErrCEmptyValue) {
			return None(), nil
		}
		if err != nil {
			return nil, err
		}
		return Some(v), nil
	case KindVec:
		elem, err := Resolve(t.Elem)
		if err != nil {
			return nil, err
		}
		n := 0
		if depth > 0 {
			n = r.Intn(4)
		}
		if elem.Kind == KindNat8 {
			b := make([]byte, n*4)
			_, _ = r.Read(b)
			return b, nil
		}
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			v, err := generate(t.Elem, r, depth-1)
			if errors.Is(err, errDepth) || errors.Is(err, agenterrors.ErrCEmptyValue) {
				break
			}
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case KindRecord:
		if depth < 0 {
			return nil, errDepth
		}
		out := make(RecordValue, len(t.Fields))
		for _, f := range t.Fields {
			v, err := generate(f.Type, r, depth-1)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
		}
		return out, nil
	case KindVariant:
		if depth < 0 || len(t.Fields) == 0 {
			return nil, errDepth
		}
		start := r.Intn(len(t.Fields))
		for i := range t.Fields {
			f := t.Fields[(start+i)%len(t.Fields)]
			v, err := generate(f.Type, r, depth-1)
			if errors.Is(err, errDepth) || errors.Is(err, agenterrors.ErrCEmptyValue) {
				continue
			}
			if err != nil {
				return nil, err
			}
			return VariantValue{Label: f.Name, Value: v}, nil
		}
		return nil, errDepth
	}
	return nil, fmt.Errorf("%w: cannot generate %s", agenterrors.ErrCInvalidTypeTable, t)
}

const textAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789 _-éλ"

func randomText(r *rand.Rand) string {
	alphabet := []rune(textAlphabet)
	n := r.Intn(12)
	out := make([]rune, n)
	for i := range out {
		out[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(out)
}

func randomPrincipal(r *rand.Rand) principal.Principal {
	raw := make([]byte, r.Intn(principal.MaxLength+1))
	_, _ = r.Read(raw)
	return principal.Principal{Raw: raw}
}
