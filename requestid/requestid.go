// Package requestid computes the representation-independent hash of a
// request's fields.
package requestid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"sort"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/colorfulnotion/icagent/common"
	"github.com/colorfulnotion/icagent/leb128"
	"github.com/colorfulnotion/icagent/log"
	"github.com/colorfulnotion/icagent/principal"
	"github.com/holiman/uint256"
)

// RequestID identifies a request by the hash of its content map.
type RequestID common.Hash

func (id RequestID) Bytes() []byte {
	return id[:]
}

func (id RequestID) String() string {
	return common.Hash(id).Hex()
}

func (id RequestID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// HashRepresenter is implemented by values that are hashed through another
// representation, e.g. a wrapper type hashed as its underlying integer.
type HashRepresenter interface {
	HashRepresentation() any
}

// Mapper is implemented by request structs.
type Mapper interface {
	ToMap() map[string]any
}

// Compute returns the request id of a field map. Nil values are skipped.
func Compute(fields map[string]any) (RequestID, error) {
	h, err := HashOfMap(fields)
	if err != nil {
		return RequestID{}, err
	}
	log.Trace(log.RequestIDModule, "Compute", "fields", len(fields), "id", h)
	return RequestID(h), nil
}

// FromStruct computes the request id of a request struct.
func FromStruct(m Mapper) (RequestID, error) {
	return Compute(m.ToMap())
}

// HashOfMap hashes the sorted (hash(key), hash(value)) pairs of a map.
func HashOfMap(fields map[string]any) (common.Hash, error) {
	pairs := make([][]byte, 0, len(fields))
	for k, v := range fields {
		if isNil(v) {
			continue
		}
		vh, err := HashValue(v)
		if err != nil {
			return common.Hash{}, fmt.Errorf("field %q: %w", k, err)
		}
		kh := common.Sha256([]byte(k))
		pairs = append(pairs, append(kh.Bytes(), vh.Bytes()...))
	}
	// keys are distinct, so ordering by the key hash alone is total
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i][:common.HashLength], pairs[j][:common.HashLength]) < 0
	})
	return common.Sha256(pairs...), nil
}

// HashValue hashes one field value: text and bytes by content, integers by
// their unsigned LEB128 encoding, lists by the concatenation of element hashes
// and maps with HashOfMap.
func HashValue(v any) (common.Hash, error) {
	switch x := v.(type) {
	case HashRepresenter:
		return HashValue(x.HashRepresentation())
	case string:
		return common.Sha256([]byte(x)), nil
	case []byte:
		return common.Sha256(x), nil
	case principal.Principal:
		return common.Sha256(x.Raw), nil
	case *principal.Principal:
		if x == nil {
			break
		}
		return common.Sha256(x.Raw), nil
	case RequestID:
		return common.Sha256(x[:]), nil
	case common.Hash:
		return common.Sha256(x[:]), nil
	case map[string]any:
		return HashOfMap(x)
	case []any:
		return hashList(len(x), func(i int) any { return x[i] })
	}
	if n, ok, err := toInteger(v); ok {
		if err != nil {
			return common.Hash{}, err
		}
		enc, err := leb128.EncodeUnsigned(n)
		if err != nil {
			return common.Hash{}, fmt.Errorf("%w: %s", agenterrors.ErrHNegativeInteger, n)
		}
		return common.Sha256(enc), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return common.Sha256(b), nil
		}
		return hashList(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	}
	return common.Hash{}, fmt.Errorf("%w: %v (%T)", agenterrors.ErrHUnsupportedValue, v, v)
}

func hashList(n int, item func(int) any) (common.Hash, error) {
	hashes := make([][]byte, n)
	for i := 0; i < n; i++ {
		h, err := HashValue(item(i))
		if err != nil {
			return common.Hash{}, fmt.Errorf("element %d: %w", i, err)
		}
		hashes[i] = h.Bytes()
	}
	return common.Sha256(hashes...), nil
}

func toInteger(v any) (*big.Int, bool, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, true, fmt.Errorf("%w: nil *big.Int", agenterrors.ErrHUnsupportedValue)
		}
		return n, true, nil
	case *uint256.Int:
		if n == nil {
			return nil, true, fmt.Errorf("%w: nil *uint256.Int", agenterrors.ErrHUnsupportedValue)
		}
		return n.ToBig(), true, nil
	case int:
		return big.NewInt(int64(n)), true, nil
	case int8:
		return big.NewInt(int64(n)), true, nil
	case int16:
		return big.NewInt(int64(n)), true, nil
	case int32:
		return big.NewInt(int64(n)), true, nil
	case int64:
		return big.NewInt(n), true, nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true, nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true, nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true, nil
	case uint64:
		return new(big.Int).SetUint64(n), true, nil
	}
	return nil, false, nil
}

// isNil reports absent values: untyped nil and nil pointers. Empty byte
// strings are present values.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
