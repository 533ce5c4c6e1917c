package hashtree

import (
	"fmt"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/colorfulnotion/icagent/common"
	"github.com/fxamacker/cbor/v2"
)

// MaxNestedLevels bounds CBOR nesting when decoding trees and certificates.
const MaxNestedLevels = 1024

// DecMode decodes deep trees; the library default nesting limit is too small
// for real state trees.
var DecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{MaxNestedLevels: MaxNestedLevels}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Decode parses a CBOR encoded tree.
func Decode(data []byte) (*Tree, error) {
	t := &Tree{}
	if err := t.UnmarshalCBOR(data); err != nil {
		return nil, err
	}
	return t, nil
}

// MarshalCBOR encodes the tree as nested arrays headed by the node tag.
func (t *Tree) MarshalCBOR() ([]byte, error) {
	var arr []any
	switch t.Type {
	case EmptyNode:
		arr = []any{EmptyNode}
	case ForkNode:
		arr = []any{ForkNode, t.Left, t.Right}
	case LabeledNode:
		arr = []any{LabeledNode, nonNil(t.Label), t.Left}
	case LeafNode:
		arr = []any{LeafNode, nonNil(t.Value)}
	case PrunedNode:
		arr = []any{PrunedNode, t.Digest.Bytes()}
	default:
		return nil, fmt.Errorf("%w: unknown node type %d", agenterrors.ErrVMalformedCertificate, t.Type)
	}
	return cbor.Marshal(arr)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// UnmarshalCBOR decodes one node and its subtrees.
func (t *Tree) UnmarshalCBOR(data []byte) error {
	var raw []cbor.RawMessage
	if err := DecMode.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: tree node: %v", agenterrors.ErrVMalformedCertificate, err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty tree node", agenterrors.ErrVMalformedCertificate)
	}
	var tag NodeType
	if err := DecMode.Unmarshal(raw[0], &tag); err != nil {
		return fmt.Errorf("%w: tree tag: %v", agenterrors.ErrVMalformedCertificate, err)
	}
	want := map[NodeType]int{EmptyNode: 1, ForkNode: 3, LabeledNode: 3, LeafNode: 2, PrunedNode: 2}
	n, ok := want[tag]
	if !ok {
		return fmt.Errorf("%w: unknown node type %d", agenterrors.ErrVMalformedCertificate, tag)
	}
	if len(raw) != n {
		return fmt.Errorf("%w: %s node with %d elements", agenterrors.ErrVMalformedCertificate, tag, len(raw))
	}

	*t = Tree{Type: tag}
	switch tag {
	case ForkNode:
		t.Left, t.Right = &Tree{}, &Tree{}
		if err := t.Left.UnmarshalCBOR(raw[1]); err != nil {
			return err
		}
		return t.Right.UnmarshalCBOR(raw[2])
	case LabeledNode:
		if err := unmarshalBytes(raw[1], &t.Label); err != nil {
			return err
		}
		t.Left = &Tree{}
		return t.Left.UnmarshalCBOR(raw[2])
	case LeafNode:
		return unmarshalBytes(raw[1], &t.Value)
	case PrunedNode:
		var digest []byte
		if err := unmarshalBytes(raw[1], &digest); err != nil {
			return err
		}
		if len(digest) != common.HashLength {
			return fmt.Errorf("%w: pruned digest of %d bytes", agenterrors.ErrVMalformedCertificate, len(digest))
		}
		t.Digest = common.BytesToHash(digest)
	}
	return nil
}

func unmarshalBytes(raw cbor.RawMessage, out *[]byte) error {
	var b []byte
	if err := DecMode.Unmarshal(raw, &b); err != nil {
		return fmt.Errorf("%w: expected byte string: %v", agenterrors.ErrVMalformedCertificate, err)
	}
	if b == nil {
		b = []byte{}
	}
	*out = b
	return nil
}
