// Package hashtree models the certified state tree carried in certificates:
// its CBOR encoding, root reconstruction and path lookup.
package hashtree

import (
	"bytes"
	"fmt"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/colorfulnotion/icagent/common"
)

// NodeType is the CBOR tag of a tree node.
type NodeType uint8

const (
	EmptyNode NodeType = iota
	ForkNode
	LabeledNode
	LeafNode
	PrunedNode
)

func (n NodeType) String() string {
	switch n {
	case EmptyNode:
		return "empty"
	case ForkNode:
		return "fork"
	case LabeledNode:
		return "labeled"
	case LeafNode:
		return "leaf"
	case PrunedNode:
		return "pruned"
	}
	return fmt.Sprintf("node(%d)", uint8(n))
}

// Tree is a node of a hash tree. Left and Right are set on forks, Label and
// Left on labeled nodes, Value on leaves and Digest on pruned nodes.
type Tree struct {
	Type   NodeType
	Left   *Tree
	Right  *Tree
	Label  []byte
	Value  []byte
	Digest common.Hash
}

var (
	emptyTag   = common.DomainSeparator("ic-hashtree-empty")
	forkTag    = common.DomainSeparator("ic-hashtree-fork")
	labeledTag = common.DomainSeparator("ic-hashtree-labeled")
	leafTag    = common.DomainSeparator("ic-hashtree-leaf")
)

func Empty() *Tree {
	return &Tree{Type: EmptyNode}
}

func Fork(left, right *Tree) *Tree {
	return &Tree{Type: ForkNode, Left: left, Right: right}
}

func Labeled(label []byte, child *Tree) *Tree {
	return &Tree{Type: LabeledNode, Label: label, Left: child}
}

func Leaf(value []byte) *Tree {
	return &Tree{Type: LeafNode, Value: value}
}

func Pruned(digest common.Hash) *Tree {
	return &Tree{Type: PrunedNode, Digest: digest}
}

// Child returns the subtree of a labeled node.
func (t *Tree) Child() *Tree {
	if t.Type != LabeledNode {
		return nil
	}
	return t.Left
}

// Reconstruct computes the root digest of the tree. Pruned nodes contribute
// their digest verbatim.
func (t *Tree) Reconstruct() common.Hash {
	switch t.Type {
	case ForkNode:
		l, r := t.Left.Reconstruct(), t.Right.Reconstruct()
		return common.Sha256(forkTag, l[:], r[:])
	case LabeledNode:
		c := t.Left.Reconstruct()
		return common.Sha256(labeledTag, t.Label, c[:])
	case LeafNode:
		return common.Sha256(leafTag, t.Value)
	case PrunedNode:
		return t.Digest
	}
	return common.Sha256(emptyTag)
}

// Validate checks that every node carries the members its type requires.
func (t *Tree) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil tree node", agenterrors.ErrVMalformedCertificate)
	}
	switch t.Type {
	case EmptyNode, LeafNode, PrunedNode:
		return nil
	case ForkNode:
		if err := t.Left.Validate(); err != nil {
			return err
		}
		return t.Right.Validate()
	case LabeledNode:
		return t.Left.Validate()
	}
	return fmt.Errorf("%w: unknown node type %d", agenterrors.ErrVMalformedCertificate, t.Type)
}

// Labels converts text path segments to labels.
func Labels(segments ...string) [][]byte {
	out := make([][]byte, len(segments))
	for i, s := range segments {
		out[i] = []byte(s)
	}
	return out
}

// FlattenForks returns the non-empty direct children of a chain of forks.
func FlattenForks(t *Tree) []*Tree {
	switch t.Type {
	case EmptyNode:
		return nil
	case ForkNode:
		return append(FlattenForks(t.Left), FlattenForks(t.Right)...)
	}
	return []*Tree{t}
}

// LookupSubtree follows path through labeled nodes and returns the subtree
// found at its end.
func (t *Tree) LookupSubtree(path ...[]byte) (*Tree, bool) {
	cur := t
	for _, label := range path {
		var next *Tree
		for _, c := range FlattenForks(cur) {
			if c.Type == LabeledNode && bytes.Equal(c.Label, label) {
				next = c.Left
				break
			}
		}
		if next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Lookup returns the value of the leaf at path. Paths ending anywhere other
// than a leaf are not found.
func (t *Tree) Lookup(path ...[]byte) ([]byte, bool) {
	sub, ok := t.LookupSubtree(path...)
	if !ok || sub.Type != LeafNode {
		return nil, false
	}
	return sub.Value, true
}

// LookupString is Lookup over text path segments.
func (t *Tree) LookupString(path ...string) ([]byte, bool) {
	return t.Lookup(Labels(path...)...)
}
