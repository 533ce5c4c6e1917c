package hashtree

import (
	"fmt"
	"unicode"

	"github.com/colorfulnotion/icagent/common"
	"github.com/xlab/treeprint"
)

// Render draws the tree with forks flattened, printing printable labels and
// leaves as text and everything else as hex.
func (t *Tree) Render() string {
	root := treeprint.New()
	root.SetValue(fmt.Sprintf("root %s", t.Reconstruct().String_short()))
	t.addTo(root)
	return root.String()
}

func (t *Tree) addTo(parent treeprint.Tree) {
	for _, c := range FlattenForks(t) {
		switch c.Type {
		case LabeledNode:
			child := c.Left
			if child.Type == LeafNode {
				parent.AddNode(fmt.Sprintf("%s: %s", display(c.Label), display(child.Value)))
				continue
			}
			branch := parent.AddBranch(display(c.Label))
			child.addTo(branch)
		case LeafNode:
			parent.AddNode("leaf " + display(c.Value))
		case PrunedNode:
			parent.AddNode("pruned " + c.Digest.String_short())
		}
	}
}

func display(b []byte) string {
	if len(b) == 0 {
		return `""`
	}
	for _, r := range string(b) {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return common.Bytes2Hex(b)
		}
	}
	return string(b)
}
