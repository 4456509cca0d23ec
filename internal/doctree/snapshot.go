package doctree

import "github.com/xiaot623/livedoc/internal/domain"

// Snapshot is an immutable copy of a tree as observers see it. Containers
// that do not allow being empty and have nothing visible inside them are
// left out.
type Snapshot struct {
	Root *SnapshotNode `json:"root"`
}

// SnapshotNode is one node of a Snapshot. Exactly one of Block and Element
// is set.
type SnapshotNode struct {
	ID        uint64            `json:"id"`
	Path      Path              `json:"path"`
	Block     *domain.Block     `json:"block,omitempty"`
	Element   *domain.Element   `json:"element,omitempty"`
	Dimension *domain.Dimension `json:"dimension,omitempty"`
	Children  []*SnapshotNode   `json:"children,omitempty"`
}

// Snapshot copies the visible part of the tree.
func (t *Tree) Snapshot() *Snapshot {
	root := t.snapshotNode(Path{})
	if root == nil {
		// The root is always reported, even when it is elided by its own flag.
		v := t.nodes[""].view(Path{})
		root = &SnapshotNode{ID: v.ID, Path: v.Path, Block: v.Block, Dimension: v.Dimension}
	}
	return &Snapshot{Root: root}
}

func (t *Tree) snapshotNode(path Path) *SnapshotNode {
	n := t.nodes[path.Key()]
	v := n.view(path)
	sn := &SnapshotNode{
		ID:        v.ID,
		Path:      v.Path,
		Block:     v.Block,
		Element:   v.Element,
		Dimension: v.Dimension,
	}
	if !n.isContainer() {
		return sn
	}
	for i := 0; i < n.children; i++ {
		if child := t.snapshotNode(path.Child(i)); child != nil {
			sn.Children = append(sn.Children, child)
		}
	}
	if len(sn.Children) == 0 && !n.block.AllowEmpty {
		return nil
	}
	return sn
}

// Count returns the number of nodes in the snapshot.
func (s *Snapshot) Count() int {
	var count func(n *SnapshotNode) int
	count = func(n *SnapshotNode) int {
		total := 1
		for _, c := range n.Children {
			total += count(c)
		}
		return total
	}
	if s == nil || s.Root == nil {
		return 0
	}
	return count(s.Root)
}
