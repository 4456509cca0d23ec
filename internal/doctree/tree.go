// Package doctree holds the document tree of a run and applies the
// path-addressed mutations that build it.
//
// Nodes live in an arena keyed by their flattened path. A container records
// only how many children it has; a child's key is derived from its parent's
// path, so the tree holds no pointer cycles and an occupied path is found
// with a single map lookup.
//
// A Tree is not safe for concurrent use. Mutations must be applied in the
// order the server sent them.
package doctree

import (
	"errors"
	"fmt"

	"github.com/xiaot623/livedoc/internal/domain"
)

var (
	// ErrInvalidMutation is returned for recoverable mutation failures. The
	// mutation is dropped and the run continues.
	ErrInvalidMutation = errors.New("invalid mutation")
	// ErrMalformedPath is returned when a path violates the tree's
	// addressing rules. It is fatal to the run.
	ErrMalformedPath = errors.New("malformed path")
)

type node struct {
	id        uint64
	block     *domain.Block
	element   *domain.Element
	dimension *domain.Dimension
	children  int
}

func (n *node) isContainer() bool {
	return n.block != nil
}

// Tree is the document produced by one run.
type Tree struct {
	nodes  map[string]*node
	nextID uint64
}

// New returns a tree holding a single empty root container.
func New() *Tree {
	t := &Tree{nodes: make(map[string]*node)}
	t.nodes[""] = &node{
		id:    t.allocID(),
		block: &domain.Block{Kind: domain.BlockKindVertical, AllowEmpty: true},
	}
	return t
}

func (t *Tree) allocID() uint64 {
	t.nextID++
	return t.nextID
}

// Len returns the number of nodes, including the root.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// SetLeaf writes a leaf at path, replacing whatever occupied it or appending
// it to the parent's children.
func (t *Tree) SetLeaf(path Path, el *domain.Element, dim *domain.Dimension) error {
	if el == nil || !el.Kind.Valid() {
		return fmt.Errorf("%w: new leaf at %s has no valid element", ErrInvalidMutation, path)
	}
	if path.IsRoot() {
		return fmt.Errorf("%w: the root must be a container", ErrMalformedPath)
	}
	if err := t.checkSlot(path); err != nil {
		return err
	}

	if el.Table != nil {
		if err := el.Table.Validate(); err != nil {
			return fmt.Errorf("%w: new leaf at %s: %w", ErrInvalidMutation, path, err)
		}
	}

	stored := el.Clone()
	if stored.Kind.Tabular() && stored.Table == nil {
		stored.Table = &domain.Table{Encoding: domain.TableEncodingRows}
	}
	t.write(path, &node{element: stored, dimension: cloneDimension(dim)}, false)
	return nil
}

// SetContainer writes a container at path. Replacing a container of the same
// kind keeps the existing children; any other replacement drops them.
func (t *Tree) SetContainer(path Path, b *domain.Block, dim *domain.Dimension) error {
	if b == nil || !b.Kind.Valid() {
		return fmt.Errorf("%w: new container at %s has no valid block", ErrInvalidMutation, path)
	}
	if !path.IsRoot() {
		if err := t.checkSlot(path); err != nil {
			return err
		}
	}

	stored := *b
	n := &node{block: &stored, dimension: cloneDimension(dim)}
	existing := t.nodes[path.Key()]
	keep := existing != nil && existing.isContainer() && existing.block.Kind == b.Kind
	t.write(path, n, keep)
	return nil
}

// AppendRows appends rows to the table of the tabular leaf at path. The leaf
// keeps its identity.
func (t *Tree) AppendRows(path Path, rows *domain.Table) error {
	if rows == nil {
		return fmt.Errorf("%w: add rows at %s carries no rows", ErrInvalidMutation, path)
	}
	n, ok := t.nodes[path.Key()]
	if !ok {
		return fmt.Errorf("%w: no node at %s", ErrInvalidMutation, path)
	}
	if n.element == nil || !n.element.Kind.Tabular() {
		return fmt.Errorf("%w: node at %s is not a tabular leaf", ErrInvalidMutation, path)
	}
	if n.element.Table == nil {
		n.element.Table = &domain.Table{Encoding: rows.Encoding}
	}
	if err := n.element.Table.Append(rows); err != nil {
		return fmt.Errorf("%w: add rows at %s: %w", ErrInvalidMutation, path, err)
	}
	return nil
}

// checkSlot checks that path can be written: every index is non-negative, the
// parent exists and is a container, and the index is at most one past the
// parent's last child.
func (t *Tree) checkSlot(path Path) error {
	for _, idx := range path {
		if idx < 0 {
			return fmt.Errorf("%w: negative index in %s", ErrMalformedPath, path)
		}
	}
	parentPath, idx := path.Parent()
	parent, ok := t.nodes[parentPath.Key()]
	if !ok {
		return fmt.Errorf("%w: parent of %s does not exist", ErrMalformedPath, path)
	}
	if !parent.isContainer() {
		return fmt.Errorf("%w: parent of %s is a leaf", ErrMalformedPath, path)
	}
	if idx > parent.children {
		return fmt.Errorf("%w: %s leaves a gap, parent has %d children", ErrMalformedPath, path, parent.children)
	}
	return nil
}

// write places n at path, which has already been validated.
func (t *Tree) write(path Path, n *node, keepChildren bool) {
	key := path.Key()
	n.id = t.allocID()
	if existing, ok := t.nodes[key]; ok {
		if keepChildren {
			n.children = existing.children
		} else {
			t.removeDescendants(path, existing)
		}
	} else {
		parentPath, _ := path.Parent()
		t.nodes[parentPath.Key()].children++
	}
	t.nodes[key] = n
}

func (t *Tree) removeDescendants(path Path, n *node) {
	for i := 0; i < n.children; i++ {
		childPath := path.Child(i)
		child, ok := t.nodes[childPath.Key()]
		if !ok {
			continue
		}
		t.removeDescendants(childPath, child)
		delete(t.nodes, childPath.Key())
	}
	n.children = 0
}

// View is a read-only copy of one node.
type View struct {
	ID        uint64
	Path      Path
	Block     *domain.Block
	Element   *domain.Element
	Dimension *domain.Dimension
	Children  int
}

// IsContainer reports whether the viewed node is a container.
func (v View) IsContainer() bool {
	return v.Block != nil
}

// Lookup returns the node at path.
func (t *Tree) Lookup(path Path) (View, bool) {
	n, ok := t.nodes[path.Key()]
	if !ok {
		return View{}, false
	}
	return n.view(path), true
}

// Paths returns every occupied path in depth-first order.
func (t *Tree) Paths() []Path {
	out := make([]Path, 0, len(t.nodes))
	var walk func(p Path)
	walk = func(p Path) {
		out = append(out, p)
		n := t.nodes[p.Key()]
		for i := 0; i < n.children; i++ {
			walk(p.Child(i))
		}
	}
	walk(Path{})
	return out
}

func (n *node) view(path Path) View {
	v := View{
		ID:        n.id,
		Path:      path.Clone(),
		Element:   n.element.Clone(),
		Dimension: cloneDimension(n.dimension),
		Children:  n.children,
	}
	if n.block != nil {
		b := *n.block
		v.Block = &b
	}
	return v
}

func cloneDimension(d *domain.Dimension) *domain.Dimension {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
