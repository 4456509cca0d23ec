package doctree

import (
	"slices"
	"strconv"
	"strings"
)

// Path addresses a node by its child index at each level below the root.
// The empty path is the root container.
type Path []int

// Key returns the flattened map key for p.
func (p Path) Key() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for i, idx := range p {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(idx))
	}
	return b.String()
}

func (p Path) String() string {
	return "[" + strings.ReplaceAll(p.Key(), ".", " ") + "]"
}

// IsRoot reports whether p addresses the root container.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Parent returns the parent path and p's index within it. It must not be
// called on the root.
func (p Path) Parent() (Path, int) {
	return p[:len(p)-1:len(p)-1], p[len(p)-1]
}

// Child returns the path of the i-th child of p.
func (p Path) Child(i int) Path {
	c := make(Path, len(p), len(p)+1)
	copy(c, p)
	return append(c, i)
}

// Clone returns a copy of p that does not share storage.
func (p Path) Clone() Path {
	if p == nil {
		return Path{}
	}
	return slices.Clone(p)
}
