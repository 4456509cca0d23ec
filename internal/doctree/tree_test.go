package doctree

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/livedoc/internal/domain"
)

func vertical() *domain.Block {
	return &domain.Block{Kind: domain.BlockKindVertical}
}

func text(body string) *domain.Element {
	return &domain.Element{Kind: domain.ElementKindText, Body: body}
}

func dataFrame(rows ...[]any) *domain.Element {
	return &domain.Element{
		Kind:  domain.ElementKindDataFrame,
		Table: &domain.Table{Encoding: domain.TableEncodingRows, Columns: []string{"a", "b"}, Rows: rows},
	}
}

func TestNewTreeHasEmptyRoot(t *testing.T) {
	tree := New()

	root, ok := tree.Lookup(Path{})
	require.True(t, ok)
	assert.True(t, root.IsContainer())
	assert.Equal(t, 0, root.Children)
	assert.Equal(t, 1, tree.Len())
}

func TestNestedTextLeaf(t *testing.T) {
	tree := New()

	require.NoError(t, tree.SetContainer(Path{0}, vertical(), nil))
	require.NoError(t, tree.SetLeaf(Path{0, 0}, text("hi"), nil))

	snap := tree.Snapshot()
	require.Len(t, snap.Root.Children, 1)
	child := snap.Root.Children[0]
	require.NotNil(t, child.Block)
	assert.Equal(t, domain.BlockKindVertical, child.Block.Kind)
	require.Len(t, child.Children, 1)
	assert.Equal(t, "hi", child.Children[0].Element.Body)
	assert.Equal(t, Path{0, 0}, child.Children[0].Path)
}

func TestWriteReplacesOrAppends(t *testing.T) {
	tree := New()

	require.NoError(t, tree.SetLeaf(Path{0}, text("a"), nil))
	require.NoError(t, tree.SetLeaf(Path{1}, text("b"), nil))
	require.NoError(t, tree.SetLeaf(Path{0}, text("c"), nil))

	root, _ := tree.Lookup(Path{})
	assert.Equal(t, 2, root.Children)
	got, _ := tree.Lookup(Path{0})
	assert.Equal(t, "c", got.Element.Body)
}

func TestMalformedPaths(t *testing.T) {
	tests := []struct {
		name string
		path Path
	}{
		{"gap at root", Path{3}},
		{"gap in container", Path{0, 1}},
		{"missing parent", Path{5, 0}},
		{"negative", Path{-1}},
		{"leaf parent", Path{1, 0}},
	}

	tree := New()
	require.NoError(t, tree.SetContainer(Path{0}, vertical(), nil))
	require.NoError(t, tree.SetLeaf(Path{1}, text("x"), nil))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tree.SetLeaf(tt.path, text("y"), nil)
			assert.True(t, errors.Is(err, ErrMalformedPath), "got %v", err)
			err = tree.SetContainer(tt.path, vertical(), nil)
			assert.True(t, errors.Is(err, ErrMalformedPath), "got %v", err)
		})
	}
	assert.Equal(t, 3, tree.Len())
}

func TestLeafAtRootIsMalformed(t *testing.T) {
	tree := New()

	err := tree.SetLeaf(Path{}, text("x"), nil)
	assert.True(t, errors.Is(err, ErrMalformedPath))
}

func TestReplaceContainerSameKindKeepsChildren(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetContainer(Path{0}, &domain.Block{Kind: domain.BlockKindExpandable, Label: "old"}, nil))
	require.NoError(t, tree.SetLeaf(Path{0, 0}, text("kept"), nil))

	require.NoError(t, tree.SetContainer(Path{0}, &domain.Block{Kind: domain.BlockKindExpandable, Label: "new", Expanded: true}, nil))

	got, _ := tree.Lookup(Path{0})
	assert.Equal(t, "new", got.Block.Label)
	assert.Equal(t, 1, got.Children)
	leaf, ok := tree.Lookup(Path{0, 0})
	require.True(t, ok)
	assert.Equal(t, "kept", leaf.Element.Body)
}

func TestReplaceContainerOtherKindDropsSubtree(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetContainer(Path{0}, vertical(), nil))
	require.NoError(t, tree.SetContainer(Path{0, 0}, vertical(), nil))
	require.NoError(t, tree.SetLeaf(Path{0, 0, 0}, text("deep"), nil))

	require.NoError(t, tree.SetContainer(Path{0}, &domain.Block{Kind: domain.BlockKindForm, FormID: "f"}, nil))

	_, ok := tree.Lookup(Path{0, 0})
	assert.False(t, ok)
	_, ok = tree.Lookup(Path{0, 0, 0})
	assert.False(t, ok)
	assert.Equal(t, 2, tree.Len())

	require.NoError(t, tree.SetLeaf(Path{0}, text("flat"), nil))
	assert.Equal(t, 2, tree.Len())
}

func TestReplaceRootKeepsChildren(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetLeaf(Path{0}, text("a"), nil))

	require.NoError(t, tree.SetContainer(Path{}, &domain.Block{Kind: domain.BlockKindVertical, Gap: "small"}, nil))

	root, _ := tree.Lookup(Path{})
	assert.Equal(t, "small", root.Block.Gap)
	assert.Equal(t, 1, root.Children)
}

func TestAppendRowsKeepsIdentity(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetLeaf(Path{0}, dataFrame([]any{1, 2}), nil))
	before, _ := tree.Lookup(Path{0})

	err := tree.AppendRows(Path{0}, &domain.Table{Encoding: domain.TableEncodingRows, Columns: []string{"a", "b"}, Rows: [][]any{{3, 4}, {5, 6}}})
	require.NoError(t, err)

	after, _ := tree.Lookup(Path{0})
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Element.Table.RowCount()+2, after.Element.Table.RowCount())
}

func TestAppendRowsColumnar(t *testing.T) {
	tree := New()
	el := &domain.Element{
		Kind:  domain.ElementKindChart,
		Table: &domain.Table{Encoding: domain.TableEncodingColumnar, Columns: []string{"x"}, Data: [][]any{{1.0}}},
	}
	require.NoError(t, tree.SetLeaf(Path{0}, el, nil))

	err := tree.AppendRows(Path{0}, &domain.Table{Encoding: domain.TableEncodingColumnar, Columns: []string{"x"}, Data: [][]any{{2.0, 3.0}}})
	require.NoError(t, err)

	got, _ := tree.Lookup(Path{0})
	assert.Equal(t, []any{1.0, 2.0, 3.0}, got.Element.Table.Data[0])
	assert.Equal(t, []any{1.0}, el.Table.Data[0], "the caller's element must not be mutated")
}

func TestAppendRowsInvalidTargets(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetLeaf(Path{0}, text("not a table"), nil))
	require.NoError(t, tree.SetLeaf(Path{1}, dataFrame(), nil))
	rows := &domain.Table{Encoding: domain.TableEncodingRows, Columns: []string{"a", "b"}, Rows: [][]any{{1, 2}}}

	assert.True(t, errors.Is(tree.AppendRows(Path{0}, rows), ErrInvalidMutation))
	assert.True(t, errors.Is(tree.AppendRows(Path{9}, rows), ErrInvalidMutation))
	assert.True(t, errors.Is(tree.AppendRows(Path{}, rows), ErrInvalidMutation))
	assert.True(t, errors.Is(tree.AppendRows(Path{1}, nil), ErrInvalidMutation))

	wrongCols := &domain.Table{Encoding: domain.TableEncodingRows, Columns: []string{"z"}, Rows: [][]any{{1}}}
	assert.True(t, errors.Is(tree.AppendRows(Path{1}, wrongCols), ErrInvalidMutation))
}

func TestInvalidPayloads(t *testing.T) {
	tree := New()

	assert.True(t, errors.Is(tree.SetLeaf(Path{0}, nil, nil), ErrInvalidMutation))
	assert.True(t, errors.Is(tree.SetLeaf(Path{0}, &domain.Element{Kind: "hologram"}, nil), ErrInvalidMutation))
	assert.True(t, errors.Is(tree.SetContainer(Path{0}, &domain.Block{Kind: "spiral"}, nil), ErrInvalidMutation))
}

func TestMalformedTableLeafIsRejected(t *testing.T) {
	tree := New()
	el := &domain.Element{
		Kind:  domain.ElementKindDataFrame,
		Table: &domain.Table{Encoding: domain.TableEncodingColumnar, Columns: []string{"a", "b"}, Data: [][]any{{1}}},
	}

	err := tree.SetLeaf(Path{0}, el, nil)
	assert.True(t, errors.Is(err, ErrInvalidMutation))
	assert.True(t, errors.Is(err, domain.ErrTableShape))
	_, ok := tree.Lookup(Path{0})
	assert.False(t, ok)
	assert.Equal(t, 1, tree.Len())
}

func TestSnapshotElidesEmptyContainers(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetContainer(Path{0}, vertical(), nil))
	require.NoError(t, tree.SetContainer(Path{1}, &domain.Block{Kind: domain.BlockKindVertical, AllowEmpty: true}, nil))
	require.NoError(t, tree.SetContainer(Path{2}, vertical(), nil))
	require.NoError(t, tree.SetContainer(Path{2, 0}, vertical(), nil))

	snap := tree.Snapshot()

	require.Len(t, snap.Root.Children, 1)
	assert.Equal(t, Path{1}, snap.Root.Children[0].Path)
	assert.Equal(t, 2, snap.Count())
	// Elided containers still exist for addressing.
	require.NoError(t, tree.SetLeaf(Path{0, 0}, text("late"), nil))
	assert.Len(t, tree.Snapshot().Root.Children, 2)
}

func TestSnapshotIsImmutable(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetLeaf(Path{0}, dataFrame([]any{1, 2}), nil))
	snap := tree.Snapshot()

	require.NoError(t, tree.AppendRows(Path{0}, &domain.Table{Encoding: domain.TableEncodingRows, Columns: []string{"a", "b"}, Rows: [][]any{{3, 4}}}))
	require.NoError(t, tree.SetLeaf(Path{1}, text("more"), nil))

	assert.Equal(t, 1, snap.Root.Children[0].Element.Table.RowCount())
	assert.Len(t, snap.Root.Children, 1)
}

func TestDimensionStoredOnNode(t *testing.T) {
	tree := New()
	require.NoError(t, tree.SetLeaf(Path{0}, text("sized"), &domain.Dimension{Width: 300}))

	got, _ := tree.Lookup(Path{0})
	require.NotNil(t, got.Dimension)
	assert.Equal(t, 300, got.Dimension.Width)
}

// Gap-free random mutation sequences always leave every occupied path with a
// fully populated parent chain and dense sibling lists.
func TestPathInvariantRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		tree := New()
		for step := 0; step < 40; step++ {
			paths := tree.Paths()
			var containers []View
			for _, p := range paths {
				v, _ := tree.Lookup(p)
				if v.IsContainer() {
					containers = append(containers, v)
				}
			}
			parent := containers[rng.Intn(len(containers))]
			target := parent.Path.Child(rng.Intn(parent.Children + 1))

			var err error
			switch rng.Intn(3) {
			case 0:
				err = tree.SetLeaf(target, text("leaf"), nil)
			case 1:
				err = tree.SetContainer(target, vertical(), nil)
			default:
				err = tree.SetContainer(target, &domain.Block{Kind: domain.BlockKindHorizontal}, nil)
			}
			require.NoError(t, err)
		}

		paths := tree.Paths()
		assert.Equal(t, tree.Len(), len(paths))
		seen := map[string]bool{}
		for _, p := range paths {
			assert.False(t, seen[p.Key()], "path %s reported twice", p)
			seen[p.Key()] = true
			for depth := 0; depth < len(p); depth++ {
				_, ok := tree.Lookup(p[:depth])
				assert.True(t, ok, "ancestor of %s missing", p)
			}
			if !p.IsRoot() {
				parentPath, idx := p.Parent()
				parent, _ := tree.Lookup(parentPath)
				assert.Less(t, idx, parent.Children)
			}
		}
	}
}
