package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/livedoc/internal/doctree"
	"github.com/xiaot623/livedoc/internal/domain"
)

func TestTreeRendersNodes(t *testing.T) {
	doc := doctree.New()
	require.NoError(t, doc.SetContainer(doctree.Path{0}, &domain.Block{Kind: domain.BlockKindExpandable, Label: "Details"}, nil))
	require.NoError(t, doc.SetLeaf(doctree.Path{0, 0}, &domain.Element{Kind: domain.ElementKindText, Body: "hello\n  world"}, nil))
	require.NoError(t, doc.SetLeaf(doctree.Path{1}, &domain.Element{Kind: domain.ElementKindSlider, WidgetID: "s1"}, nil))
	require.NoError(t, doc.SetLeaf(doctree.Path{2}, &domain.Element{
		Kind:  domain.ElementKindDataFrame,
		Table: &domain.Table{Columns: []string{"a"}, Rows: [][]any{{1}, {2}}},
	}, nil))

	out := Tree(doc.Snapshot())
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 5)

	assert.Contains(t, lines[0], "vertical")
	assert.Contains(t, lines[1], `expandable "Details"`)
	assert.Contains(t, lines[2], "text hello world")
	assert.Contains(t, lines[3], "slider #s1")
	assert.Contains(t, lines[4], "data-frame (2 rows)")
}

func TestTreeElidesEmptyContainers(t *testing.T) {
	doc := doctree.New()
	require.NoError(t, doc.SetContainer(doctree.Path{0}, &domain.Block{Kind: domain.BlockKindHorizontal}, nil))

	out := Tree(doc.Snapshot())
	assert.NotContains(t, out, "horizontal")
	assert.Contains(t, out, "vertical")
}

func TestTreeNilSnapshot(t *testing.T) {
	assert.Contains(t, Tree(nil), "(empty)")
}

func TestSummarizeTruncates(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := summarize(long)
	assert.Equal(t, maxBodyWidth, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
