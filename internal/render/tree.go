// Package render draws document snapshots as text.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/xiaot623/livedoc/internal/doctree"
	"github.com/xiaot623/livedoc/internal/domain"
)

const maxBodyWidth = 60

var (
	blockStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	elementStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	widgetStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	branchStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginRight(1)
)

// Tree renders snap as an indented tree, one node per line.
func Tree(snap *doctree.Snapshot) string {
	if snap == nil || snap.Root == nil {
		return mutedStyle.Render("(empty)")
	}
	return build(snap.Root).String()
}

func build(n *doctree.SnapshotNode) *tree.Tree {
	t := tree.Root(label(n)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(branchStyle)
	for _, c := range n.Children {
		if c.Block != nil {
			t.Child(build(c))
			continue
		}
		t.Child(label(c))
	}
	return t
}

func label(n *doctree.SnapshotNode) string {
	if n.Block != nil {
		s := blockStyle.Render(string(n.Block.Kind))
		if n.Block.Label != "" {
			s += " " + mutedStyle.Render(fmt.Sprintf("%q", n.Block.Label))
		}
		return s
	}

	e := n.Element
	if e == nil {
		return mutedStyle.Render("?")
	}
	parts := []string{elementStyle.Render(string(e.Kind))}
	if e.WidgetID != "" {
		parts = append(parts, widgetStyle.Render("#"+e.WidgetID))
	}
	if e.Table != nil {
		parts = append(parts, mutedStyle.Render(rowsLabel(e.Table)))
	}
	if body := summarize(e.Body); body != "" {
		parts = append(parts, body)
	}
	return strings.Join(parts, " ")
}

func rowsLabel(t *domain.Table) string {
	if n := t.RowCount(); n != 1 {
		return fmt.Sprintf("(%d rows)", n)
	}
	return "(1 row)"
}

func summarize(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if r := []rune(body); len(r) > maxBodyWidth {
		return string(r[:maxBodyWidth-1]) + "…"
	}
	return body
}
