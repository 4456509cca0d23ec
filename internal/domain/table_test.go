package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAppendRowsToRows(t *testing.T) {
	tbl := &Table{Encoding: TableEncodingRows, Columns: []string{"a", "b"}, Rows: [][]any{{1, 2}}}

	err := tbl.Append(&Table{Encoding: TableEncodingRows, Columns: []string{"a", "b"}, Rows: [][]any{{3, 4}, {5, 6}}})
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.RowCount())
	assert.Equal(t, []any{5, 6}, tbl.Rows[2])
}

func TestTableAppendConvertsEncodings(t *testing.T) {
	columnar := &Table{Encoding: TableEncodingColumnar, Columns: []string{"x", "y"}, Data: [][]any{{1}, {"one"}}}

	err := columnar.Append(&Table{Encoding: TableEncodingRows, Columns: []string{"x", "y"}, Rows: [][]any{{2, "two"}}})
	require.NoError(t, err)
	assert.Equal(t, 2, columnar.RowCount())
	assert.Equal(t, []any{1, 2}, columnar.Data[0])
	assert.Equal(t, []any{"one", "two"}, columnar.Data[1])

	rows := &Table{Encoding: TableEncodingRows, Columns: []string{"x", "y"}}
	err = rows.Append(&Table{Encoding: TableEncodingColumnar, Columns: []string{"x", "y"}, Data: [][]any{{7, 8}, {"s", "e"}}})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{7, "s"}, {8, "e"}}, rows.Rows)
}

func TestTableAppendAdoptsColumns(t *testing.T) {
	tbl := &Table{Encoding: TableEncodingColumnar}

	err := tbl.Append(&Table{Encoding: TableEncodingRows, Columns: []string{"v"}, Rows: [][]any{{1}, {2}}})
	require.NoError(t, err)

	assert.Equal(t, []string{"v"}, tbl.Columns)
	assert.Equal(t, 2, tbl.RowCount())
}

func TestTableAppendRejectsMismatchedColumns(t *testing.T) {
	tbl := &Table{Encoding: TableEncodingRows, Columns: []string{"a"}, Rows: [][]any{{1}}}

	err := tbl.Append(&Table{Encoding: TableEncodingRows, Columns: []string{"b"}, Rows: [][]any{{2}}})
	assert.True(t, errors.Is(err, ErrTableShape))
	assert.Equal(t, 1, tbl.RowCount())

	err = tbl.Append(&Table{Encoding: TableEncodingRows, Columns: []string{"a"}, Rows: [][]any{{2, 3}}})
	assert.True(t, errors.Is(err, ErrTableShape))
}

func TestTableAppendToMalformedTargetKeepsRows(t *testing.T) {
	tbl := &Table{Encoding: TableEncodingColumnar, Columns: []string{"a", "b"}, Data: [][]any{{1}}}

	err := tbl.Append(&Table{Encoding: TableEncodingColumnar, Columns: []string{"a", "b"}, Data: [][]any{{2}, {3}}})
	assert.True(t, errors.Is(err, ErrTableShape))
	assert.Equal(t, [][]any{{1}}, tbl.Data)
	assert.Equal(t, 1, tbl.RowCount())
}

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name  string
		table Table
		ok    bool
	}{
		{"rows", Table{Columns: []string{"a"}, Rows: [][]any{{1}, {2}}}, true},
		{"short row", Table{Columns: []string{"a", "b"}, Rows: [][]any{{1}}}, false},
		{"columnar", Table{Encoding: TableEncodingColumnar, Columns: []string{"a", "b"}, Data: [][]any{{1}, {2}}}, true},
		{"empty columnar", Table{Encoding: TableEncodingColumnar, Columns: []string{"a"}}, true},
		{"missing vector", Table{Encoding: TableEncodingColumnar, Columns: []string{"a", "b"}, Data: [][]any{{1}}}, false},
		{"ragged vectors", Table{Encoding: TableEncodingColumnar, Columns: []string{"a", "b"}, Data: [][]any{{1}, {2, 3}}}, false},
		{"unknown encoding", Table{Encoding: "sparse"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrTableShape))
			}
		})
	}
}

func TestTableCloneIsIndependent(t *testing.T) {
	tbl := &Table{Encoding: TableEncodingRows, Columns: []string{"a"}, Rows: [][]any{{1}}}
	c := tbl.Clone()

	require.NoError(t, tbl.Append(&Table{Encoding: TableEncodingRows, Columns: []string{"a"}, Rows: [][]any{{2}}}))

	assert.Equal(t, 1, c.RowCount())
	assert.Equal(t, 2, tbl.RowCount())
}
