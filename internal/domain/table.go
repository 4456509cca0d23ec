package domain

import (
	"errors"
	"fmt"
	"slices"
)

// TableEncoding selects how a Table lays out its cells.
type TableEncoding string

const (
	// TableEncodingRows is the legacy row-oriented form: Rows[i][j] is row i, column j.
	TableEncodingRows TableEncoding = "rows"
	// TableEncodingColumnar stores one slice per column: Data[j][i] is row i, column j.
	TableEncodingColumnar TableEncoding = "columnar"
)

// ErrTableShape is returned when table cells do not match the column list.
var ErrTableShape = errors.New("table shape mismatch")

// Table is the tabular payload of a data frame, table or chart element.
type Table struct {
	Encoding TableEncoding `json:"encoding"`
	Columns  []string      `json:"columns"`
	Rows     [][]any       `json:"rows,omitempty"`
	Data     [][]any       `json:"data,omitempty"`
}

// RowCount returns the number of rows in t.
func (t *Table) RowCount() int {
	if t == nil {
		return 0
	}
	if t.Encoding == TableEncodingColumnar {
		if len(t.Data) == 0 {
			return 0
		}
		return len(t.Data[0])
	}
	return len(t.Rows)
}

// Validate checks that every row or column agrees with the column list. A
// columnar table without column vectors is empty.
func (t *Table) Validate() error {
	switch t.Encoding {
	case TableEncodingRows, "":
		for i, row := range t.Rows {
			if len(row) != len(t.Columns) {
				return fmt.Errorf("%w: row %d has %d cells, want %d", ErrTableShape, i, len(row), len(t.Columns))
			}
		}
	case TableEncodingColumnar:
		if len(t.Data) == 0 {
			return nil
		}
		if len(t.Data) != len(t.Columns) {
			return fmt.Errorf("%w: %d column vectors for %d columns", ErrTableShape, len(t.Data), len(t.Columns))
		}
		for j, col := range t.Data {
			if len(col) != len(t.Data[0]) {
				return fmt.Errorf("%w: column %q has %d cells, want %d", ErrTableShape, t.Columns[j], len(col), len(t.Data[0]))
			}
		}
	default:
		return fmt.Errorf("%w: unknown encoding %q", ErrTableShape, t.Encoding)
	}
	return nil
}

// Append adds the rows of other to t in place. A table without columns adopts
// the columns of other. Rows in the other encoding are converted. Nothing is
// changed when either table is malformed.
func (t *Table) Append(other *Table) error {
	if other == nil {
		return nil
	}
	if err := other.Validate(); err != nil {
		return err
	}
	if len(t.Columns) == 0 && t.RowCount() == 0 {
		t.Columns = slices.Clone(other.Columns)
	}
	if !slices.Equal(t.Columns, other.Columns) {
		return fmt.Errorf("%w: columns %v, appending %v", ErrTableShape, t.Columns, other.Columns)
	}

	if err := t.Validate(); err != nil {
		return fmt.Errorf("target: %w", err)
	}

	if t.Encoding == TableEncodingColumnar {
		if len(t.Data) == 0 {
			t.Data = make([][]any, len(t.Columns))
		}
		cols := other.columns()
		for j := range t.Data {
			t.Data[j] = append(t.Data[j], cols[j]...)
		}
		return nil
	}
	t.Rows = append(t.Rows, other.rows()...)
	return nil
}

// Clone returns a deep copy of the table's slices. Cell values are shared.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := &Table{
		Encoding: t.Encoding,
		Columns:  slices.Clone(t.Columns),
	}
	if t.Rows != nil {
		c.Rows = make([][]any, len(t.Rows))
		for i, row := range t.Rows {
			c.Rows[i] = slices.Clone(row)
		}
	}
	if t.Data != nil {
		c.Data = make([][]any, len(t.Data))
		for j, col := range t.Data {
			c.Data[j] = slices.Clone(col)
		}
	}
	return c
}

// rows returns the cells in row-oriented form.
func (t *Table) rows() [][]any {
	if t.Encoding != TableEncodingColumnar {
		return t.Rows
	}
	n := t.RowCount()
	out := make([][]any, n)
	for i := 0; i < n; i++ {
		row := make([]any, len(t.Data))
		for j := range t.Data {
			row[j] = t.Data[j][i]
		}
		out[i] = row
	}
	return out
}

// columns returns the cells in columnar form.
func (t *Table) columns() [][]any {
	if t.Encoding == TableEncodingColumnar {
		return t.Data
	}
	out := make([][]any, len(t.Columns))
	for j := range out {
		col := make([]any, len(t.Rows))
		for i, row := range t.Rows {
			col[i] = row[j]
		}
		out[j] = col
	}
	return out
}
