// Package table models spreadsheet-like data as a header row plus string rows
// and defines the persistence interfaces used by the harvester and syncer.
package table

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrColumnMissing is returned when a required column is not in the header.
var ErrColumnMissing = errors.New("column missing")

// Store loads and saves a whole table.
type Store interface {
	Load(ctx context.Context) (*Table, error)
	Save(ctx context.Context, t *Table) error
}

// Codec converts a table to and from a file format.
type Codec interface {
	Decode(r io.Reader) (*Table, error)
	Encode(w io.Writer, t *Table) error
}

// Table holds a header and rows of cells. Rows are kept at header width.
type Table struct {
	Header []string
	Rows   [][]string
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Header: append([]string(nil), columns...)}
}

// FromRecords builds a table whose first record is the header. Rows shorter
// than the header are padded with blanks; longer rows widen the header.
func FromRecords(records [][]string) *Table {
	if len(records) == 0 {
		return &Table{}
	}
	t := &Table{Header: append([]string(nil), records[0]...)}
	for _, rec := range records[1:] {
		t.Rows = append(t.Rows, append([]string(nil), rec...))
	}
	t.normalize()
	return t
}

// Records returns header followed by rows.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Header...))
	for _, row := range t.Rows {
		out = append(out, append([]string(nil), row...))
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	return FromRecords(t.Records())
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the index of name in the header, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// RequireColumn returns the index of name or ErrColumnMissing.
func (t *Table) RequireColumn(name string) (int, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return -1, fmt.Errorf("%w: %q", ErrColumnMissing, name)
	}
	return idx, nil
}

// EnsureColumn appends name with blank cells when it is absent and returns
// its index.
func (t *Table) EnsureColumn(name string) int {
	if idx := t.ColumnIndex(name); idx >= 0 {
		return idx
	}
	t.Header = append(t.Header, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], "")
	}
	return len(t.Header) - 1
}

// Cell returns the value at row/col, or "" when out of range.
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// SetCell writes a value into an existing row.
func (t *Table) SetCell(row, col int, value string) error {
	if row < 0 || row >= len(t.Rows) {
		return fmt.Errorf("row %d out of range", row)
	}
	if col < 0 || col >= len(t.Header) {
		return fmt.Errorf("column %d out of range", col)
	}
	t.Rows[row][col] = value
	return nil
}

// Append adds a row, padding or truncating it to header width.
func (t *Table) Append(values ...string) {
	row := make([]string, len(t.Header))
	copy(row, values)
	t.Rows = append(t.Rows, row)
}

func (t *Table) normalize() {
	width := len(t.Header)
	for _, row := range t.Rows {
		if len(row) > width {
			width = len(row)
		}
	}
	for len(t.Header) < width {
		t.Header = append(t.Header, "")
	}
	for i, row := range t.Rows {
		for len(row) < width {
			row = append(row, "")
		}
		t.Rows[i] = row
	}
}
