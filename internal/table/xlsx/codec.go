// Package xlsx implements table.Codec for Excel workbooks using excelize.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/contact-harvester/internal/table"
)

// DefaultSheet is the sheet written by Encode.
const DefaultSheet = "Sheet1"

// Codec reads the first sheet of a workbook and writes a single-sheet workbook.
type Codec struct {
	sheet string
}

// New returns a codec writing to DefaultSheet.
func New() Codec {
	return Codec{sheet: DefaultSheet}
}

// Decode returns the first sheet; row 1 is the header.
func (c Codec) Decode(r io.Reader) (*table.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck // nothing to flush on read

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &table.Table{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return table.FromRecords(rows), nil
}

// Encode writes every record as a row of string cells.
func (c Codec) Encode(w io.Writer, t *table.Table) error {
	sheet := c.sheet
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // workbook is in memory

	// NewFile always starts with Sheet1.
	if sheet != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}
	for i, record := range t.Records() {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		values := make([]interface{}, len(record))
		for j, v := range record {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
