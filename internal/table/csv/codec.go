// Package csv implements table.Codec for comma-separated files.
package csv

import (
	stdcsv "encoding/csv"
	"fmt"
	"io"

	"github.com/JakeFAU/contact-harvester/internal/table"
)

// Codec reads and writes RFC 4180 CSV with a header row.
type Codec struct{}

// New returns a CSV codec.
func New() Codec {
	return Codec{}
}

// Decode parses CSV records. Ragged rows are accepted and padded.
func (Codec) Decode(r io.Reader) (*table.Table, error) {
	reader := stdcsv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return table.FromRecords(records), nil
}

// Encode writes the header and rows.
func (Codec) Encode(w io.Writer, t *table.Table) error {
	writer := stdcsv.NewWriter(w)
	if err := writer.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
