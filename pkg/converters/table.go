package converters

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// FormatFloat renders abundances with a fixed six decimal places so the
// formatted input is byte-stable across runs.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// WriteTSV writes rows as tab-separated text.
func WriteTSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

// ReadTSV reads tab-separated rows, requiring exactly fields columns per row
// when fields > 0. Blank lines are skipped.
func ReadTSV(r io.Reader, fields int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = fields
	if fields <= 0 {
		cr.FieldsPerRecord = -1
	}
	return cr.ReadAll()
}
