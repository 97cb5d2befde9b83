// Package tabular converts heterogeneous records into a rectangular table
// (the union of every field seen, in first-seen order) and encodes tables
// as UTF-8 CSV.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a header plus rows of equal width.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Columns returns the union of record keys in first-seen order.
func Columns(records []crawler.Record) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range records {
		for _, k := range r.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	return cols
}

// Normalize normalizes records to the union of their columns; fields a
// record lacks are left blank.
func Normalize(records []crawler.Record) Table {
	cols := Columns(records)
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = r.Get(c)
		}
		rows = append(rows, row)
	}
	return Table{Columns: cols, Rows: rows}
}

// Records turns each row back into a record carrying every column.
func (t Table) Records() []crawler.Record {
	out := make([]crawler.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		r := crawler.NewRecord()
		for i, c := range t.Columns {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			r.Set(c, v)
		}
		out = append(out, r)
	}
	return out
}

// WriteCSV writes the header and rows. An empty table with no columns
// produces empty output.
func WriteCSV(w io.Writer, t Table) error {
	if len(t.Columns) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// EncodeCSV is WriteCSV into a byte slice.
func EncodeCSV(t Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadCSV parses a header row followed by data rows. A leading UTF-8 BOM is
// ignored and empty input yields an empty table. Short rows are padded.
func ReadCSV(r io.Reader) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Table{}, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return Table{}, nil
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return Table{}, fmt.Errorf("read csv header: %w", err)
	}
	t := Table{Columns: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read csv row %d: %w", len(t.Rows)+1, err)
		}
		if len(row) < len(header) {
			row = append(row, make([]string, len(header)-len(row))...)
		}
		t.Rows = append(t.Rows, row[:len(header)])
	}
	return t, nil
}
