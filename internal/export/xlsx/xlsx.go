// Package xlsx renders result tables as Excel workbooks.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/storage/tabular"
)

// DefaultSheet is used when Write is given a blank sheet name.
const DefaultSheet = "Jobs"

// ContentType is the media type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Write emits a workbook with a single sheet: one header row holding the
// union of columns and one row per record.
func Write(w io.Writer, sheet string, records []crawler.Record) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	table := tabular.Normalize(records)
	for i, h := range table.Columns {
		if err := setCell(f, sheet, i+1, 1, h); err != nil {
			return err
		}
	}
	for r, row := range table.Rows {
		for c, v := range row {
			if v == "" {
				continue
			}
			if err := setCell(f, sheet, c+1, r+2, v); err != nil {
				return err
			}
		}
	}
	if len(table.Columns) > 0 {
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("freeze header: %w", err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteDetails is Write over detail records.
func WriteDetails(w io.Writer, sheet string, details []crawler.DetailRecord) error {
	rows := make([]crawler.Record, len(details))
	for i, d := range details {
		rows[i] = d.Row()
	}
	return Write(w, sheet, rows)
}

func setCell(f *excelize.File, sheet string, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("set %s: %w", cell, err)
	}
	return nil
}
