// Package report writes batch extraction results to an XLSX workbook.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"guvohbot/pkg/extract"
)

// SheetName is the worksheet holding one row per image.
const SheetName = "Guvohnoma"

// Row is one processed image.
type Row struct {
	File   string
	Record extract.Record
	Err    string
}

// Build lays rows out under a header of File, the five field labels and Error.
func Build(rows []Row) (*excelize.File, error) {
	f := excelize.NewFile()
	if _, err := f.NewSheet(SheetName); err != nil {
		return nil, err
	}
	idx, err := f.GetSheetIndex(SheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headers := []string{"File"}
	for _, fld := range (extract.Record{}).Fields() {
		headers = append(headers, fld.Label)
	}
	headers = append(headers, "Error")
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return nil, err
		}
	}

	for r, row := range rows {
		vals := []string{row.File}
		for _, fld := range row.Record.Fields() {
			vals = append(vals, fld.Value)
		}
		vals = append(vals, row.Err)
		for c, v := range vals {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			// SetCellStr keeps phone numbers and plates as text
			if err := f.SetCellStr(SheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// WriteXLSX saves rows to path.
func WriteXLSX(path string, rows []Row) error {
	f, err := Build(rows)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
