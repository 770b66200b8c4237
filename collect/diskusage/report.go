package diskusage

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// sheetName is the single sheet of the report workbook
const sheetName = "Disk Usage"

var reportHeader = []string{
	"Resource Name",
	"Resource ID",
	"Partition",
	"Total (GB)",
	"Used (GB)",
	"Used (%)",
}

// WriteReport writes the rows as an xlsx workbook at path.
//
// The workbook has a single sheet with a header row, and column widths
// sized to the content (capped at 50 characters).
func WriteReport(rows []Row, path string) error {
	if len(rows) == 0 {
		return errors.New("no rows to report")
	}
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()
	f.SetSheetName(f.GetSheetName(0), sheetName)

	widths := make([]int, len(reportHeader))
	setCell := func(row, col int, value interface{}) error {
		cell, err := excelize.CoordinatesToCellName(col+1, row+1)
		if err != nil {
			return err
		}
		if n := len(fmt.Sprint(value)); n > widths[col] {
			widths[col] = n
		}
		return f.SetCellValue(sheetName, cell, value)
	}

	for col, title := range reportHeader {
		if err := setCell(0, col, title); err != nil {
			return errors.Wrap(err, "failed to write header")
		}
	}
	for i, row := range rows {
		values := []interface{}{
			row.ResourceName,
			row.ResourceID,
			row.Partition,
			row.TotalGB,
			row.UsedGB,
			row.UsedPercent,
		}
		for col, value := range values {
			if err := setCell(i+1, col, value); err != nil {
				return errors.Wrapf(err, "failed to write row %d", i+1)
			}
		}
	}

	for col := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		width := widths[col] + 2
		if width > 50 {
			width = 50
		}
		if err := f.SetColWidth(sheetName, name, name, float64(width)); err != nil {
			return errors.Wrap(err, "failed to set column width")
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "failed to save %q", path)
	}
	return nil
}
