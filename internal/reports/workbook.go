package reports

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	SheetName           = "Registry Stats"
	WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Row is one metric line of the workbook
type Row struct {
	Registry string
	Metric   string
	Value    uint64
}

// Rows flattens a snapshot in workbook order
func (s *Snapshot) Rows() []Row {
	return []Row{
		{"issuance", "total_credits_issued", s.TotalCreditsIssued},
		{"marketplace", "volume", s.Marketplace.Volume},
		{"marketplace", "volume_micro", s.Marketplace.VolumeMicro},
		{"marketplace", "trades", s.Marketplace.Trades},
		{"marketplace", "fee_bps", s.Marketplace.FeeBps},
		{"retirement", "total_tonnes_retired", s.Retirement.TotalTonnesRetired},
		{"retirement", "total_retirements", s.Retirement.TotalRetirements},
	}
}

// RenderWorkbook writes the snapshot as a one-sheet xlsx file
func RenderWorkbook(s *Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"228B22"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetCellValue(SheetName, "A1", "Snapshot taken at"); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(SheetName, "B1", s.TakenAt.Format("2006-01-02 15:04:05 UTC")); err != nil {
		return nil, err
	}

	columns := []string{"Registry", "Metric", "Value"}
	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		if err := f.SetCellValue(SheetName, cell, col); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(SheetName, "A3", "C3", header); err != nil {
		return nil, err
	}

	for i, row := range s.Rows() {
		r := i + 4
		values := []any{row.Registry, row.Metric, row.Value}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, r)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return nil, fmt.Errorf("failed to set %s: %w", cell, err)
			}
		}
	}

	if err := f.SetColWidth(SheetName, "A", "A", 20); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(SheetName, "B", "C", 24); err != nil {
		return nil, err
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      3,
		TopLeftCell: "A4",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
