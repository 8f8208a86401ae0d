// Package export renders statistics tables as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"shiftbook/internal/domain"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Stats"

// Headers names the columns of a statistics table.
var Headers = []string{"Email", "Hours worked", "Hours booked", "Shifts booked", "Cancellations"}

// Values flattens rows in Headers order.
func Values(rows []domain.StatsRow) [][]interface{} {
	out := make([][]interface{}, 0, len(rows))
	for _, r := range rows {
		out = append(out, []interface{}{r.Email, r.HoursWorked, r.HoursBooked, r.ShiftsBooked, r.Cancellations})
	}
	return out
}

// Build lays out rows under a period title and a header line.
func Build(period string, rows []domain.StatsRow) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", "Period: "+period)
	_ = f.MergeCell(sheetName, "A1", "E1")
	title, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", title)

	head, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, head)
	}

	for i, values := range Values(rows) {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", i, err)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 32)
	_ = f.SetColWidth(sheetName, "B", "E", 16)
	return f, nil
}

// Write streams the workbook to w.
func Write(w io.Writer, period string, rows []domain.StatsRow) error {
	f, err := Build(period, rows)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

// Save writes stats_<period>.xlsx into dir and returns its path.
func Save(dir, period string, rows []domain.StatsRow) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	f, err := Build(period, rows)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, fmt.Sprintf("stats_%s.xlsx", period))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}
