// Package export renders pivots and forecasts as XLSX workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/dss-dashboard/backend/internal/forecast"
	"github.com/dss-dashboard/backend/internal/olap"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}) error {
	if sheet != "Sheet1" {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}

	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r+2, err)
		}
	}

	if len(headers) > 0 {
		last, _ := excelize.ColumnNumberToName(len(headers))
		if err := f.SetColWidth(sheet, "A", last, 16); err != nil {
			return fmt.Errorf("failed to size columns: %w", err)
		}
	}
	return nil
}

func finish(f *excelize.File, first string, w io.Writer) error {
	if first != "Sheet1" {
		idx, err := f.GetSheetIndex(first)
		if err != nil {
			return err
		}
		f.SetActiveSheet(idx)
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("failed to drop default sheet: %w", err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// PivotWorkbook writes one sheet with row labels down the first column and a
// cell per (row, column) member. Missing combinations are left blank.
func PivotWorkbook(w io.Writer, p *olap.PivotTable) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Pivot"
	headers := append([]string{p.RowDimension}, p.Columns...)
	rows := make([][]interface{}, 0, len(p.Rows))
	for _, r := range p.Rows {
		row := make([]interface{}, 0, len(p.Columns)+1)
		row = append(row, r)
		for _, c := range p.Columns {
			if v, ok := p.Cell(r, c); ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		rows = append(rows, row)
	}

	if err := writeSheet(f, sheet, headers, rows); err != nil {
		return err
	}
	return finish(f, sheet, w)
}

// ForecastWorkbook writes the daily curve and a summary sheet.
func ForecastWorkbook(w io.Writer, res *forecast.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	curve := make([][]interface{}, 0, len(res.Curve.Points))
	for _, p := range res.Curve.Points {
		curve = append(curve, []interface{}{p.Day, p.Density, p.Lower, p.Upper, p.Cumulative})
	}
	if err := writeSheet(f, "Curve", []string{"day", "density", "lower", "upper", "cumulative"}, curve); err != nil {
		return err
	}

	summary := [][]interface{}{
		{"story_points", res.Input.StoryPoints},
		{"duration_days", res.Input.DurationDays},
		{"team_size", res.Input.TeamSize},
		{"experience", res.Input.Experience.String()},
		{"complexity", res.Input.Complexity.String()},
		{"total_defects", res.Estimate.Total},
		{"empirical_estimate", res.Estimate.Empirical},
		{"monte_carlo_estimate", res.Estimate.MonteCarlo},
		{"policy", res.Estimate.Policy},
		{"sigma", res.Sigma},
		{"peak_day", res.Curve.PeakDay},
		{"peak_outside_window", res.Curve.PeakOutsideWindow},
		{"risk", string(res.Risk.Level)},
		{"defects_per_month", res.Risk.DefectsPerMonth},
		{"qa_hours", res.QA.TotalHours},
		{"qa_engineers", res.QA.RecommendedEngineers},
		{"confidence", res.Confidence.Score},
		{"confidence_label", res.Confidence.Label},
	}
	for _, s := range res.Severity {
		summary = append(summary, []interface{}{"defects_" + string(s.Severity), s.Count})
	}
	if err := writeSheet(f, "Summary", []string{"field", "value"}, summary); err != nil {
		return err
	}
	return finish(f, "Curve", w)
}
