// Package export writes pricing results to spreadsheets.
package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/comp-pricer/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

var resultHeader = []string{
	"Result ID", "Request ID", "Job Title", "Location", "Version", "Latest",
	"Target Salary", "Confidence", "Confidence Level", "Calculated At", "Expires At",
}

// WriteResults writes one row per result to a "Results" sheet.
func WriteResults(w io.Writer, results []model.PricingResultSummary) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Results")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range resultHeader {
		header.AddCell().SetString(h)
	}

	for _, r := range results {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ResultID)
		row.AddCell().SetString(r.RequestID)
		row.AddCell().SetString(r.JobTitle)
		row.AddCell().SetString(r.LocationText)
		row.AddCell().SetInt(r.Version)
		row.AddCell().SetBool(r.IsLatest)
		row.AddCell().SetFloatWithFormat(r.TargetSalary, "#,##0")
		row.AddCell().SetFloatWithFormat(r.ConfidenceScore, "0.0")
		row.AddCell().SetString(string(r.ConfidenceLevel))
		row.AddCell().SetString(r.CalculatedAt.UTC().Format(timeLayout))
		row.AddCell().SetString(r.ExpiresAt.UTC().Format(timeLayout))
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}
