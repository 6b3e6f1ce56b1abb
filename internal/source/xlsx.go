package source

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/comp-pricer/internal/model"
)

// XLSXOptions configures LoadXLSXProvider.
type XLSXOptions struct {
	SheetName string // default: first sheet
}

// Columns recognised in a survey workbook header. p10..p90 and sample_size
// are required.
var xlsxColumns = []string{
	"job_title", "location", "job_code",
	"p10", "p25", "p50", "p75", "p90",
	"sample_size", "age_in_days", "match_quality",
}

// LoadXLSXProvider reads a salary survey workbook, one percentile summary per
// row, and serves it like a fixture file. The first row is the header.
func LoadXLSXProvider(name string, typ model.SourceType, path string, opts XLSXOptions) (*FileProvider, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open workbook %s", path)
	}
	sheet, err := workbookSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("source: workbook %s is empty", path)
	}

	cols := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		cols[strings.ToLower(strings.TrimSpace(cell.String()))] = i
	}
	for _, c := range []string{"p10", "p25", "p50", "p75", "p90", "sample_size"} {
		if _, ok := cols[c]; !ok {
			return nil, eris.Errorf("source: workbook %s: missing column %q", path, c)
		}
	}

	var entries []FixtureEntry
	for i, row := range sheet.Rows[1:] {
		vals := rowValues(row, cols)
		if vals["p50"] == "" {
			continue
		}
		e, err := xlsxEntry(name, typ, vals)
		if err != nil {
			return nil, eris.Wrapf(err, "source: workbook %s row %d", path, i+2)
		}
		entries = append(entries, e)
	}
	return NewFileProvider(name, typ, entries), nil
}

func workbookSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("source: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("source: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowValues(row *xlsx.Row, cols map[string]int) map[string]string {
	vals := make(map[string]string, len(xlsxColumns))
	for _, c := range xlsxColumns {
		idx, ok := cols[c]
		if !ok || idx >= len(row.Cells) {
			continue
		}
		vals[c] = strings.TrimSpace(row.Cells[idx].String())
	}
	return vals
}

func xlsxEntry(name string, typ model.SourceType, vals map[string]string) (FixtureEntry, error) {
	num := func(key string) (float64, error) {
		if vals[key] == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(vals[key], ",", ""), 64)
		if err != nil {
			return 0, eris.Wrapf(err, "column %s", key)
		}
		return v, nil
	}

	var p [5]float64
	for i, key := range []string{"p10", "p25", "p50", "p75", "p90"} {
		v, err := num(key)
		if err != nil {
			return FixtureEntry{}, err
		}
		p[i] = v
	}
	size, err := num("sample_size")
	if err != nil {
		return FixtureEntry{}, err
	}
	age, err := num("age_in_days")
	if err != nil {
		return FixtureEntry{}, err
	}
	match, err := num("match_quality")
	if err != nil {
		return FixtureEntry{}, err
	}
	if vals["match_quality"] == "" {
		match = 1
	}

	set := model.NewSummary(name, typ, model.PercentileSummary{
		P10: p[0], P25: p[1], P50: p[2], P75: p[3], P90: p[4],
	}, int(size), age, match)
	set.JobCode = vals["job_code"]
	return FixtureEntry{
		JobTitle:             vals["job_title"],
		Location:             vals["location"],
		SourceObservationSet: set,
	}, nil
}
