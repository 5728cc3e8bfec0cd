package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/pkg/money"
)

// Format selects the export serialization.
type Format string

const (
	// FormatStandard is comma separated with dot decimals and type codes.
	FormatStandard Format = "standard"
	// FormatGerman is semicolon separated with "1.234,56" amounts and German
	// type names, as German Excel expects.
	FormatGerman Format = "german"
	FormatXLSX   Format = "xlsx"
)

const (
	sheetName    = "BWA"
	amountNumFmt = "#,##0.00"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseFormat maps a query value to a Format. Empty means standard.
func ParseFormat(s string) (Format, error) {
	f := Format(s)
	if s == "" {
		f = FormatStandard
	}
	if !f.Valid() {
		return "", fmt.Errorf("unknown export format %q", s)
	}
	return f, nil
}

func (f Format) Valid() bool {
	switch f {
	case FormatStandard, FormatGerman, FormatXLSX:
		return true
	}
	return false
}

func (f Format) Extension() string {
	if f == FormatXLSX {
		return "xlsx"
	}
	return "csv"
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// exportRow is one output line.
type exportRow struct {
	Year     int    `csv:"Jahr"`
	Month    int    `csv:"Monat"`
	Category string `csv:"Kategorie"`
	Type     string `csv:"Typ"`
	Amount   string `csv:"Betrag"`
	Group    string `csv:"Gruppenkategorie"`
}

var header = []string{"Jahr", "Monat", "Kategorie", "Typ", "Betrag", "Gruppenkategorie"}

func toRows(items []bwa.LineItem, format Format) []exportRow {
	rows := make([]exportRow, 0, len(items))
	for _, it := range items {
		row := exportRow{
			Year:     it.Year,
			Month:    it.Month,
			Category: it.Category,
		}
		if format == FormatGerman {
			row.Type = it.Classification.DisplayName()
			row.Amount = money.German.Format(it.Amount)
		} else {
			row.Type = string(it.Classification)
			row.Amount = it.Amount.StringFixed(2)
		}
		if it.Group != nil {
			row.Group = *it.Group
		}
		rows = append(rows, row)
	}
	return rows
}

// Write serializes items to w. CSV output starts with a UTF-8 BOM so that
// spreadsheet programs detect the encoding of umlauts.
func Write(w io.Writer, format Format, items []bwa.LineItem) error {
	switch format {
	case FormatStandard, FormatGerman:
		return writeCSV(w, format, items)
	case FormatXLSX:
		return writeXLSX(w, items)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func writeCSV(w io.Writer, format Format, items []bwa.LineItem) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	if format == FormatGerman {
		cw.Comma = ';'
	}
	out := gocsv.NewSafeCSVWriter(cw)

	rows := toRows(items, format)
	if len(rows) == 0 {
		// Header only.
		if err := out.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		out.Flush()
		return out.Error()
	}

	if err := gocsv.MarshalCSV(rows, out); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, items []bwa.LineItem) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &headerRow); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, it := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		amount, _ := it.Amount.Round(2).Float64()
		group := ""
		if it.Group != nil {
			group = *it.Group
		}
		row := []any{it.Year, it.Month, it.Category, it.Classification.DisplayName(), amount, group}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	numFmt := amountNumFmt
	style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}
	if len(items) > 0 {
		last, _ := excelize.CoordinatesToCellName(5, len(items)+1)
		if err := f.SetCellStyle(sheetName, "E2", last, style); err != nil {
			return fmt.Errorf("failed to style amounts: %w", err)
		}
	}
	if err := f.SetColWidth(sheetName, "C", "C", 36); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "F", "F", 24); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// FileName builds "bwa_export_<from>_<to>.<ext>" with YYYY-MM bounds taken
// from the filter, or from the exported items when the filter is open.
func FileName(filter ExportFilter, items []bwa.LineItem, format Format) string {
	from, to := "", ""
	if filter.StartDate != nil {
		from = filter.StartDate.Format("2006-01")
	}
	if filter.EndDate != nil {
		to = filter.EndDate.Format("2006-01")
	}
	if len(items) > 0 {
		first, last := items[0], items[len(items)-1]
		if from == "" {
			from = monthLabel(first.Year, first.Month)
		}
		if to == "" {
			to = monthLabel(last.Year, last.Month)
		}
	}
	if from == "" {
		from = "alle"
	}
	if to == "" {
		to = "alle"
	}
	return fmt.Sprintf("bwa_export_%s_%s.%s", from, to, format.Extension())
}

func monthLabel(year, month int) string {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}
