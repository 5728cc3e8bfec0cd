package parser

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var monthNames = map[string]int{
	"jan": 1, "januar": 1, "jän": 1, "jänner": 1,
	"feb": 2, "februar": 2,
	"mär": 3, "märz": 3, "mrz": 3, "maerz": 3,
	"apr": 4, "april": 4,
	"mai": 5,
	"jun": 6, "juni": 6,
	"jul": 7, "juli": 7,
	"aug": 8, "august": 8,
	"sep": 9, "sept": 9, "september": 9,
	"okt": 10, "oktober": 10,
	"nov": 11, "november": 11,
	"dez": 12, "dezember": 12,
}

// Header words for aggregate columns printed to the right of the months.
var totalColumnNames = map[string]bool{
	"gesamt":    true,
	"summe":     true,
	"kumuliert": true,
	"kum":       true,
	"jahr":      true,
	"total":     true,
}

// Column is one value column of the report table.
type Column struct {
	Month int // 1-12, zero for total columns
	Year  int // year printed in the header, zero if absent
	Total bool
	Label string
}

// MonthHeader maps value positions in a row to calendar months.
type MonthHeader struct {
	Columns []Column
	Start   int // token index of the first header token
	End     int // token index after the last header token
}

// Width is the number of values every data row must carry.
func (h *MonthHeader) Width() int {
	return len(h.Columns)
}

// Months returns the calendar months in column order, total columns excluded.
func (h *MonthHeader) Months() []int {
	months := make([]int, 0, len(h.Columns))
	for _, c := range h.Columns {
		if !c.Total {
			months = append(months, c.Month)
		}
	}
	return months
}

// Year returns the first year printed in the header, or zero.
func (h *MonthHeader) Year() int {
	for _, c := range h.Columns {
		if c.Year != 0 {
			return c.Year
		}
	}
	return 0
}

// ParseMonthToken recognizes German month column headings: "Jan", "Januar",
// "Mär.", "Mrz", "Sept", "Jan/2024", "Mai-24", and numeric "03/2024".
func ParseMonthToken(tok string) (month, year int, ok bool) {
	s := strings.ToLower(norm.NFC.String(strings.TrimSpace(tok)))
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return 0, 0, false
	}

	name, yr := s, ""
	if i := strings.IndexAny(s, "/-."); i > 0 {
		name, yr = s[:i], s[i+1:]
	}

	if yr != "" {
		y, ok := parseHeaderYear(yr)
		if !ok {
			return 0, 0, false
		}
		year = y
	}

	if m, found := monthNames[name]; found {
		return m, year, true
	}

	// Numeric months need a year to avoid reading row numbers as months.
	if yr != "" {
		if m, err := strconv.Atoi(name); err == nil && m >= 1 && m <= 12 && len(name) <= 2 {
			return m, year, true
		}
	}
	return 0, 0, false
}

func parseHeaderYear(s string) (int, bool) {
	switch len(s) {
	case 2:
		y, err := strconv.Atoi(s)
		if err != nil || y < 0 {
			return 0, false
		}
		return 2000 + y, true
	case 4:
		return parseYearToken(s)
	}
	return 0, false
}

// parseYearToken accepts four-digit years in a plausible reporting range.
func parseYearToken(s string) (int, bool) {
	if len(s) != 4 {
		return 0, false
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1990 || y > 2100 {
		return 0, false
	}
	return y, true
}

func isTotalColumn(s string) bool {
	return totalColumnNames[strings.ToLower(strings.TrimSuffix(s, "."))]
}

// headerRun is a candidate header found in the token stream.
type headerRun struct {
	columns []Column
	start   int
	end     int
	months  int
}

// scanRun reads a run of month and year tokens beginning at i.
// The run must begin with a month token.
func scanRun(tokens []Token, i int) headerRun {
	run := headerRun{start: i, end: i}
	for j := i; j < len(tokens); j++ {
		text := tokens[j].Text
		if m, y, ok := ParseMonthToken(text); ok {
			run.columns = append(run.columns, Column{Month: m, Year: y, Label: text})
			run.months++
			run.end = j + 1
			continue
		}
		// "Jan 2024" prints the year as its own token.
		if y, ok := parseYearToken(text); ok && run.months > 0 {
			last := &run.columns[len(run.columns)-1]
			if last.Year == 0 {
				last.Year = y
			}
			run.end = j + 1
			continue
		}
		break
	}

	// Aggregate columns are only recognized on the header's own line.
	for j := run.end; j < len(tokens) && run.months > 0; j++ {
		if tokens[j].LineStart || !isTotalColumn(tokens[j].Text) {
			break
		}
		run.columns = append(run.columns, Column{Total: true, Label: tokens[j].Text})
		run.end = j + 1
	}
	return run
}

// BuildHeader is the first parse phase. It picks the longest run of month
// tokens ahead of the first amount and returns the month mapping. Rows are
// consumed starting at header.End.
func BuildHeader(tokens []Token, looksLikeAmount func(string) bool) (*MonthHeader, error) {
	limit := len(tokens)
	for i, t := range tokens {
		if looksLikeAmount(t.Text) {
			limit = i
			break
		}
	}

	var best headerRun
	for i := 0; i < limit; i++ {
		if _, _, ok := ParseMonthToken(tokens[i].Text); !ok {
			continue
		}
		run := scanRun(tokens[:limit], i)
		if run.months > best.months {
			best = run
		}
		i = run.end - 1
	}

	if best.months == 0 {
		return nil, &StructuralError{Reason: "no month header found before the first amount"}
	}

	seen := make(map[int]bool, best.months)
	for _, c := range best.columns {
		if c.Total {
			continue
		}
		if seen[c.Month] {
			return nil, &StructuralError{
				Reason: fmt.Sprintf("month %02d appears twice in header", c.Month),
				Token:  best.start,
			}
		}
		seen[c.Month] = true
	}

	return &MonthHeader{Columns: best.columns, Start: best.start, End: best.end}, nil
}

// repeatsHeader reports whether the tokens at i repeat h (a page break
// reprinting the column headings) and returns the index after the repeat.
func (h *MonthHeader) repeatsHeader(tokens []Token, i int) (int, bool) {
	if _, _, ok := ParseMonthToken(tokens[i].Text); !ok {
		return i, false
	}
	run := scanRun(tokens, i)
	if len(run.columns) != len(h.Columns) {
		return i, false
	}
	for k, c := range run.columns {
		if c.Total != h.Columns[k].Total || c.Month != h.Columns[k].Month {
			return i, false
		}
	}
	return run.end, true
}
