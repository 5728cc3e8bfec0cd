// Package parser turns the flattened text layer of a BWA report into
// per-month line item records. Parsing runs in two phases: BuildHeader
// derives the month columns, then rows are consumed strictly through that
// mapping.
package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/internal/domain/categorization"
	"github.com/FACorreiaa/bwa-insights/pkg/money"
)

// totalCostsKeyword marks the summary row used for the expense cross-check.
const totalCostsKeyword = "gesamtkosten"

// ReasonNoYear is the StructuralError reason when neither the caller nor
// the header supplies a reporting year.
const ReasonNoYear = "reporting year unknown: no year given and none printed in the header"

// StructuralError means the table layout could not be understood.
// The whole document is rejected.
type StructuralError struct {
	Reason string
	Token  int
}

func (e *StructuralError) Error() string {
	return "invalid BWA layout: " + e.Reason
}

// ValidationWarning is a non-fatal cross-check mismatch between the summed
// expense lines and the report's own total costs row.
type ValidationWarning struct {
	Month    int             `json:"month"`
	Label    string          `json:"label"`
	Computed decimal.Decimal `json:"computed"`
	Reported decimal.Decimal `json:"reported"`
}

func (w ValidationWarning) Difference() decimal.Decimal {
	return w.Computed.Abs().Sub(w.Reported.Abs()).Abs()
}

func (w ValidationWarning) Message() string {
	return fmt.Sprintf("%02d: %s weicht ab (berechnet %s, laut Bericht %s)",
		w.Month, w.Label, money.Display(w.Computed.Abs()), money.Display(w.Reported.Abs()))
}

// Classifier maps a line label to its classification.
type Classifier interface {
	Classify(label string) bwa.Classification
}

// Config holds the injected parsing conventions.
type Config struct {
	Locale     money.Locale
	Classifier Classifier
	// Tolerance is the largest total costs difference accepted without a warning.
	Tolerance decimal.Decimal
}

// DefaultConfig returns the configuration for German BWA reports.
func DefaultConfig() Config {
	return Config{
		Locale:     money.German,
		Classifier: categorization.NewDefaultEngine(),
		Tolerance:  decimal.New(5, -2),
	}
}

// ParseResult is the outcome of parsing one document.
type ParseResult struct {
	Header *MonthHeader
	// Records holds every non-summary cell in document order.
	Records []bwa.ParsedRecord
	// Summaries holds summary/total rows, kept for cross-checks and storage.
	Summaries []bwa.ParsedRecord
	// Totals sums non-summary amounts per classification.
	Totals      map[bwa.Classification]decimal.Decimal
	MonthTotals map[bwa.MonthKey]map[bwa.Classification]decimal.Decimal
	Warnings    []ValidationWarning
}

// Months returns the distinct reporting months in ascending order.
func (r *ParseResult) Months() []bwa.MonthKey {
	seen := make(map[bwa.MonthKey]bool)
	var keys []bwa.MonthKey
	for _, list := range [][]bwa.ParsedRecord{r.Records, r.Summaries} {
		for _, rec := range list {
			k := bwa.MonthKey{Year: rec.Year, Month: rec.Month}
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

// ByMonth groups all records, summaries included, by reporting month.
func (r *ParseResult) ByMonth() map[bwa.MonthKey][]bwa.ParsedRecord {
	out := make(map[bwa.MonthKey][]bwa.ParsedRecord)
	for _, list := range [][]bwa.ParsedRecord{r.Records, r.Summaries} {
		for _, rec := range list {
			k := bwa.MonthKey{Year: rec.Year, Month: rec.Month}
			out[k] = append(out[k], rec)
		}
	}
	return out
}

// Parser parses BWA report text. It is stateless between calls.
type Parser struct {
	config Config
}

// NewParser creates a parser. Missing fields fall back to DefaultConfig.
func NewParser(config Config) *Parser {
	def := DefaultConfig()
	if config.Locale.DecimalSep == "" {
		config.Locale = def.Locale
	}
	if config.Classifier == nil {
		config.Classifier = def.Classifier
	}
	if config.Tolerance.IsZero() {
		config.Tolerance = def.Tolerance
	}
	return &Parser{config: config}
}

// Parse extracts records from text. year is the reporting year; when zero
// the year printed in the header is used. Any malformed amount or row
// rejects the whole document.
func (p *Parser) Parse(text string, year int) (*ParseResult, error) {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, &StructuralError{Reason: "document contains no text"}
	}

	header, err := BuildHeader(tokens, p.config.Locale.LooksLikeAmount)
	if err != nil {
		return nil, err
	}

	years, err := columnYears(header, year)
	if err != nil {
		return nil, err
	}

	rp := &rowParser{
		parser: p,
		header: header,
		years:  years,
		result: &ParseResult{
			Header:      header,
			Totals:      make(map[bwa.Classification]decimal.Decimal),
			MonthTotals: make(map[bwa.MonthKey]map[bwa.Classification]decimal.Decimal),
		},
	}
	if err := rp.consume(tokens[header.End:]); err != nil {
		return nil, err
	}

	if len(rp.result.Records) == 0 && len(rp.result.Summaries) == 0 {
		return nil, &StructuralError{Reason: "no line items found below the month header"}
	}
	return rp.result, nil
}

// columnYears resolves the year of every column. An explicit year wins over
// years printed in the header.
func columnYears(h *MonthHeader, year int) ([]int, error) {
	years := make([]int, len(h.Columns))
	fallback := h.Year()
	for i, c := range h.Columns {
		switch {
		case year != 0:
			years[i] = year
		case c.Year != 0:
			years[i] = c.Year
			fallback = c.Year
		default:
			years[i] = fallback
		}
		if years[i] == 0 && !c.Total {
			return nil, &StructuralError{Reason: ReasonNoYear}
		}
	}
	return years, nil
}

// ============================================================================
// Row consumption
// ============================================================================

type rowParser struct {
	parser *Parser
	header *MonthHeader
	years  []int
	result *ParseResult

	label  []string
	values []decimal.Decimal

	// index into result.Records of the first row not yet closed by a summary
	openBlock int
}

func (rp *rowParser) consume(tokens []Token) error {
	width := rp.header.Width()

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if tok.LineStart {
			if len(rp.values) > 0 {
				return rp.shortRow(width)
			}
			// Label-only lines are titles, footers, or page numbers.
			rp.label = rp.label[:0]
		}

		if isNoise(tok.Text) {
			continue
		}

		if rp.parser.config.Locale.LooksLikeAmount(tok.Text) {
			if len(rp.label) == 0 {
				return &StructuralError{
					Reason: fmt.Sprintf("amount %q has no line label", tok.Text),
					Token:  tok.Index,
				}
			}
			d, err := rp.parser.config.Locale.Parse(tok.Text)
			if err != nil {
				return fmt.Errorf("line %q, column %d: %w", rp.currentLabel(), len(rp.values)+1, err)
			}
			rp.values = append(rp.values, d)
			if len(rp.values) == width {
				rp.emitRow()
			}
			continue
		}

		if len(rp.values) > 0 {
			return rp.shortRow(width)
		}

		if next, ok := rp.header.repeatsHeader(tokens, i); ok {
			rp.label = rp.label[:0]
			i = next - 1
			continue
		}

		rp.label = append(rp.label, tok.Text)
	}

	if len(rp.values) > 0 {
		return rp.shortRow(width)
	}
	return nil
}

func (rp *rowParser) currentLabel() string {
	return strings.Join(rp.label, " ")
}

func (rp *rowParser) shortRow(width int) error {
	return &StructuralError{
		Reason: fmt.Sprintf("line %q has %d values, header has %d columns", rp.currentLabel(), len(rp.values), width),
	}
}

func (rp *rowParser) emitRow() {
	label := rp.currentLabel()
	class := rp.parser.config.Classifier.Classify(label)
	res := rp.result

	for col, c := range rp.header.Columns {
		if c.Total {
			continue
		}
		rec := bwa.ParsedRecord{
			Category:       label,
			Month:          c.Month,
			Year:           rp.years[col],
			Amount:         rp.values[col],
			Classification: class,
		}
		if class == bwa.Summary {
			res.Summaries = append(res.Summaries, rec)
			continue
		}

		res.Records = append(res.Records, rec)
		res.Totals[class] = res.Totals[class].Add(rec.Amount)
		key := bwa.MonthKey{Year: rec.Year, Month: rec.Month}
		if res.MonthTotals[key] == nil {
			res.MonthTotals[key] = make(map[bwa.Classification]decimal.Decimal)
		}
		res.MonthTotals[key][class] = res.MonthTotals[key][class].Add(rec.Amount)
	}

	if class == bwa.Summary {
		rp.closeBlock(label)
		if strings.Contains(strings.ToLower(label), totalCostsKeyword) {
			rp.crossCheck(label)
		}
	}

	rp.label = rp.label[:0]
	rp.values = rp.values[:0]
}

// closeBlock labels every row since the previous summary with this summary.
func (rp *rowParser) closeBlock(label string) {
	for i := rp.openBlock; i < len(rp.result.Records); i++ {
		rp.result.Records[i].Group = label
	}
	rp.openBlock = len(rp.result.Records)
}

// crossCheck compares the expense total accumulated so far with the total
// costs row just emitted. Signs differ between reports, so magnitudes are
// compared.
func (rp *rowParser) crossCheck(label string) {
	res := rp.result
	for col, c := range rp.header.Columns {
		if c.Total {
			continue
		}
		key := bwa.MonthKey{Year: rp.years[col], Month: c.Month}
		computed := res.MonthTotals[key][bwa.Expense]
		reported := rp.values[col]

		w := ValidationWarning{Month: c.Month, Label: label, Computed: computed, Reported: reported}
		if w.Difference().GreaterThan(rp.parser.config.Tolerance) {
			res.Warnings = append(res.Warnings, w)
		}
	}
}
