package parser

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/dslipak/pdf"
)

// ErrNoTextLayer indicates a PDF without extractable text, typically a scan.
var ErrNoTextLayer = errors.New("PDF has no text layer")

// DefaultMaxPages bounds the documents accepted for extraction. BWA reports
// are a few pages long.
const DefaultMaxPages = 50

// PDFExtractor reads the text layer of a PDF report.
type PDFExtractor struct {
	maxPages int
}

// NewPDFExtractor creates an extractor that rejects documents longer than maxPages.
func NewPDFExtractor(maxPages int) *PDFExtractor {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &PDFExtractor{maxPages: maxPages}
}

// ExtractText returns the text of all pages, one line per printed row with
// cells separated by spaces. The PDF library panics on some malformed
// inputs; those panics are returned as errors.
func (e *PDFExtractor) ExtractText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("failed to read PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	n := r.NumPage()
	if n > e.maxPages {
		return "", fmt.Errorf("PDF has %d pages, limit is %d", n, e.maxPages)
	}

	var sb strings.Builder
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, row := range layoutRows(page.Content().Text) {
			sb.WriteString(row)
			sb.WriteByte('\n')
		}
	}

	text = sb.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrNoTextLayer
	}
	return text, nil
}

const (
	// rowTolerance is the largest baseline difference, in points, between
	// glyphs of the same printed row.
	rowTolerance = 2.0
	// wordGap is the horizontal gap, relative to the font size, that
	// separates two cells or words.
	wordGap = 0.2
)

// layoutRows rebuilds printed rows from positioned glyphs. Report
// generators place every cell with its own text position, so the glyph
// stream carries no separators between label and amounts.
func layoutRows(glyphs []pdf.Text) []string {
	glyphs = slices.Clone(glyphs)
	// Top of the page first; glyphs on one baseline keep content order.
	slices.SortStableFunc(glyphs, func(a, b pdf.Text) int {
		return cmp.Compare(b.Y, a.Y)
	})

	var rows []string
	for start := 0; start < len(glyphs); {
		end := start + 1
		for end < len(glyphs) && glyphs[start].Y-glyphs[end].Y <= rowTolerance {
			end++
		}
		if row := joinRow(glyphs[start:end]); row != "" {
			rows = append(rows, row)
		}
		start = end
	}
	return rows
}

func joinRow(row []pdf.Text) string {
	slices.SortStableFunc(row, func(a, b pdf.Text) int {
		return cmp.Compare(a.X, b.X)
	})

	var sb strings.Builder
	var prevEnd float64
	for i, g := range row {
		if i > 0 && g.X-prevEnd > wordGap*math.Max(g.FontSize, 1) {
			sb.WriteByte(' ')
		}
		sb.WriteString(g.S)
		if end := g.X + g.W; i == 0 || end > prevEnd {
			prevEnd = end
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
