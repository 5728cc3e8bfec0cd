// Package bwa holds the shared types of the BWA (Betriebswirtschaftliche
// Auswertung) pipeline: classifications, persisted periods and line items,
// and the transient records produced by the parser.
package bwa

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Classification is the derived type of a line item label.
type Classification string

const (
	Revenue Classification = "revenue"
	Expense Classification = "expense"
	Summary Classification = "summary"
	Other   Classification = "other"
)

// AllClassifications lists every classification in presentation order.
var AllClassifications = []Classification{Revenue, Expense, Summary, Other}

func (c Classification) String() string {
	return string(c)
}

// Valid reports whether c is one of the four known classifications.
func (c Classification) Valid() bool {
	switch c {
	case Revenue, Expense, Summary, Other:
		return true
	}
	return false
}

// DisplayName returns the German label used in reports and exports.
func (c Classification) DisplayName() string {
	switch c {
	case Revenue:
		return "Einnahmen"
	case Expense:
		return "Ausgaben"
	case Summary:
		return "Summen"
	default:
		return "Sonstiges"
	}
}

// ParseClassification accepts both the stored code and the German display name.
func ParseClassification(s string) (Classification, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, c := range AllClassifications {
		if v == string(c) || v == strings.ToLower(c.DisplayName()) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown classification %q", s)
}

// Period is one imported reporting month. At most one exists per (Year, Month).
type Period struct {
	ID         uuid.UUID `json:"id"`
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	SourceFile *string   `json:"source_file,omitempty"`
	ImportedAt time.Time `json:"imported_at"`
	ItemCount  int       `json:"item_count"`
}

// LineItem is one category's amount for one month within a Period.
// Year and Month are denormalized from the owning Period.
type LineItem struct {
	ID             uuid.UUID       `json:"id"`
	PeriodID       uuid.UUID       `json:"period_id"`
	Category       string          `json:"category"`
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	Amount         decimal.Decimal `json:"amount"`
	Classification Classification  `json:"classification"`
	Group          *string         `json:"group,omitempty"`
}

// ParsedRecord is the parser's output for one (label, month) cell.
// It is never stored on its own.
type ParsedRecord struct {
	Category       string
	Month          int
	Year           int
	Amount         decimal.Decimal
	Classification Classification
	Group          string
}

// MonthKey identifies a reporting month.
type MonthKey struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%02d/%d", k.Month, k.Year)
}

// Before orders month keys chronologically.
func (k MonthKey) Before(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// ValidMonth reports whether m is a calendar month number.
func ValidMonth(m int) bool {
	return m >= 1 && m <= 12
}
