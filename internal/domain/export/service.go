// Package export selects imported line items and serializes them as CSV
// (standard or German conventions) or XLSX.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
)

var (
	ErrInvalidRange = errors.New("start date is after end date")
	ErrInvalidType  = errors.New("unknown line item type")
)

// DefaultTypes are exported when a filter names none.
var DefaultTypes = []bwa.Classification{bwa.Revenue, bwa.Expense}

// ExportFilter selects line items by month range and type. Only the year
// and month of the dates are used; nil bounds are open.
type ExportFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Types     []bwa.Classification
}

func (f ExportFilter) normalize() (ExportFilter, monthRange, error) {
	rng := monthRange{From: 0, To: 1 << 30}
	if f.StartDate != nil {
		rng.From = monthOrdinal(*f.StartDate)
	}
	if f.EndDate != nil {
		rng.To = monthOrdinal(*f.EndDate)
	}
	if rng.From > rng.To {
		return f, rng, ErrInvalidRange
	}

	if len(f.Types) == 0 {
		f.Types = DefaultTypes
	}
	seen := make(map[bwa.Classification]bool, len(f.Types))
	types := make([]bwa.Classification, 0, len(f.Types))
	for _, t := range f.Types {
		if !t.Valid() {
			return f, rng, fmt.Errorf("%w: %q", ErrInvalidType, t)
		}
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	f.Types = types
	return f, rng, nil
}

func monthOrdinal(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

// Service handles export business logic
type Service struct {
	repo   ExportRepository
	logger *slog.Logger
}

// NewService creates a new export service
func NewService(repo ExportRepository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// QueryForExport returns the matching line items ordered by year, month,
// classification, and category.
func (s *Service) QueryForExport(ctx context.Context, filter ExportFilter) ([]bwa.LineItem, error) {
	filter, rng, err := filter.normalize()
	if err != nil {
		return nil, err
	}
	items, err := s.repo.LineItems(ctx, filter.Types, rng)
	if err != nil {
		s.logger.Error("failed to query export items", "error", err)
		return nil, err
	}
	return items, nil
}

// CountForExport estimates the number of rows an export would contain.
func (s *Service) CountForExport(ctx context.Context, filter ExportFilter) (int, error) {
	filter, rng, err := filter.normalize()
	if err != nil {
		return 0, err
	}
	return s.repo.CountLineItems(ctx, filter.Types, rng)
}

// Export queries and writes the items in format to w. It returns the
// suggested file name and the number of rows written.
func (s *Service) Export(ctx context.Context, filter ExportFilter, format Format, w io.Writer) (string, int, error) {
	if !format.Valid() {
		return "", 0, fmt.Errorf("unknown export format %q", format)
	}

	items, err := s.QueryForExport(ctx, filter)
	if err != nil {
		return "", 0, err
	}

	if err := Write(w, format, items); err != nil {
		return "", 0, err
	}

	name := FileName(filter, items, format)
	s.logger.Info("export written",
		slog.String("format", string(format)),
		slog.Int("rows", len(items)),
		slog.String("file", name),
	)
	return name, len(items), nil
}
