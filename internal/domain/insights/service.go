// Package insights answers read-path questions over imported BWA line items:
// per-category trends, monthly results, and category lookup.
package insights

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/internal/domain/categorization"
	"github.com/FACorreiaa/bwa-insights/pkg/money"
)

var tracer = otel.Tracer("github.com/FACorreiaa/bwa-insights/internal/domain/insights")

const (
	// searchThreshold is the minimum fuzzy score for SearchCategories.
	searchThreshold    = 40
	defaultSearchLimit = 10
)

// TrendFilter restricts a trend query. Nil Year and empty Categories mean all.
type TrendFilter struct {
	Year       *int
	Categories []string
}

// TrendPoint is the summed amount of one category in one month.
type TrendPoint struct {
	Year   int             `json:"year"`
	Month  int             `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// TrendSeries is the chronological series of one category.
type TrendSeries struct {
	Category       string             `json:"category"`
	Classification bwa.Classification `json:"classification"`
	Points         []TrendPoint       `json:"points"`
}

// TrendResult holds the sorted category names and one series per
// (category, classification).
type TrendResult struct {
	Categories []string      `json:"categories"`
	Series     []TrendSeries `json:"series"`
}

// MonthlyTotal summarizes one month. Result is revenue minus expenses.
type MonthlyTotal struct {
	Year    int             `json:"year"`
	Month   int             `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
	Expense decimal.Decimal `json:"expense"`
	Other   decimal.Decimal `json:"other"`
	Result  decimal.Decimal `json:"result"`
}

// CategorySummary describes one category across the filtered months.
type CategorySummary struct {
	Category       string             `json:"category"`
	Classification bwa.Classification `json:"classification"`
	Total          decimal.Decimal    `json:"total"`
	Months         int                `json:"months"`
}

// Service handles insights business logic
type Service struct {
	repo   InsightsRepository
	logger *slog.Logger
}

// NewService creates a new insights service
func NewService(repo InsightsRepository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// QueryTrends returns per-category series ordered by year and month.
// Summary rows never appear. Filters that match nothing give an empty
// result, not an error.
func (s *Service) QueryTrends(ctx context.Context, filter TrendFilter) (*TrendResult, error) {
	ctx, span := tracer.Start(ctx, "insights.QueryTrends")
	defer span.End()

	rows, err := s.repo.TrendRows(ctx, filter.Year, cleanCategories(filter.Categories))
	if err != nil {
		s.logger.Error("failed to query trends", "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("bwa.rows", len(rows)))

	return buildTrends(rows), nil
}

func buildTrends(rows []TrendRow) *TrendResult {
	type seriesKey struct {
		category string
		class    bwa.Classification
	}

	bySeries := make(map[seriesKey]*TrendSeries)
	pointIndex := make(map[seriesKey]map[bwa.MonthKey]int)
	names := make(map[string]bool)
	for _, row := range rows {
		// Summary rows are filtered in SQL; this keeps the guarantee for any repository.
		if row.Classification == bwa.Summary {
			continue
		}
		key := seriesKey{row.Category, row.Classification}
		series, ok := bySeries[key]
		if !ok {
			series = &TrendSeries{Category: row.Category, Classification: row.Classification}
			bySeries[key] = series
			pointIndex[key] = make(map[bwa.MonthKey]int)
		}
		names[row.Category] = true

		amount := money.FromMinorUnits(row.AmountMinor, 2)
		month := bwa.MonthKey{Year: row.Year, Month: row.Month}
		// Rows sharing a key are summed, never overwritten.
		if i, ok := pointIndex[key][month]; ok {
			series.Points[i].Amount = series.Points[i].Amount.Add(amount)
			continue
		}
		pointIndex[key][month] = len(series.Points)
		series.Points = append(series.Points, TrendPoint{Year: row.Year, Month: row.Month, Amount: amount})
	}

	result := &TrendResult{Categories: make([]string, 0, len(names)), Series: make([]TrendSeries, 0, len(bySeries))}
	for name := range names {
		result.Categories = append(result.Categories, name)
	}
	sort.Strings(result.Categories)

	for _, series := range bySeries {
		sort.SliceStable(series.Points, func(i, j int) bool {
			a, b := series.Points[i], series.Points[j]
			return bwa.MonthKey{Year: a.Year, Month: a.Month}.Before(bwa.MonthKey{Year: b.Year, Month: b.Month})
		})
		result.Series = append(result.Series, *series)
	}
	sort.Slice(result.Series, func(i, j int) bool {
		if result.Series[i].Category != result.Series[j].Category {
			return result.Series[i].Category < result.Series[j].Category
		}
		return result.Series[i].Classification < result.Series[j].Classification
	})
	return result
}

func cleanCategories(categories []string) []string {
	seen := make(map[string]bool, len(categories))
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// MonthlyTotals returns revenue, expense, and result per month.
func (s *Service) MonthlyTotals(ctx context.Context, year *int) ([]MonthlyTotal, error) {
	ctx, span := tracer.Start(ctx, "insights.MonthlyTotals")
	defer span.End()

	rows, err := s.repo.MonthlyClassTotals(ctx, year)
	if err != nil {
		s.logger.Error("failed to query monthly totals", "error", err)
		return nil, err
	}

	index := make(map[bwa.MonthKey]*MonthlyTotal)
	var keys []bwa.MonthKey
	for _, row := range rows {
		key := bwa.MonthKey{Year: row.Year, Month: row.Month}
		total, ok := index[key]
		if !ok {
			total = &MonthlyTotal{Year: row.Year, Month: row.Month}
			index[key] = total
			keys = append(keys, key)
		}
		amount := money.FromMinorUnits(row.AmountMinor, 2)
		switch row.Classification {
		case bwa.Revenue:
			total.Revenue = total.Revenue.Add(amount)
		case bwa.Expense:
			total.Expense = total.Expense.Add(amount)
		case bwa.Other:
			total.Other = total.Other.Add(amount)
		}
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	totals := make([]MonthlyTotal, 0, len(keys))
	for _, key := range keys {
		t := index[key]
		// Costs are printed positive in most reports and negative in some.
		t.Result = t.Revenue.Sub(t.Expense.Abs())
		totals = append(totals, *t)
	}
	return totals, nil
}

// ListCategories returns category labels sorted by name.
func (s *Service) ListCategories(ctx context.Context, year *int) ([]CategorySummary, error) {
	rows, err := s.repo.Categories(ctx, year)
	if err != nil {
		s.logger.Error("failed to list categories", "error", err)
		return nil, err
	}

	out := make([]CategorySummary, 0, len(rows))
	for _, row := range rows {
		if row.Classification == bwa.Summary {
			continue
		}
		out = append(out, CategorySummary{
			Category:       row.Category,
			Classification: row.Classification,
			Total:          money.FromMinorUnits(row.TotalMinor, 2),
			Months:         row.Months,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// SearchCategories fuzzy-matches query against the known category labels.
func (s *Service) SearchCategories(ctx context.Context, query string, year *int, limit int) ([]categorization.CategoryMatch, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	categories, err := s.ListCategories(ctx, year)
	if err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(categories))
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		if !seen[c.Category] {
			seen[c.Category] = true
			labels = append(labels, c.Category)
		}
	}
	return categorization.RankCategories(query, labels, searchThreshold, limit), nil
}

// ListYears returns the years with imported data.
func (s *Service) ListYears(ctx context.Context) ([]int, error) {
	return s.repo.Years(ctx)
}
