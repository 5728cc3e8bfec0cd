package insights

import (
	"context"
	"fmt"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/pkg/db"
)

// TrendRow is one summed (category, classification, year, month) cell.
type TrendRow struct {
	Category       string
	Classification bwa.Classification
	Year           int
	Month          int
	AmountMinor    int64
}

// ClassTotalRow sums all line items of one classification in one month.
type ClassTotalRow struct {
	Year           int
	Month          int
	Classification bwa.Classification
	AmountMinor    int64
}

// CategoryRow describes one category label present in the store.
type CategoryRow struct {
	Category       string
	Classification bwa.Classification
	TotalMinor     int64
	Months         int
}

// InsightsRepository defines read access to imported line items. Every
// query excludes summary rows.
type InsightsRepository interface {
	TrendRows(ctx context.Context, year *int, categories []string) ([]TrendRow, error)
	MonthlyClassTotals(ctx context.Context, year *int) ([]ClassTotalRow, error)
	Categories(ctx context.Context, year *int) ([]CategoryRow, error)
	Years(ctx context.Context) ([]int, error)
}

// Ensure Repository implements InsightsRepository
var _ InsightsRepository = (*Repository)(nil)

// Repository handles database queries for insights
type Repository struct {
	db db.DBTX
}

// NewRepository creates a new insights repository
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// TrendRows sums line items per category and month. An empty categories
// slice means all categories.
func (r *Repository) TrendRows(ctx context.Context, year *int, categories []string) ([]TrendRow, error) {
	if categories == nil {
		categories = []string{}
	}

	query := `
		SELECT category, classification, year, month, SUM(amount_minor)::bigint
		FROM bwa_line_items
		WHERE classification <> 'summary'
		  AND ($1::int IS NULL OR year = $1)
		  AND (cardinality($2::text[]) = 0 OR category = ANY($2::text[]))
		GROUP BY category, classification, year, month
		ORDER BY category, classification, year, month`

	rows, err := r.db.Query(ctx, query, year, categories)
	if err != nil {
		return nil, fmt.Errorf("failed to query trends: %w", err)
	}
	defer rows.Close()

	result := []TrendRow{}
	for rows.Next() {
		var row TrendRow
		var class string
		if err := rows.Scan(&row.Category, &class, &row.Year, &row.Month, &row.AmountMinor); err != nil {
			return nil, fmt.Errorf("failed to scan trend row: %w", err)
		}
		row.Classification = bwa.Classification(class)
		result = append(result, row)
	}
	return result, rows.Err()
}

// MonthlyClassTotals sums line items per month and classification.
func (r *Repository) MonthlyClassTotals(ctx context.Context, year *int) ([]ClassTotalRow, error) {
	query := `
		SELECT year, month, classification, SUM(amount_minor)::bigint
		FROM bwa_line_items
		WHERE classification <> 'summary'
		  AND ($1::int IS NULL OR year = $1)
		GROUP BY year, month, classification
		ORDER BY year, month, classification`

	rows, err := r.db.Query(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly totals: %w", err)
	}
	defer rows.Close()

	result := []ClassTotalRow{}
	for rows.Next() {
		var row ClassTotalRow
		var class string
		if err := rows.Scan(&row.Year, &row.Month, &class, &row.AmountMinor); err != nil {
			return nil, fmt.Errorf("failed to scan monthly total: %w", err)
		}
		row.Classification = bwa.Classification(class)
		result = append(result, row)
	}
	return result, rows.Err()
}

// Categories lists distinct category labels with their totals.
func (r *Repository) Categories(ctx context.Context, year *int) ([]CategoryRow, error) {
	query := `
		SELECT category, classification, SUM(amount_minor)::bigint, COUNT(DISTINCT (year, month))
		FROM bwa_line_items
		WHERE classification <> 'summary'
		  AND ($1::int IS NULL OR year = $1)
		GROUP BY category, classification
		ORDER BY category, classification`

	rows, err := r.db.Query(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	result := []CategoryRow{}
	for rows.Next() {
		var row CategoryRow
		var class string
		if err := rows.Scan(&row.Category, &class, &row.TotalMinor, &row.Months); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		row.Classification = bwa.Classification(class)
		result = append(result, row)
	}
	return result, rows.Err()
}

// Years lists the years with at least one imported period.
func (r *Repository) Years(ctx context.Context) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT year FROM bwa_periods ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("failed to list years: %w", err)
	}
	defer rows.Close()

	years := []int{}
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("failed to scan year: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}
