package export

import (
	"context"
	"fmt"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/pkg/db"
	"github.com/FACorreiaa/bwa-insights/pkg/money"
)

// Query bounds are month ordinals (year*12 + month-1), inclusive.
type monthRange struct {
	From int
	To   int
}

// ExportRepository reads line items for export.
type ExportRepository interface {
	LineItems(ctx context.Context, types []bwa.Classification, r monthRange) ([]bwa.LineItem, error)
	CountLineItems(ctx context.Context, types []bwa.Classification, r monthRange) (int, error)
}

var _ ExportRepository = (*Repository)(nil)

// Repository handles export queries against PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository creates a new export repository
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

func classStrings(types []bwa.Classification) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// LineItems returns matching items ordered by year, month, classification, category.
func (r *Repository) LineItems(ctx context.Context, types []bwa.Classification, rng monthRange) ([]bwa.LineItem, error) {
	query := `
		SELECT id, period_id, category, year, month, amount_minor, classification, group_label
		FROM bwa_line_items
		WHERE classification = ANY($1::text[])
		  AND year * 12 + month - 1 BETWEEN $2 AND $3
		ORDER BY year, month, classification, category`

	rows, err := r.db.Query(ctx, query, classStrings(types), rng.From, rng.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query export items: %w", err)
	}
	defer rows.Close()

	items := []bwa.LineItem{}
	for rows.Next() {
		var it bwa.LineItem
		var amountMinor int64
		var class string
		if err := rows.Scan(&it.ID, &it.PeriodID, &it.Category, &it.Year, &it.Month, &amountMinor, &class, &it.Group); err != nil {
			return nil, fmt.Errorf("failed to scan export item: %w", err)
		}
		it.Amount = money.FromMinorUnits(amountMinor, 2)
		it.Classification = bwa.Classification(class)
		items = append(items, it)
	}
	return items, rows.Err()
}

// CountLineItems returns how many items LineItems would return.
func (r *Repository) CountLineItems(ctx context.Context, types []bwa.Classification, rng monthRange) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bwa_line_items
		WHERE classification = ANY($1::text[])
		  AND year * 12 + month - 1 BETWEEN $2 AND $3`

	var n int
	if err := r.db.QueryRow(ctx, query, classStrings(types), rng.From, rng.To).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count export items: %w", err)
	}
	return n, nil
}
