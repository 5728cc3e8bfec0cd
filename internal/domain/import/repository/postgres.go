package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
	"github.com/FACorreiaa/bwa-insights/pkg/db"
	"github.com/FACorreiaa/bwa-insights/pkg/money"
)

var _ PeriodRepository = (*PostgresPeriodRepository)(nil)

// unique (year, month) constraint from the schema migration
const periodKeyConstraint = "bwa_periods_year_month_key"

var lineItemColumns = []string{
	"id", "period_id", "category", "year", "month", "amount_minor", "classification", "group_label",
}

// PostgresPeriodRepository implements PeriodRepository using PostgreSQL.
type PostgresPeriodRepository struct {
	db db.DBTX
}

// NewPostgresPeriodRepository creates a new PostgreSQL period repository.
func NewPostgresPeriodRepository(conn db.DBTX) *PostgresPeriodRepository {
	return &PostgresPeriodRepository{db: conn}
}

// ============================================================================
// Periods
// ============================================================================

// PeriodExists reports whether (year, month) has been imported.
func (r *PostgresPeriodRepository) PeriodExists(ctx context.Context, year, month int) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM bwa_periods WHERE year = $1 AND month = $2)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, year, month).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check period %02d/%d: %w", month, year, err)
	}
	return exists, nil
}

// CreatePeriodWithItems inserts the period row and bulk-copies its line items
// in a single transaction.
func (r *PostgresPeriodRepository) CreatePeriodWithItems(ctx context.Context, period *bwa.Period, items []bwa.LineItem) error {
	if period.ID == uuid.Nil {
		period.ID = uuid.New()
	}
	if period.ImportedAt.IsZero() {
		period.ImportedAt = time.Now().UTC()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertPeriod := `
		INSERT INTO bwa_periods (id, year, month, source_file, imported_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := tx.Exec(ctx, insertPeriod,
		period.ID, period.Year, period.Month, period.SourceFile, period.ImportedAt,
	); err != nil {
		if db.IsUniqueViolation(err, periodKeyConstraint) {
			return ErrDuplicatePeriod
		}
		return fmt.Errorf("failed to insert period %02d/%d: %w", period.Month, period.Year, err)
	}

	if len(items) > 0 {
		rows := make([][]any, len(items))
		for i := range items {
			it := &items[i]
			if it.ID == uuid.Nil {
				it.ID = uuid.New()
			}
			it.PeriodID = period.ID
			it.Year = period.Year
			it.Month = period.Month
			rows[i] = []any{
				it.ID,
				it.PeriodID,
				it.Category,
				it.Year,
				it.Month,
				money.ToMinorUnits(it.Amount, 2),
				string(it.Classification),
				it.Group,
			}
		}

		copied, err := tx.CopyFrom(ctx, pgx.Identifier{"bwa_line_items"}, lineItemColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to insert line items: %w", err)
		}
		if copied != int64(len(items)) {
			return fmt.Errorf("failed to insert line items: copied %d of %d", copied, len(items))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsUniqueViolation(err, periodKeyConstraint) {
			return ErrDuplicatePeriod
		}
		return fmt.Errorf("failed to commit period %02d/%d: %w", period.Month, period.Year, err)
	}

	period.ItemCount = len(items)
	return nil
}

// ListPeriods returns imported periods with their item counts.
func (r *PostgresPeriodRepository) ListPeriods(ctx context.Context, year *int) ([]bwa.Period, error) {
	query := `
		SELECT p.id, p.year, p.month, p.source_file, p.imported_at, COUNT(li.id)
		FROM bwa_periods p
		LEFT JOIN bwa_line_items li ON li.period_id = p.id
		WHERE ($1::int IS NULL OR p.year = $1)
		GROUP BY p.id, p.year, p.month, p.source_file, p.imported_at
		ORDER BY p.year, p.month`

	rows, err := r.db.Query(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	defer rows.Close()

	periods := []bwa.Period{}
	for rows.Next() {
		var p bwa.Period
		if err := rows.Scan(&p.ID, &p.Year, &p.Month, &p.SourceFile, &p.ImportedAt, &p.ItemCount); err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// GetPeriod returns the period for (year, month) or ErrPeriodNotFound.
func (r *PostgresPeriodRepository) GetPeriod(ctx context.Context, year, month int) (*bwa.Period, error) {
	query := `
		SELECT p.id, p.year, p.month, p.source_file, p.imported_at,
		       (SELECT COUNT(*) FROM bwa_line_items li WHERE li.period_id = p.id)
		FROM bwa_periods p
		WHERE p.year = $1 AND p.month = $2`

	var p bwa.Period
	err := r.db.QueryRow(ctx, query, year, month).Scan(
		&p.ID, &p.Year, &p.Month, &p.SourceFile, &p.ImportedAt, &p.ItemCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPeriodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get period %02d/%d: %w", month, year, err)
	}
	return &p, nil
}

// DeletePeriod removes a period; line items go with it via ON DELETE CASCADE.
func (r *PostgresPeriodRepository) DeletePeriod(ctx context.Context, year, month int) error {
	query := `DELETE FROM bwa_periods WHERE year = $1 AND month = $2`

	result, err := r.db.Exec(ctx, query, year, month)
	if err != nil {
		return fmt.Errorf("failed to delete period %02d/%d: %w", month, year, err)
	}
	if result.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

// ============================================================================
// Import log
// ============================================================================

// RecordImport appends an entry to the import audit log.
func (r *PostgresPeriodRepository) RecordImport(ctx context.Context, entry *ImportLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO bwa_import_log (
			id, source_file, fingerprint, storage_path, imported_months, skipped_months,
			items_created, warnings, status, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		entry.ID,
		entry.SourceFile,
		entry.Fingerprint,
		entry.StoragePath,
		entry.ImportedMonths,
		entry.SkippedMonths,
		entry.ItemsCreated,
		entry.Warnings,
		string(entry.Status),
		entry.ErrorMessage,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}
	return nil
}

// ListImports returns the most recent import log entries.
func (r *PostgresPeriodRepository) ListImports(ctx context.Context, limit int) ([]ImportLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT id, source_file, fingerprint, storage_path, imported_months, skipped_months,
		       items_created, warnings, status, error_message, created_at
		FROM bwa_import_log
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	entries := []ImportLogEntry{}
	for rows.Next() {
		var e ImportLogEntry
		var status string
		if err := rows.Scan(
			&e.ID, &e.SourceFile, &e.Fingerprint, &e.StoragePath, &e.ImportedMonths, &e.SkippedMonths,
			&e.ItemsCreated, &e.Warnings, &status, &e.ErrorMessage, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan import log entry: %w", err)
		}
		e.Status = ImportStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
