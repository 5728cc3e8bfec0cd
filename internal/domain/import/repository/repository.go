// Package repository persists imported BWA periods and their line items.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
)

var (
	// ErrDuplicatePeriod is returned when a period for the same (year, month)
	// already exists. The unique index on bwa_periods decides between
	// concurrent imports.
	ErrDuplicatePeriod = errors.New("period already imported")
	ErrPeriodNotFound  = errors.New("period not found")
)

// ImportStatus summarizes one import attempt for the audit log.
type ImportStatus string

const (
	ImportStatusImported ImportStatus = "imported"
	ImportStatusPartial  ImportStatus = "partial"
	ImportStatusSkipped  ImportStatus = "skipped"
	ImportStatusRejected ImportStatus = "rejected"
	ImportStatusFailed   ImportStatus = "failed"
)

// ImportLogEntry records one upload and its outcome.
type ImportLogEntry struct {
	ID             uuid.UUID    `json:"id"`
	SourceFile     *string      `json:"source_file,omitempty"`
	Fingerprint    *string      `json:"fingerprint,omitempty"`
	StoragePath    *string      `json:"storage_path,omitempty"`
	ImportedMonths int          `json:"imported_months"`
	SkippedMonths  int          `json:"skipped_months"`
	ItemsCreated   int          `json:"items_created"`
	Warnings       int          `json:"warnings"`
	Status         ImportStatus `json:"status"`
	ErrorMessage   *string      `json:"error_message,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// PeriodRepository defines persistence for periods and line items.
type PeriodRepository interface {
	// PeriodExists reports whether (year, month) has been imported.
	PeriodExists(ctx context.Context, year, month int) (bool, error)

	// CreatePeriodWithItems stores the period and all of its items in one
	// transaction. It returns ErrDuplicatePeriod when the period exists.
	CreatePeriodWithItems(ctx context.Context, period *bwa.Period, items []bwa.LineItem) error

	// ListPeriods returns imported periods in chronological order, optionally for one year.
	ListPeriods(ctx context.Context, year *int) ([]bwa.Period, error)

	GetPeriod(ctx context.Context, year, month int) (*bwa.Period, error)

	// DeletePeriod removes a period and, by cascade, its line items.
	DeletePeriod(ctx context.Context, year, month int) error

	RecordImport(ctx context.Context, entry *ImportLogEntry) error
	ListImports(ctx context.Context, limit int) ([]ImportLogEntry, error)
}
